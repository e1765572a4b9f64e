package tolerance

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/niaga-erp/niaga-erp/internal/platform/httpx"
	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// Handler wires HTTP endpoints for tolerance rules.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs tolerance handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers tolerance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{ruleID}", h.get)
	r.Put("/{ruleID}", h.update)
	r.Delete("/{ruleID}", h.remove)
	r.Get("/resolve", h.resolve)
}

type ruleRequest struct {
	Level         string  `json:"level" validate:"required,oneof=PRODUCT CATEGORY COMPANY"`
	ProductID     *int64  `json:"product_id"`
	CategoryName  *string `json:"category_name"`
	OverPct       float64 `json:"over_pct" validate:"gte=0,lte=100"`
	UnderPct      float64 `json:"under_pct" validate:"gte=0,lte=100"`
	UnlimitedOver bool    `json:"unlimited_over"`
	IsActive      bool    `json:"is_active"`
}

func (h *Handler) decodeInput(w http.ResponseWriter, r *http.Request, scope shared.Scope) (RuleInput, bool) {
	var req ruleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return RuleInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return RuleInput{}, false
	}
	return RuleInput{
		Scope:         scope,
		Level:         Level(req.Level),
		ProductID:     req.ProductID,
		CategoryName:  req.CategoryName,
		OverPct:       req.OverPct,
		UnderPct:      req.UnderPct,
		UnlimitedOver: req.UnlimitedOver,
		IsActive:      req.IsActive,
	}, true
}

func urlID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "ruleID"), 10, 64)
	return id
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	input, ok := h.decodeInput(w, r, scope)
	if !ok {
		return
	}
	rule, err := h.service.CreateRule(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rule)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	input, ok := h.decodeInput(w, r, scope)
	if !ok {
		return
	}
	if err := h.service.UpdateRule(r.Context(), urlID(r), input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	if err := h.service.DeleteRule(r.Context(), scope, urlID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	rule, err := h.service.GetRule(r.Context(), scope, urlID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rule)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	rules, err := h.service.ListRules(r.Context(), scope)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rules)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	productID, _ := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	resolved, err := h.service.Resolve(r.Context(), scope, productID, r.URL.Query().Get("category"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, resolved)
}
