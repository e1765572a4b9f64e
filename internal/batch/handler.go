package batch

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/niaga-erp/niaga-erp/internal/platform/httpx"
	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// Handler wires HTTP endpoints for batch tracking.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	warnDays int
}

// NewHandler constructs batch handler. warnDays is the default window
// for the expiring listing when the request does not name one.
func NewHandler(logger *slog.Logger, service *Service, warnDays int) *Handler {
	if warnDays <= 0 {
		warnDays = 30
	}
	return &Handler{logger: logger, service: service, validate: validator.New(), warnDays: warnDays}
}

// MountRoutes registers batch routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/expiring", h.listExpiring)
	r.Get("/{batchID}", h.get)
	r.Post("/{batchID}/status", h.transition)
	r.Get("/stock/{stockID}", h.listByStock)
}

type createRequest struct {
	WarehouseID     int64   `json:"warehouse_id" validate:"required,gt=0"`
	ProductID       int64   `json:"product_id" validate:"required,gt=0"`
	BatchNumber     string  `json:"batch_number" validate:"required,max=64"`
	ManufactureDate string  `json:"manufacture_date" validate:"omitempty,datetime=2006-01-02"`
	ExpiryDate      string  `json:"expiry_date" validate:"omitempty,datetime=2006-01-02"`
	Qty             float64 `json:"qty" validate:"required,gt=0"`
	QualityPassed   bool    `json:"quality_passed"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateInput{
		Scope:         scope,
		WarehouseID:   req.WarehouseID,
		ProductID:     req.ProductID,
		BatchNumber:   req.BatchNumber,
		Qty:           req.Qty,
		QualityPassed: req.QualityPassed,
	}
	if req.ManufactureDate != "" {
		t, _ := time.Parse("2006-01-02", req.ManufactureDate)
		input.ManufactureDate = &t
	}
	if req.ExpiryDate != "" {
		t, _ := time.Parse("2006-01-02", req.ExpiryDate)
		input.ExpiryDate = &t
	}
	created, err := h.service.Create(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "batchID"), 10, 64)
	b, err := h.service.Get(r.Context(), scope, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "batchID"), 10, 64)
	b, err := h.service.Transition(r.Context(), scope, id, Status(req.Status))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) listExpiring(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	days := h.warnDays
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "days must be an integer")
			return
		}
		days = parsed
	}
	batches, err := h.service.ListExpiringSoon(r.Context(), scope, days)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batches)
}

func (h *Handler) listByStock(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	stockID, _ := strconv.ParseInt(chi.URLParam(r, "stockID"), 10, 64)
	batches, err := h.service.ListByStock(r.Context(), scope, stockID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batches)
}
