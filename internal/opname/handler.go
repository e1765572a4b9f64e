package opname

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/niaga-erp/niaga-erp/internal/platform/httpx"
	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// Handler wires HTTP endpoints for opnames and adjustments.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs opname handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers opname and adjustment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/opnames", h.create)
	r.Get("/opnames", h.list)
	r.Get("/opnames/{opnameID}", h.get)
	r.Post("/opnames/{opnameID}/start", h.start)
	r.Post("/opnames/{opnameID}/counts", h.recordCount)
	r.Post("/opnames/{opnameID}/complete", h.complete)
	r.Post("/opnames/{opnameID}/approve", h.approve)
	r.Post("/opnames/{opnameID}/cancel", h.cancel)
	r.Post("/adjustments", h.createAdjustment)
	r.Get("/adjustments", h.listAdjustments)
	r.Get("/adjustments/{adjustmentID}", h.getAdjustment)
	r.Post("/adjustments/{adjustmentID}/approve", h.approveAdjustment)
	r.Post("/adjustments/{adjustmentID}/reject", h.rejectAdjustment)
}

type createOpnameRequest struct {
	WarehouseID int64  `json:"warehouse_id" validate:"required,gt=0"`
	Notes       string `json:"notes" validate:"max=500"`
}

type countRequest struct {
	ProductID   int64   `json:"product_id" validate:"required,gt=0"`
	BatchID     *int64  `json:"batch_id"`
	PhysicalQty float64 `json:"physical_qty" validate:"gte=0"`
	Note        string  `json:"note" validate:"max=500"`
}

type createAdjustmentRequest struct {
	WarehouseID int64   `json:"warehouse_id" validate:"required,gt=0"`
	ProductID   int64   `json:"product_id" validate:"required,gt=0"`
	BatchID     *int64  `json:"batch_id"`
	Type        string  `json:"type" validate:"required,oneof=INCREASE DECREASE"`
	Reason      string  `json:"reason" validate:"required"`
	Qty         float64 `json:"qty" validate:"required,gt=0"`
	Notes       string  `json:"notes" validate:"max=500"`
}

func scopeAndActor(r *http.Request) (shared.Scope, int64, bool) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		return shared.Scope{}, 0, false
	}
	actorID, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return scope, actorID, true
}

func urlID(r *http.Request, key string) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	return id
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	scope, actorID, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	var req createOpnameRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	o, err := h.service.Create(r.Context(), CreateInput{
		Scope: scope, WarehouseID: req.WarehouseID, Notes: req.Notes, ActorID: actorID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	scope, _, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	opnames, err := h.service.List(r.Context(), scope, Status(r.URL.Query().Get("status")))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, opnames)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	scope, _, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	o, err := h.service.Get(r.Context(), scope, urlID(r, "opnameID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Start)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Complete)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Approve)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, scope shared.Scope, opnameID, actorID int64) error) {
	scope, actorID, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	if err := fn(r.Context(), scope, urlID(r, "opnameID"), actorID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) recordCount(w http.ResponseWriter, r *http.Request) {
	scope, _, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	var req countRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	line, err := h.service.RecordCount(r.Context(), CountInput{
		Scope:       scope,
		OpnameID:    urlID(r, "opnameID"),
		ProductID:   req.ProductID,
		BatchID:     req.BatchID,
		PhysicalQty: req.PhysicalQty,
		Note:        req.Note,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) createAdjustment(w http.ResponseWriter, r *http.Request) {
	scope, actorID, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	var req createAdjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	a, err := h.service.CreateAdjustment(r.Context(), AdjustmentInput{
		Scope:       scope,
		WarehouseID: req.WarehouseID,
		ProductID:   req.ProductID,
		BatchID:     req.BatchID,
		Type:        AdjustmentType(req.Type),
		Reason:      AdjustmentReason(req.Reason),
		Qty:         req.Qty,
		Notes:       req.Notes,
		ActorID:     actorID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

func (h *Handler) listAdjustments(w http.ResponseWriter, r *http.Request) {
	scope, _, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	adjustments, err := h.service.ListAdjustments(r.Context(), scope, AdjustmentStatus(r.URL.Query().Get("status")))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, adjustments)
}

func (h *Handler) getAdjustment(w http.ResponseWriter, r *http.Request) {
	scope, _, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	a, err := h.service.GetAdjustment(r.Context(), scope, urlID(r, "adjustmentID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) approveAdjustment(w http.ResponseWriter, r *http.Request) {
	scope, actorID, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	if err := h.service.ApproveAdjustment(r.Context(), scope, urlID(r, "adjustmentID"), actorID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (h *Handler) rejectAdjustment(w http.ResponseWriter, r *http.Request) {
	scope, actorID, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	if err := h.service.RejectAdjustment(r.Context(), scope, urlID(r, "adjustmentID"), actorID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}
