package transfer

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

// Handler wires HTTP endpoints for stock transfers.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs transfer handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{transferID}", h.get)
	r.Put("/{transferID}", h.updateDraft)
	r.Delete("/{transferID}", h.deleteDraft)
	r.Post("/{transferID}/ship", h.ship)
	r.Post("/{transferID}/receive", h.receive)
	r.Post("/{transferID}/cancel", h.cancel)
}

type itemRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	BatchID   *int64  `json:"batch_id"`
	Qty       float64 `json:"qty" validate:"required,gt=0"`
}

type createRequest struct {
	FromWarehouseID int64         `json:"from_warehouse_id" validate:"required,gt=0"`
	ToWarehouseID   int64         `json:"to_warehouse_id" validate:"required,gt=0"`
	Notes           string        `json:"notes" validate:"max=500"`
	Items           []itemRequest `json:"items" validate:"required,min=1,dive"`
}

type updateRequest struct {
	Notes string        `json:"notes" validate:"max=500"`
	Items []itemRequest `json:"items" validate:"required,min=1,dive"`
}

func scopeAndActor(r *http.Request) (shared.Scope, int64, bool) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		return shared.Scope{}, 0, false
	}
	actorID, _ := strconv.ParseInt(r.Header.Get("X-Actor-ID"), 10, 64)
	return scope, actorID, true
}

func urlID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "transferID"), 10, 64)
	return id
}

func toItemInputs(items []itemRequest) []ItemInput {
	out := make([]ItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, ItemInput{ProductID: item.ProductID, BatchID: item.BatchID, Qty: item.Qty})
	}
	return out
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	scope, actorID, ok := scopeAndActor(r)
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
	t, err := h.service.Create(r.Context(), CreateInput{
		Scope:         scope,
		FromWarehouse: req.FromWarehouseID,
		ToWarehouse:   req.ToWarehouseID,
		Notes:         req.Notes,
		ActorID:       actorID,
		Items:         toItemInputs(req.Items),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	scope, _, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	transfers, err := h.service.List(r.Context(), scope, Status(r.URL.Query().Get("status")))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfers)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	scope, _, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	t, err := h.service.Get(r.Context(), scope, urlID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) updateDraft(w http.ResponseWriter, r *http.Request) {
	scope, _, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.UpdateDraft(r.Context(), scope, urlID(r), req.Notes, toItemInputs(req.Items)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) deleteDraft(w http.ResponseWriter, r *http.Request) {
	scope, _, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	if err := h.service.Delete(r.Context(), scope, urlID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) ship(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Ship)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Receive)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, scope shared.Scope, transferID, actorID int64) error) {
	scope, actorID, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	if err := fn(r.Context(), scope, urlID(r), actorID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
