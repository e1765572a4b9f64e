package sales

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/niaga-erp/niaga-erp/internal/platform/httpx"
	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// Handler wires HTTP endpoints for sales.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{soID}", h.getOrder)
	r.Post("/orders/{soID}/confirm", h.confirmOrder)
	r.Post("/orders/{soID}/cancel", h.cancelOrder)
	r.Post("/orders/{soID}/deliveries", h.deliver)
	r.Get("/orders/{soID}/deliveries", h.listDeliveries)
	r.Get("/deliveries/{deliveryID}", h.getDelivery)
	r.Post("/orders/{soID}/invoices", h.invoice)
	r.Get("/orders/{soID}/invoices", h.listInvoices)
	r.Get("/invoices/{invoiceID}", h.getInvoice)
}

type orderLineRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Qty       float64 `json:"qty" validate:"required,gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

type createOrderRequest struct {
	CustomerID  int64              `json:"customer_id" validate:"required,gt=0"`
	WarehouseID int64              `json:"warehouse_id" validate:"required,gt=0"`
	Notes       string             `json:"notes" validate:"max=500"`
	Lines       []orderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type deliverLineRequest struct {
	SOLineID int64   `json:"so_line_id" validate:"required,gt=0"`
	BatchID  *int64  `json:"batch_id" validate:"omitempty,gt=0"`
	Qty      float64 `json:"qty" validate:"required,gt=0"`
}

type deliverRequest struct {
	DeliveredAt string               `json:"delivered_at" validate:"omitempty,datetime=2006-01-02"`
	Notes       string               `json:"notes" validate:"max=500"`
	Lines       []deliverLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type invoiceLineRequest struct {
	SOLineID  int64   `json:"so_line_id" validate:"required,gt=0"`
	Qty       float64 `json:"qty" validate:"required,gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

type invoiceRequest struct {
	Number  string               `json:"number" validate:"max=64"`
	DueDate string               `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Lines   []invoiceLineRequest `json:"lines" validate:"required,min=1,dive"`
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

func parseDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil
	}
	return &t
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	scope, actorID, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateOrderInput{
		Scope:       scope,
		CustomerID:  req.CustomerID,
		WarehouseID: req.WarehouseID,
		Notes:       req.Notes,
		ActorID:     actorID,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, OrderLineInput{ProductID: line.ProductID, Qty: line.Qty, UnitPrice: line.UnitPrice})
	}
	so, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, so)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	scope, _, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	orders, err := h.service.ListOrders(r.Context(), scope, OrderStatus(r.URL.Query().Get("status")))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	scope, _, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	so, err := h.service.GetOrder(r.Context(), scope, urlID(r, "soID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, so)
}

func (h *Handler) confirmOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ConfirmOrder)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CancelOrder)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, scope shared.Scope, soID, actorID int64) error) {
	scope, actorID, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	if err := fn(r.Context(), scope, urlID(r, "soID"), actorID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) deliver(w http.ResponseWriter, r *http.Request) {
	scope, actorID, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	var req deliverRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := DeliverInput{
		Scope:   scope,
		SOID:    urlID(r, "soID"),
		Notes:   req.Notes,
		ActorID: actorID,
	}
	if at := parseDate(req.DeliveredAt); at != nil {
		input.DeliveredAt = *at
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, DeliverLineInput{SOLineID: line.SOLineID, BatchID: line.BatchID, Qty: line.Qty})
	}
	do, err := h.service.Deliver(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, do)
}

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	scope, _, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	deliveries, err := h.service.ListDeliveries(r.Context(), scope, urlID(r, "soID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, deliveries)
}

func (h *Handler) getDelivery(w http.ResponseWriter, r *http.Request) {
	scope, _, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	do, err := h.service.GetDelivery(r.Context(), scope, urlID(r, "deliveryID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, do)
}

func (h *Handler) invoice(w http.ResponseWriter, r *http.Request) {
	scope, actorID, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	var req invoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := InvoiceInput{
		Scope:   scope,
		SOID:    urlID(r, "soID"),
		Number:  req.Number,
		DueDate: parseDate(req.DueDate),
		ActorID: actorID,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, InvoiceLineInput{SOLineID: line.SOLineID, Qty: line.Qty, UnitPrice: line.UnitPrice})
	}
	inv, err := h.service.Invoice(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	scope, _, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	invoices, err := h.service.ListInvoices(r.Context(), scope, urlID(r, "soID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	scope, _, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), scope, urlID(r, "invoiceID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}
