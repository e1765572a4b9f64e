package procurement

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

// Handler wires HTTP endpoints for procurement.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{poID}", h.getOrder)
	r.Post("/orders/{poID}/confirm", h.confirmOrder)
	r.Post("/orders/{poID}/cancel", h.cancelOrder)
	r.Post("/orders/{poID}/short-close", h.shortClose)
	r.Post("/orders/{poID}/receipts", h.receive)
	r.Get("/orders/{poID}/receipts", h.listReceipts)
	r.Get("/receipts/{grnID}", h.getReceipt)
	r.Post("/orders/{poID}/invoices", h.invoice)
	r.Get("/orders/{poID}/invoices", h.listInvoices)
	r.Get("/invoices/{invoiceID}", h.getInvoice)
}

type orderLineRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Qty       float64 `json:"qty" validate:"required,gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

type createOrderRequest struct {
	SupplierID   int64              `json:"supplier_id" validate:"required,gt=0"`
	WarehouseID  int64              `json:"warehouse_id" validate:"required,gt=0"`
	ExpectedDate string             `json:"expected_date" validate:"omitempty,datetime=2006-01-02"`
	Notes        string             `json:"notes" validate:"max=500"`
	Lines        []orderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type receiveLineRequest struct {
	POLineID     int64   `json:"po_line_id" validate:"required,gt=0"`
	ReceivedQty  float64 `json:"received_qty" validate:"required,gt=0"`
	AcceptedQty  float64 `json:"accepted_qty" validate:"gte=0"`
	RejectedQty  float64 `json:"rejected_qty" validate:"gte=0"`
	RejectReason string  `json:"reject_reason" validate:"max=200"`
	BatchNumber  string  `json:"batch_number" validate:"max=64"`
	UnitCost     float64 `json:"unit_cost" validate:"gte=0"`
}

type receiveRequest struct {
	ReceivedAt string               `json:"received_at" validate:"omitempty,datetime=2006-01-02"`
	Notes      string               `json:"notes" validate:"max=500"`
	Lines      []receiveLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type invoiceLineRequest struct {
	POLineID  int64   `json:"po_line_id" validate:"required,gt=0"`
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
		Scope:        scope,
		SupplierID:   req.SupplierID,
		WarehouseID:  req.WarehouseID,
		ExpectedDate: parseDate(req.ExpectedDate),
		Notes:        req.Notes,
		ActorID:      actorID,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, OrderLineInput{ProductID: line.ProductID, Qty: line.Qty, UnitPrice: line.UnitPrice})
	}
	po, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
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
	po, err := h.service.GetOrder(r.Context(), scope, urlID(r, "poID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) confirmOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ConfirmOrder)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CancelOrder)
}

func (h *Handler) shortClose(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ShortClose)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, scope shared.Scope, poID, actorID int64) error) {
	scope, actorID, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	if err := fn(r.Context(), scope, urlID(r, "poID"), actorID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	scope, actorID, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := ReceiveInput{
		Scope:   scope,
		POID:    urlID(r, "poID"),
		Notes:   req.Notes,
		ActorID: actorID,
	}
	if at := parseDate(req.ReceivedAt); at != nil {
		input.ReceivedAt = *at
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, ReceiveLineInput{
			POLineID:     line.POLineID,
			ReceivedQty:  line.ReceivedQty,
			AcceptedQty:  line.AcceptedQty,
			RejectedQty:  line.RejectedQty,
			RejectReason: line.RejectReason,
			BatchNumber:  line.BatchNumber,
			UnitCost:     line.UnitCost,
		})
	}
	grn, err := h.service.Receive(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, grn)
}

func (h *Handler) listReceipts(w http.ResponseWriter, r *http.Request) {
	scope, _, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	receipts, err := h.service.ListReceipts(r.Context(), scope, urlID(r, "poID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipts)
}

func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	scope, _, ok := scopeAndActor(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Scope", "tenant scope not resolved")
		return
	}
	grn, err := h.service.GetReceipt(r.Context(), scope, urlID(r, "grnID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grn)
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
		POID:    urlID(r, "poID"),
		Number:  req.Number,
		DueDate: parseDate(req.DueDate),
		ActorID: actorID,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, InvoiceLineInput{POLineID: line.POLineID, Qty: line.Qty, UnitPrice: line.UnitPrice})
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
	invoices, err := h.service.ListInvoices(r.Context(), scope, urlID(r, "poID"))
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
