package procurement

import (
	"fmt"
	"time"

	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// OrderStatus is the purchase order workflow state.
type OrderStatus string

const (
	OrderDraft     OrderStatus = "DRAFT"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// InvoiceStatus is derived from line invoiced quantities, never stored
// independently of them.
type InvoiceStatus string

const (
	NotInvoiced       InvoiceStatus = "NOT_INVOICED"
	PartiallyInvoiced InvoiceStatus = "PARTIALLY_INVOICED"
	FullyInvoiced     InvoiceStatus = "FULLY_INVOICED"
)

// PurchaseOrder is the procurement commitment against one supplier.
type PurchaseOrder struct {
	ID            int64         `json:"id"`
	TenantID      int64         `json:"tenant_id"`
	CompanyID     int64         `json:"company_id"`
	Number        string        `json:"number"`
	SupplierID    int64         `json:"supplier_id"`
	WarehouseID   int64         `json:"warehouse_id"`
	Status        OrderStatus   `json:"status"`
	InvoiceStatus InvoiceStatus `json:"invoice_status"`
	ShortClosed   bool          `json:"short_closed"`
	ExpectedDate  *time.Time    `json:"expected_date,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	CreatedBy     int64         `json:"created_by"`
	CreatedAt     time.Time     `json:"created_at"`
	Lines         []POLine      `json:"lines,omitempty"`
}

// POLine carries the ordered quantity plus two accumulators that the
// receipt and invoice flows advance. Neither accumulator ever exceeds
// what the guards allow.
type POLine struct {
	ID          int64   `json:"id"`
	POID        int64   `json:"po_id"`
	ProductID   int64   `json:"product_id"`
	Qty         float64 `json:"qty"`
	UnitPrice   float64 `json:"unit_price"`
	ReceivedQty float64 `json:"received_qty"`
	InvoicedQty float64 `json:"invoiced_qty"`
}

// RemainingToInvoice is the invoice guard: billing is capped at the
// ordered quantity independently of receipts, so pre-payment invoices
// ahead of delivery stay possible.
func (l POLine) RemainingToInvoice() float64 {
	remaining := l.Qty - l.InvoicedQty
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GoodsReceipt records one physical delivery against a confirmed PO.
type GoodsReceipt struct {
	ID         int64     `json:"id"`
	TenantID   int64     `json:"tenant_id"`
	CompanyID  int64     `json:"company_id"`
	POID       int64     `json:"po_id"`
	Number     string    `json:"number"`
	ReceivedAt time.Time `json:"received_at"`
	ReceivedBy int64     `json:"received_by"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Lines      []GRNLine `json:"lines,omitempty"`
}

// GRNLine splits a received quantity into accepted and rejected portions.
// Only the accepted portion moves stock and advances the PO line.
type GRNLine struct {
	ID           int64   `json:"id"`
	GRNID        int64   `json:"grn_id"`
	POLineID     int64   `json:"po_line_id"`
	ProductID    int64   `json:"product_id"`
	BatchNumber  string  `json:"batch_number,omitempty"`
	OrderedQty   float64 `json:"ordered_qty"`
	ReceivedQty  float64 `json:"received_qty"`
	AcceptedQty  float64 `json:"accepted_qty"`
	RejectedQty  float64 `json:"rejected_qty"`
	RejectReason string  `json:"reject_reason,omitempty"`
	UnitCost     float64 `json:"unit_cost"`
}

// APInvoice bills ordered goods. Lines are guarded by the PO line
// remainder so a supplier can never invoice more than was ordered.
type APInvoice struct {
	ID        int64         `json:"id"`
	TenantID  int64         `json:"tenant_id"`
	CompanyID int64         `json:"company_id"`
	POID      int64         `json:"po_id"`
	Number    string        `json:"number"`
	DueDate   *time.Time    `json:"due_date,omitempty"`
	Total     float64       `json:"total"`
	CreatedBy int64         `json:"created_by"`
	CreatedAt time.Time     `json:"created_at"`
	Lines     []InvoiceLine `json:"lines,omitempty"`
}

// InvoiceLine bills part of one PO line.
type InvoiceLine struct {
	ID        int64   `json:"id"`
	InvoiceID int64   `json:"invoice_id"`
	POLineID  int64   `json:"po_line_id"`
	Qty       float64 `json:"qty"`
	UnitPrice float64 `json:"unit_price"`
}

// CreateOrderInput opens a DRAFT purchase order.
type CreateOrderInput struct {
	Scope        shared.Scope
	SupplierID   int64
	WarehouseID  int64
	ExpectedDate *time.Time
	Notes        string
	ActorID      int64
	Lines        []OrderLineInput
}

// OrderLineInput is one requested line.
type OrderLineInput struct {
	ProductID int64
	Qty       float64
	UnitPrice float64
}

// ReceiveInput records a goods receipt against a confirmed PO.
type ReceiveInput struct {
	Scope      shared.Scope
	POID       int64
	ReceivedAt time.Time
	Notes      string
	ActorID    int64
	Lines      []ReceiveLineInput
}

// ReceiveLineInput is one received line.
type ReceiveLineInput struct {
	POLineID     int64
	ReceivedQty  float64
	AcceptedQty  float64
	RejectedQty  float64
	RejectReason string
	BatchNumber  string
	UnitCost     float64
}

// InvoiceInput bills accepted quantity on a PO.
type InvoiceInput struct {
	Scope   shared.Scope
	POID    int64
	Number  string
	DueDate *time.Time
	ActorID int64
	Lines   []InvoiceLineInput
}

// InvoiceLineInput bills part of one PO line.
type InvoiceLineInput struct {
	POLineID  int64
	Qty       float64
	UnitPrice float64
}

var (
	// ErrOrderNotFound indicates a missing purchase order in scope.
	ErrOrderNotFound = fmt.Errorf("procurement: purchase order not found: %w", shared.ErrNotFound)
	// ErrStatusConflict indicates the workflow state changed under the caller.
	ErrStatusConflict = fmt.Errorf("procurement: status changed concurrently or transition not allowed: %w", shared.ErrConflict)
	// ErrNoLines indicates an order or document without lines.
	ErrNoLines = fmt.Errorf("procurement: at least one line required: %w", shared.ErrValidation)
	// ErrLineMismatch indicates a line reference outside the order.
	ErrLineMismatch = fmt.Errorf("procurement: line does not belong to this order: %w", shared.ErrValidation)
	// ErrSplitMismatch indicates accepted plus rejected differs from received.
	ErrSplitMismatch = fmt.Errorf("procurement: accepted plus rejected must equal received: %w", shared.ErrValidation)
	// ErrRejectReasonRequired indicates a rejected portion without a reason.
	ErrRejectReasonRequired = fmt.Errorf("procurement: reject reason required when quantity is rejected: %w", shared.ErrValidation)
	// ErrToleranceExceeded indicates a receipt beyond the resolved over-delivery allowance.
	ErrToleranceExceeded = fmt.Errorf("procurement: receipt exceeds delivery tolerance: %w", shared.ErrBusinessRule)
	// ErrOverInvoiced indicates an invoice beyond ordered, uninvoiced quantity.
	ErrOverInvoiced = fmt.Errorf("procurement: invoice exceeds ordered uninvoiced quantity: %w", shared.ErrBusinessRule)

	// ErrNotInvoiceable indicates the order no longer accepts invoices.
	ErrNotInvoiceable = fmt.Errorf("procurement: order is not open for invoicing: %w", shared.ErrBusinessRule)
	// ErrNotReceivable indicates a receipt against a non-confirmed order.
	ErrNotReceivable = fmt.Errorf("procurement: only confirmed orders can receive goods: %w", shared.ErrBusinessRule)
)
