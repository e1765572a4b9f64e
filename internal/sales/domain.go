package sales

import (
	"fmt"
	"time"

	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// OrderStatus is the sales order workflow state.
type OrderStatus string

const (
	OrderDraft     OrderStatus = "DRAFT"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// InvoiceStatus is derived from line invoiced quantities.
type InvoiceStatus string

const (
	NotInvoiced       InvoiceStatus = "NOT_INVOICED"
	PartiallyInvoiced InvoiceStatus = "PARTIALLY_INVOICED"
	FullyInvoiced     InvoiceStatus = "FULLY_INVOICED"
)

// SalesOrder is the customer commitment the delivery and billing flows
// fulfil.
type SalesOrder struct {
	ID            int64         `json:"id"`
	TenantID      int64         `json:"tenant_id"`
	CompanyID     int64         `json:"company_id"`
	Number        string        `json:"number"`
	CustomerID    int64         `json:"customer_id"`
	WarehouseID   int64         `json:"warehouse_id"`
	Status        OrderStatus   `json:"status"`
	InvoiceStatus InvoiceStatus `json:"invoice_status"`
	Notes         string        `json:"notes,omitempty"`
	CreatedBy     int64         `json:"created_by"`
	CreatedAt     time.Time     `json:"created_at"`
	Lines         []SOLine      `json:"lines,omitempty"`
}

// SOLine carries the ordered quantity plus the delivery and invoice
// accumulators. Customer deliveries are capped at the ordered quantity;
// there is no over-delivery allowance on the sales side.
type SOLine struct {
	ID           int64   `json:"id"`
	SOID         int64   `json:"so_id"`
	ProductID    int64   `json:"product_id"`
	Qty          float64 `json:"qty"`
	UnitPrice    float64 `json:"unit_price"`
	DeliveredQty float64 `json:"delivered_qty"`
	InvoicedQty  float64 `json:"invoiced_qty"`
}

// RemainingToDeliver is the undelivered ordered quantity.
func (l SOLine) RemainingToDeliver() float64 {
	remaining := l.Qty - l.DeliveredQty
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RemainingToInvoice is the delivered, not yet invoiced quantity.
func (l SOLine) RemainingToInvoice() float64 {
	remaining := l.DeliveredQty - l.InvoicedQty
	if remaining < 0 {
		return 0
	}
	return remaining
}

// DeliveryOrder records one shipment against a confirmed sales order.
type DeliveryOrder struct {
	ID          int64          `json:"id"`
	TenantID    int64          `json:"tenant_id"`
	CompanyID   int64          `json:"company_id"`
	SOID        int64          `json:"so_id"`
	Number      string         `json:"number"`
	DeliveredAt time.Time      `json:"delivered_at"`
	DeliveredBy int64          `json:"delivered_by"`
	Notes       string         `json:"notes,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	Lines       []DeliveryLine `json:"lines,omitempty"`
}

// DeliveryLine ships part of one SO line.
type DeliveryLine struct {
	ID         int64   `json:"id"`
	DeliveryID int64   `json:"delivery_id"`
	SOLineID   int64   `json:"so_line_id"`
	ProductID  int64   `json:"product_id"`
	BatchID    *int64  `json:"batch_id,omitempty"`
	Qty        float64 `json:"qty"`
}

// ARInvoice bills delivered goods.
type ARInvoice struct {
	ID        int64         `json:"id"`
	TenantID  int64         `json:"tenant_id"`
	CompanyID int64         `json:"company_id"`
	SOID      int64         `json:"so_id"`
	Number    string        `json:"number"`
	DueDate   *time.Time    `json:"due_date,omitempty"`
	Total     float64       `json:"total"`
	CreatedBy int64         `json:"created_by"`
	CreatedAt time.Time     `json:"created_at"`
	Lines     []InvoiceLine `json:"lines,omitempty"`
}

// InvoiceLine bills part of one SO line.
type InvoiceLine struct {
	ID        int64   `json:"id"`
	InvoiceID int64   `json:"invoice_id"`
	SOLineID  int64   `json:"so_line_id"`
	Qty       float64 `json:"qty"`
	UnitPrice float64 `json:"unit_price"`
}

// CreateOrderInput opens a DRAFT sales order.
type CreateOrderInput struct {
	Scope       shared.Scope
	CustomerID  int64
	WarehouseID int64
	Notes       string
	ActorID     int64
	Lines       []OrderLineInput
}

// OrderLineInput is one requested line.
type OrderLineInput struct {
	ProductID int64
	Qty       float64
	UnitPrice float64
}

// DeliverInput ships goods against a confirmed sales order.
type DeliverInput struct {
	Scope       shared.Scope
	SOID        int64
	DeliveredAt time.Time
	Notes       string
	ActorID     int64
	Lines       []DeliverLineInput
}

// DeliverLineInput ships part of one SO line.
type DeliverLineInput struct {
	SOLineID int64
	BatchID  *int64
	Qty      float64
}

// InvoiceInput bills delivered quantity on a sales order.
type InvoiceInput struct {
	Scope   shared.Scope
	SOID    int64
	Number  string
	DueDate *time.Time
	ActorID int64
	Lines   []InvoiceLineInput
}

// InvoiceLineInput bills part of one SO line.
type InvoiceLineInput struct {
	SOLineID  int64
	Qty       float64
	UnitPrice float64
}

var (
	// ErrOrderNotFound indicates a missing sales order in scope.
	ErrOrderNotFound = fmt.Errorf("sales: sales order not found: %w", shared.ErrNotFound)
	// ErrStatusConflict indicates the workflow state changed under the caller.
	ErrStatusConflict = fmt.Errorf("sales: status changed concurrently or transition not allowed: %w", shared.ErrConflict)
	// ErrNoLines indicates an order or document without lines.
	ErrNoLines = fmt.Errorf("sales: at least one line required: %w", shared.ErrValidation)
	// ErrLineMismatch indicates a line reference outside the order.
	ErrLineMismatch = fmt.Errorf("sales: line does not belong to this order: %w", shared.ErrValidation)
	// ErrOverDelivered indicates a shipment beyond the ordered remainder.
	ErrOverDelivered = fmt.Errorf("sales: delivery exceeds ordered undelivered quantity: %w", shared.ErrBusinessRule)
	// ErrOverInvoiced indicates an invoice beyond delivered, uninvoiced quantity.
	ErrOverInvoiced = fmt.Errorf("sales: invoice exceeds delivered uninvoiced quantity: %w", shared.ErrBusinessRule)
	// ErrNotDeliverable indicates a delivery against a non-confirmed order.
	ErrNotDeliverable = fmt.Errorf("sales: only confirmed orders can deliver goods: %w", shared.ErrBusinessRule)
	// ErrBatchRequired indicates a batch-tracked product shipped without a batch reference.
	ErrBatchRequired = fmt.Errorf("sales: batch reference required for batch-tracked product: %w", shared.ErrValidation)
)
