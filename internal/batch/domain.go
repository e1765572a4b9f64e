package batch

import (
	"fmt"
	"time"

	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// Status represents the lifecycle of a product batch.
type Status string

const (
	StatusAvailable Status = "AVAILABLE" // In stock, sellable
	StatusReserved  Status = "RESERVED"  // Allocated to a sales order
	StatusExpired   Status = "EXPIRED"   // Past expiry date
	StatusDamaged   Status = "DAMAGED"   // Written off as damaged
	StatusRecalled  Status = "RECALLED"  // Pulled by supplier recall
	StatusSold      Status = "SOLD"      // Shipped out
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusAvailable, StatusReserved, StatusExpired, StatusDamaged, StatusRecalled, StatusSold:
		return true
	default:
		return false
	}
}

// transitions is the closed allow-list of batch status changes.
var transitions = map[Status][]Status{
	StatusAvailable: {StatusReserved, StatusExpired, StatusDamaged, StatusRecalled},
	StatusReserved:  {StatusSold, StatusAvailable, StatusExpired, StatusDamaged, StatusRecalled},
}

// CanTransition reports whether s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ProductBatch tracks lot-level quantity and dates for batch-tracked or
// perishable products. A batch belongs to exactly one warehouse stock row
// and holds only that row's id, never an embedded object.
type ProductBatch struct {
	ID              int64      `json:"id"`
	TenantID        int64      `json:"tenant_id"`
	CompanyID       int64      `json:"company_id"`
	StockID         int64      `json:"stock_id"`
	ProductID       int64      `json:"product_id"`
	BatchNumber     string     `json:"batch_number"`
	ManufactureDate *time.Time `json:"manufacture_date,omitempty"`
	ExpiryDate      *time.Time `json:"expiry_date,omitempty"`
	Qty             float64    `json:"qty"`
	Status          Status     `json:"status"`
	QualityPassed   bool       `json:"quality_passed"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsExpired returns true if the batch is past its expiry date.
func (b ProductBatch) IsExpired(now time.Time) bool {
	return b.ExpiryDate != nil && b.ExpiryDate.Before(now)
}

// CreateInput describes a new batch brought in by a receipt or initial
// stock action.
type CreateInput struct {
	Scope           shared.Scope
	WarehouseID     int64
	ProductID       int64
	BatchNumber     string
	ManufactureDate *time.Time
	ExpiryDate      *time.Time
	Qty             float64
	QualityPassed   bool
}

var (
	// ErrBatchNotFound indicates a missing batch in scope.
	ErrBatchNotFound = fmt.Errorf("batch: not found: %w", shared.ErrNotFound)
	// ErrDuplicateBatchNumber indicates the batch number already exists for the product.
	ErrDuplicateBatchNumber = fmt.Errorf("batch: batch number already exists for product: %w", shared.ErrValidation)
	// ErrInvalidTransition indicates a status change outside the allow-list.
	ErrInvalidTransition = fmt.Errorf("batch: status transition not allowed: %w", shared.ErrConflict)
	// ErrBatchRequired indicates a batch-tracked product operation without a batch reference.
	ErrBatchRequired = fmt.Errorf("batch: batch reference required for batch-tracked product: %w", shared.ErrBusinessRule)
	// ErrQtyExceedsStock indicates batch quantities would exceed the owning stock row.
	ErrQtyExceedsStock = fmt.Errorf("batch: batch quantities would exceed warehouse stock: %w", shared.ErrBusinessRule)
	// ErrInsufficientBatchQty indicates a consume beyond the batch quantity.
	ErrInsufficientBatchQty = fmt.Errorf("batch: insufficient batch quantity: %w", shared.ErrBusinessRule)
)
