package transfer

import (
	"fmt"
	"time"

	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// Status is the transfer workflow state.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusShipped   Status = "SHIPPED"
	StatusReceived  Status = "RECEIVED"
	StatusCancelled Status = "CANCELLED"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusShipped, StatusReceived, StatusCancelled:
		return true
	default:
		return false
	}
}

// Transfer moves stock between two warehouses of the same company.
// Shipping posts the outbound half, receiving posts the inbound half, so
// in-transit quantity is visible as the gap between the two.
type Transfer struct {
	ID            int64      `json:"id"`
	TenantID      int64      `json:"tenant_id"`
	CompanyID     int64      `json:"company_id"`
	Number        string     `json:"number"`
	FromWarehouse int64      `json:"from_warehouse_id"`
	ToWarehouse   int64      `json:"to_warehouse_id"`
	Status        Status     `json:"status"`
	Notes         string     `json:"notes,omitempty"`
	CreatedBy     int64      `json:"created_by"`
	ShippedBy     int64      `json:"shipped_by,omitempty"`
	ReceivedBy    int64      `json:"received_by,omitempty"`
	ShippedAt     *time.Time `json:"shipped_at,omitempty"`
	ReceivedAt    *time.Time `json:"received_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	Items         []Item     `json:"items,omitempty"`
}

// Item is one product line on a transfer.
type Item struct {
	ID         int64   `json:"id"`
	TransferID int64   `json:"transfer_id"`
	ProductID  int64   `json:"product_id"`
	BatchID    *int64  `json:"batch_id,omitempty"`
	Qty        float64 `json:"qty"`
}

// CreateInput opens a DRAFT transfer.
type CreateInput struct {
	Scope         shared.Scope
	FromWarehouse int64
	ToWarehouse   int64
	Notes         string
	ActorID       int64
	Items         []ItemInput
}

// ItemInput is one requested line.
type ItemInput struct {
	ProductID int64
	BatchID   *int64
	Qty       float64
}

var (
	// ErrTransferNotFound indicates a missing transfer in scope.
	ErrTransferNotFound = fmt.Errorf("transfer: not found: %w", shared.ErrNotFound)
	// ErrStatusConflict indicates the workflow state changed under the caller.
	ErrStatusConflict = fmt.Errorf("transfer: status changed concurrently or transition not allowed: %w", shared.ErrConflict)
	// ErrSameWarehouse indicates source and destination are identical.
	ErrSameWarehouse = fmt.Errorf("transfer: source and destination warehouse must differ: %w", shared.ErrValidation)
	// ErrNoItems indicates a transfer without lines.
	ErrNoItems = fmt.Errorf("transfer: at least one item required: %w", shared.ErrValidation)
	// ErrNotDraft indicates an edit or delete outside DRAFT.
	ErrNotDraft = fmt.Errorf("transfer: only draft transfers can be edited or deleted: %w", shared.ErrBusinessRule)
	// ErrBatchRequired indicates a batch-tracked product moved without a batch reference.
	ErrBatchRequired = fmt.Errorf("transfer: batch reference required for batch-tracked product: %w", shared.ErrValidation)
)
