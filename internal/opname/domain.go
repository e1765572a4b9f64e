package opname

import (
	"fmt"
	"time"

	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// Status is the stock opname workflow state.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusApproved   Status = "APPROVED"
	StatusCancelled  Status = "CANCELLED"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusInProgress, StatusCompleted, StatusApproved, StatusCancelled:
		return true
	default:
		return false
	}
}

// Opname is a physical stock count session for one warehouse. Stock is
// never changed until the count is approved.
type Opname struct {
	ID          int64      `json:"id"`
	TenantID    int64      `json:"tenant_id"`
	CompanyID   int64      `json:"company_id"`
	WarehouseID int64      `json:"warehouse_id"`
	Number      string     `json:"number"`
	Status      Status     `json:"status"`
	Notes       string     `json:"notes,omitempty"`
	CreatedBy   int64      `json:"created_by"`
	ApprovedBy  int64      `json:"approved_by,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Lines       []Line     `json:"lines,omitempty"`
}

// Line is one counted product. SystemQty is snapshotted from the stock
// cache when the count is recorded; DifferenceQty = PhysicalQty - SystemQty.
type Line struct {
	ID            int64   `json:"id"`
	OpnameID      int64   `json:"opname_id"`
	ProductID     int64   `json:"product_id"`
	BatchID       *int64  `json:"batch_id,omitempty"`
	SystemQty     float64 `json:"system_qty"`
	PhysicalQty   float64 `json:"physical_qty"`
	DifferenceQty float64 `json:"difference_qty"`
	Note          string  `json:"note,omitempty"`
}

// AdjustmentType states the direction of a standalone adjustment.
type AdjustmentType string

const (
	AdjustmentIncrease AdjustmentType = "INCREASE"
	AdjustmentDecrease AdjustmentType = "DECREASE"
)

// IsValid checks the adjustment type.
func (t AdjustmentType) IsValid() bool {
	return t == AdjustmentIncrease || t == AdjustmentDecrease
}

// AdjustmentReason categorises why stock was adjusted outside a count.
type AdjustmentReason string

const (
	ReasonDamaged    AdjustmentReason = "DAMAGED"
	ReasonExpired    AdjustmentReason = "EXPIRED"
	ReasonLost       AdjustmentReason = "LOST"
	ReasonFound      AdjustmentReason = "FOUND"
	ReasonCorrection AdjustmentReason = "CORRECTION"
	ReasonOther      AdjustmentReason = "OTHER"
)

// IsValid checks the reason against the closed set.
func (r AdjustmentReason) IsValid() bool {
	switch r {
	case ReasonDamaged, ReasonExpired, ReasonLost, ReasonFound, ReasonCorrection, ReasonOther:
		return true
	default:
		return false
	}
}

// AdjustmentStatus is the standalone adjustment approval state.
type AdjustmentStatus string

const (
	AdjustmentPending  AdjustmentStatus = "PENDING"
	AdjustmentApproved AdjustmentStatus = "APPROVED"
	AdjustmentRejected AdjustmentStatus = "REJECTED"
)

// Adjustment is a single-product stock correction outside an opname.
// It touches stock only when approved.
type Adjustment struct {
	ID          int64            `json:"id"`
	TenantID    int64            `json:"tenant_id"`
	CompanyID   int64            `json:"company_id"`
	WarehouseID int64            `json:"warehouse_id"`
	ProductID   int64            `json:"product_id"`
	BatchID     *int64           `json:"batch_id,omitempty"`
	Number      string           `json:"number"`
	Type        AdjustmentType   `json:"type"`
	Reason      AdjustmentReason `json:"reason"`
	Qty         float64          `json:"qty"`
	Status      AdjustmentStatus `json:"status"`
	Notes       string           `json:"notes,omitempty"`
	CreatedBy   int64            `json:"created_by"`
	ApprovedBy  int64            `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time       `json:"approved_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// CreateInput opens a new count session.
type CreateInput struct {
	Scope       shared.Scope
	WarehouseID int64
	Notes       string
	ActorID     int64
}

// CountInput records one counted product on an in-progress opname.
type CountInput struct {
	Scope       shared.Scope
	OpnameID    int64
	ProductID   int64
	BatchID     *int64
	PhysicalQty float64
	Note        string
}

// AdjustmentInput proposes a standalone adjustment.
type AdjustmentInput struct {
	Scope       shared.Scope
	WarehouseID int64
	ProductID   int64
	BatchID     *int64
	Type        AdjustmentType
	Reason      AdjustmentReason
	Qty         float64
	Notes       string
	ActorID     int64
}

var (
	// ErrOpnameNotFound indicates a missing opname in scope.
	ErrOpnameNotFound = fmt.Errorf("opname: not found: %w", shared.ErrNotFound)
	// ErrAdjustmentNotFound indicates a missing adjustment in scope.
	ErrAdjustmentNotFound = fmt.Errorf("opname: adjustment not found: %w", shared.ErrNotFound)
	// ErrStatusConflict indicates the workflow state changed under the caller.
	ErrStatusConflict = fmt.Errorf("opname: status changed concurrently or transition not allowed: %w", shared.ErrConflict)
	// ErrNotCounting indicates a count recorded outside IN_PROGRESS.
	ErrNotCounting = fmt.Errorf("opname: counts can only be recorded while in progress: %w", shared.ErrBusinessRule)
	// ErrNoLines indicates completion of an opname without any counted line.
	ErrNoLines = fmt.Errorf("opname: cannot complete without counted lines: %w", shared.ErrBusinessRule)
	// ErrNegativePhysical indicates a physical count below zero.
	ErrNegativePhysical = fmt.Errorf("opname: physical quantity cannot be negative: %w", shared.ErrValidation)
)
