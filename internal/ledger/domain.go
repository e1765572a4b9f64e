package ledger

import (
	"fmt"
	"time"

	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementIn represents an inbound movement (receipt, initial stock).
	MovementIn MovementType = "IN"
	// MovementOut represents an outbound movement (delivery, issue).
	MovementOut MovementType = "OUT"
	// MovementAdjustment is posted by approved opnames and adjustments.
	MovementAdjustment MovementType = "ADJUSTMENT"
	// MovementReturn represents goods returned into a warehouse.
	MovementReturn MovementType = "RETURN"
	// MovementDamaged writes off damaged quantity.
	MovementDamaged MovementType = "DAMAGED"
	// MovementTransfer is used for the OUT/IN pair of a stock transfer.
	MovementTransfer MovementType = "TRANSFER"
)

// IsValid checks the movement type against the closed set.
func (t MovementType) IsValid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjustment, MovementReturn, MovementDamaged, MovementTransfer:
		return true
	default:
		return false
	}
}

// DocRef points back at the document that caused a movement.
type DocRef struct {
	Type   string `json:"type"`
	ID     int64  `json:"id"`
	Number string `json:"number"`
}

// Movement is one immutable row of the movement log. Rows are never
// updated or deleted; the log is the audit trail for all stock history.
type Movement struct {
	ID          int64        `json:"id"`
	TenantID    int64        `json:"tenant_id"`
	CompanyID   int64        `json:"company_id"`
	WarehouseID int64        `json:"warehouse_id"`
	ProductID   int64        `json:"product_id"`
	BatchID     *int64       `json:"batch_id,omitempty"`
	Type        MovementType `json:"type"`
	Qty         float64      `json:"qty"`
	StockBefore float64      `json:"stock_before"`
	StockAfter  float64      `json:"stock_after"`
	Ref         DocRef       `json:"ref"`
	Note        string       `json:"note,omitempty"`
	CreatedBy   int64        `json:"created_by"`
	CreatedAt   time.Time    `json:"created_at"`
}

// WarehouseStock is the cached current quantity per (warehouse, product).
// Its Quantity must always equal the running sum of movement deltas on the
// same key. Created on the first movement into a warehouse.
type WarehouseStock struct {
	ID          int64     `json:"id"`
	TenantID    int64     `json:"tenant_id"`
	CompanyID   int64     `json:"company_id"`
	WarehouseID int64     `json:"warehouse_id"`
	ProductID   int64     `json:"product_id"`
	Quantity    float64   `json:"quantity"`
	MinStock    float64   `json:"min_stock"`
	MaxStock    float64   `json:"max_stock"`
	BinLocation string    `json:"bin_location,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MovementInput describes a request to post one movement.
type MovementInput struct {
	Scope       shared.Scope
	WarehouseID int64
	ProductID   int64
	BatchID     *int64
	Type        MovementType
	Qty         float64
	Ref         DocRef
	Note        string
	ActorID     int64
}

// MovementFilter filters movement log listings.
type MovementFilter struct {
	WarehouseID int64
	ProductID   int64
	Type        MovementType
	From        time.Time
	To          time.Time
	Limit       int
}

// StockSettingsInput updates thresholds and bin location on a cache row.
type StockSettingsInput struct {
	Scope       shared.Scope
	WarehouseID int64
	ProductID   int64
	MinStock    float64
	MaxStock    float64
	BinLocation string
}

// DriftReport compares a cache row against the movement log running sum.
type DriftReport struct {
	WarehouseID int64   `json:"warehouse_id"`
	ProductID   int64   `json:"product_id"`
	CachedQty   float64 `json:"cached_qty"`
	MovementSum float64 `json:"movement_sum"`
	Drift       float64 `json:"drift"`
}

// qtyEpsilon absorbs float accumulation noise in quantity comparisons.
const qtyEpsilon = 1e-6

var (
	// ErrNegativeStock triggered when a movement would drive stock negative.
	ErrNegativeStock = fmt.Errorf("ledger: movement would drive stock negative: %w", shared.ErrConflict)
	// ErrInvalidQuantity indicates a zero quantity delta.
	ErrInvalidQuantity = fmt.Errorf("ledger: quantity delta must be non zero: %w", shared.ErrValidation)
	// ErrInvalidMovementType indicates a type outside the closed set.
	ErrInvalidMovementType = fmt.Errorf("ledger: unknown movement type: %w", shared.ErrValidation)
	// ErrMissingReference indicates a movement without an originating document.
	ErrMissingReference = fmt.Errorf("ledger: originating document reference required: %w", shared.ErrValidation)
	// ErrStockNotFound indicates a missing cache row.
	ErrStockNotFound = fmt.Errorf("ledger: warehouse stock not found: %w", shared.ErrNotFound)
	// ErrStockDrift indicates the cache diverged from the movement log.
	ErrStockDrift = fmt.Errorf("ledger: stock cache diverges from movement log: %w", shared.ErrIntegrity)
)
