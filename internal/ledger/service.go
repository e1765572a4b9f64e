package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStock(ctx context.Context, scope shared.Scope, warehouseID, productID int64) (WarehouseStock, error)
	ListMovements(ctx context.Context, scope shared.Scope, filter MovementFilter) ([]Movement, error)
	SumMovements(ctx context.Context, scope shared.Scope, warehouseID, productID int64) (float64, error)
	ListStockKeys(ctx context.Context, scope shared.Scope) ([]WarehouseStock, error)
	UpdateStockSettings(ctx context.Context, input StockSettingsInput) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MovementObserver receives metrics signals for posted movements.
type MovementObserver interface {
	MovementPosted(movementType string)
}

// Service owns the postMovement primitive. Every other module changes
// stock through this single entry point; nothing writes the cache
// directly.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	logger  *slog.Logger
	metrics MovementObserver
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger, metrics MovementObserver) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, metrics: metrics}
}

// PostMovement appends one immutable movement row and updates the cached
// stock quantity in the same transaction. When the caller already runs
// inside a database transaction the posting joins it, so a document and
// its movements commit or roll back as one. The resulting quantity must
// not go negative; no movement type permits negative inventory.
func (s *Service) PostMovement(ctx context.Context, input MovementInput) (Movement, error) {
	if err := input.Scope.Validate(); err != nil {
		return Movement{}, err
	}
	if input.WarehouseID == 0 || input.ProductID == 0 {
		return Movement{}, fmt.Errorf("%w: warehouse and product required", shared.ErrValidation)
	}
	if !input.Type.IsValid() {
		return Movement{}, ErrInvalidMovementType
	}
	if math.Abs(input.Qty) < qtyEpsilon {
		return Movement{}, ErrInvalidQuantity
	}
	if input.Ref.Type == "" || input.Ref.ID == 0 {
		return Movement{}, ErrMissingReference
	}

	var posted Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStockForUpdate(ctx, input.Scope, input.WarehouseID, input.ProductID)
		if err != nil && !errors.Is(err, ErrStockNotFound) {
			return err
		}
		if errors.Is(err, ErrStockNotFound) {
			// First movement into this warehouse creates the cache row.
			stock = WarehouseStock{
				TenantID:    input.Scope.TenantID,
				CompanyID:   input.Scope.CompanyID,
				WarehouseID: input.WarehouseID,
				ProductID:   input.ProductID,
			}
		}

		before := stock.Quantity
		after := before + input.Qty
		if math.Abs(after) < qtyEpsilon {
			after = 0
		}
		if after < 0 {
			return ErrNegativeStock
		}

		movement := Movement{
			TenantID:    input.Scope.TenantID,
			CompanyID:   input.Scope.CompanyID,
			WarehouseID: input.WarehouseID,
			ProductID:   input.ProductID,
			BatchID:     input.BatchID,
			Type:        input.Type,
			Qty:         input.Qty,
			StockBefore: before,
			StockAfter:  after,
			Ref:         input.Ref,
			Note:        input.Note,
			CreatedBy:   input.ActorID,
		}
		id, err := tx.InsertMovement(ctx, movement)
		if err != nil {
			return err
		}
		movement.ID = id

		stock.Quantity = after
		if err := tx.UpsertStock(ctx, stock); err != nil {
			return err
		}

		posted = movement
		return nil
	})
	if err != nil {
		return Movement{}, err
	}

	if s.metrics != nil {
		s.metrics.MovementPosted(string(input.Type))
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Scope:    input.Scope,
			ActorID:  input.ActorID,
			Action:   fmt.Sprintf("ledger:%s", input.Type),
			Entity:   "inventory_movement",
			EntityID: fmt.Sprintf("%d", posted.ID),
			Meta: map[string]any{
				"warehouse_id": input.WarehouseID,
				"product_id":   input.ProductID,
				"qty":          input.Qty,
				"ref_type":     input.Ref.Type,
				"ref_number":   input.Ref.Number,
			},
		})
	}
	return posted, nil
}

// GetStock returns the cached stock row for a key.
func (s *Service) GetStock(ctx context.Context, scope shared.Scope, warehouseID, productID int64) (WarehouseStock, error) {
	if err := scope.Validate(); err != nil {
		return WarehouseStock{}, err
	}
	if warehouseID == 0 || productID == 0 {
		return WarehouseStock{}, fmt.Errorf("%w: warehouse and product required", shared.ErrValidation)
	}
	return s.repo.GetStock(ctx, scope, warehouseID, productID)
}

// ListMovements lists movement log entries for a key.
func (s *Service) ListMovements(ctx context.Context, scope shared.Scope, filter MovementFilter) ([]Movement, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if filter.WarehouseID == 0 || filter.ProductID == 0 {
		return nil, fmt.Errorf("%w: warehouse and product required", shared.ErrValidation)
	}
	return s.repo.ListMovements(ctx, scope, filter)
}

// UpdateStockSettings stores min/max thresholds and bin location.
func (s *Service) UpdateStockSettings(ctx context.Context, input StockSettingsInput) error {
	if err := input.Scope.Validate(); err != nil {
		return err
	}
	if input.WarehouseID == 0 || input.ProductID == 0 {
		return fmt.Errorf("%w: warehouse and product required", shared.ErrValidation)
	}
	if input.MinStock < 0 || input.MaxStock < 0 {
		return fmt.Errorf("%w: thresholds must be >= 0", shared.ErrValidation)
	}
	if input.MaxStock > 0 && input.MinStock > input.MaxStock {
		return fmt.Errorf("%w: min threshold above max", shared.ErrValidation)
	}
	return s.repo.UpdateStockSettings(ctx, input)
}

// VerifyStock recomputes the movement running sum for one key and compares
// it to the cache. Drift is reported, never corrected.
func (s *Service) VerifyStock(ctx context.Context, scope shared.Scope, warehouseID, productID int64) (DriftReport, error) {
	if err := scope.Validate(); err != nil {
		return DriftReport{}, err
	}
	stock, err := s.repo.GetStock(ctx, scope, warehouseID, productID)
	if err != nil {
		return DriftReport{}, err
	}
	sum, err := s.repo.SumMovements(ctx, scope, warehouseID, productID)
	if err != nil {
		return DriftReport{}, err
	}
	report := DriftReport{
		WarehouseID: warehouseID,
		ProductID:   productID,
		CachedQty:   stock.Quantity,
		MovementSum: sum,
		Drift:       stock.Quantity - sum,
	}
	if math.Abs(report.Drift) > qtyEpsilon {
		s.logger.Error("stock reconciliation alert",
			slog.Int64("warehouse_id", warehouseID),
			slog.Int64("product_id", productID),
			slog.Float64("cached_qty", report.CachedQty),
			slog.Float64("movement_sum", report.MovementSum))
		return report, ErrStockDrift
	}
	return report, nil
}

// VerifyAll scans every cache row in scope and returns the drifting keys.
func (s *Service) VerifyAll(ctx context.Context, scope shared.Scope) ([]DriftReport, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	stocks, err := s.repo.ListStockKeys(ctx, scope)
	if err != nil {
		return nil, err
	}
	var drifted []DriftReport
	for _, stock := range stocks {
		report, err := s.VerifyStock(ctx, scope, stock.WarehouseID, stock.ProductID)
		if err != nil && !errors.Is(err, ErrStockDrift) {
			return nil, err
		}
		if math.Abs(report.Drift) > qtyEpsilon {
			drifted = append(drifted, report)
		}
	}
	return drifted, nil
}
