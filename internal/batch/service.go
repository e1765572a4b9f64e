package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBatch(ctx context.Context, scope shared.Scope, batchID int64) (ProductBatch, error)
	ListByStock(ctx context.Context, scope shared.Scope, stockID int64) ([]ProductBatch, error)
	ListExpiring(ctx context.Context, scope shared.Scope, before time.Time) ([]ProductBatch, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetBatchForUpdate(ctx context.Context, scope shared.Scope, batchID int64) (ProductBatch, error)
	InsertBatch(ctx context.Context, b ProductBatch) (int64, error)
	UpdateBatch(ctx context.Context, b ProductBatch) error
	SumBatchQty(ctx context.Context, scope shared.Scope, stockID int64, excludeBatchID int64) (float64, error)
	GetStockForShare(ctx context.Context, scope shared.Scope, warehouseID, productID int64) (stockID int64, qty float64, err error)
	GetStockQty(ctx context.Context, scope shared.Scope, stockID int64) (float64, error)
	BatchNumberExists(ctx context.Context, scope shared.Scope, productID int64, number string) (bool, error)
}

// Service coordinates batch lifecycle operations.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Create registers a batch for quantity brought in by a receipt or
// initial stock action. The caller must already have posted the IN
// movement; batch quantities can never exceed the owning stock row.
func (s *Service) Create(ctx context.Context, input CreateInput) (ProductBatch, error) {
	if err := input.Scope.Validate(); err != nil {
		return ProductBatch{}, err
	}
	if input.WarehouseID == 0 || input.ProductID == 0 {
		return ProductBatch{}, fmt.Errorf("%w: warehouse and product required", shared.ErrValidation)
	}
	if input.BatchNumber == "" {
		return ProductBatch{}, fmt.Errorf("%w: batch number required", shared.ErrValidation)
	}
	if input.Qty <= 0 {
		return ProductBatch{}, fmt.Errorf("%w: batch quantity must be positive", shared.ErrValidation)
	}
	if input.ManufactureDate != nil && input.ExpiryDate != nil && input.ExpiryDate.Before(*input.ManufactureDate) {
		return ProductBatch{}, fmt.Errorf("%w: expiry before manufacture date", shared.ErrValidation)
	}

	var created ProductBatch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		exists, err := tx.BatchNumberExists(ctx, input.Scope, input.ProductID, input.BatchNumber)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateBatchNumber
		}
		stockID, stockQty, err := tx.GetStockForShare(ctx, input.Scope, input.WarehouseID, input.ProductID)
		if err != nil {
			return err
		}
		tracked, err := tx.SumBatchQty(ctx, input.Scope, stockID, 0)
		if err != nil {
			return err
		}
		if tracked+input.Qty > stockQty+qtyEpsilon {
			return ErrQtyExceedsStock
		}
		b := ProductBatch{
			TenantID:        input.Scope.TenantID,
			CompanyID:       input.Scope.CompanyID,
			StockID:         stockID,
			ProductID:       input.ProductID,
			BatchNumber:     input.BatchNumber,
			ManufactureDate: input.ManufactureDate,
			ExpiryDate:      input.ExpiryDate,
			Qty:             input.Qty,
			Status:          StatusAvailable,
			QualityPassed:   input.QualityPassed,
		}
		id, err := tx.InsertBatch(ctx, b)
		if err != nil {
			return err
		}
		b.ID = id
		created = b
		return nil
	})
	if err != nil {
		return ProductBatch{}, err
	}
	return created, nil
}

// Transition moves a batch through the status allow-list. Administrative
// states (EXPIRED, DAMAGED, RECALLED) are terminal.
func (s *Service) Transition(ctx context.Context, scope shared.Scope, batchID int64, next Status) (ProductBatch, error) {
	if err := scope.Validate(); err != nil {
		return ProductBatch{}, err
	}
	if !next.IsValid() {
		return ProductBatch{}, fmt.Errorf("%w: unknown batch status %q", shared.ErrValidation, next)
	}
	var updated ProductBatch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.GetBatchForUpdate(ctx, scope, batchID)
		if err != nil {
			return err
		}
		if !b.Status.CanTransition(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, next)
		}
		b.Status = next
		if err := tx.UpdateBatch(ctx, b); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return ProductBatch{}, err
	}
	return updated, nil
}

// Consume reduces a batch's quantity when its stock ships or transfers
// out. A fully consumed reserved batch is marked SOLD.
func (s *Service) Consume(ctx context.Context, scope shared.Scope, batchID int64, qty float64) (ProductBatch, error) {
	if err := scope.Validate(); err != nil {
		return ProductBatch{}, err
	}
	if qty <= 0 {
		return ProductBatch{}, fmt.Errorf("%w: consume quantity must be positive", shared.ErrValidation)
	}
	var updated ProductBatch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.GetBatchForUpdate(ctx, scope, batchID)
		if err != nil {
			return err
		}
		if b.Qty+qtyEpsilon < qty {
			return ErrInsufficientBatchQty
		}
		b.Qty -= qty
		if b.Qty < qtyEpsilon {
			b.Qty = 0
			if b.Status == StatusReserved {
				b.Status = StatusSold
			}
		}
		if err := tx.UpdateBatch(ctx, b); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return ProductBatch{}, err
	}
	return updated, nil
}

// Replenish adds quantity back to a batch (transfer receipt, return),
// still bounded by the owning stock row.
func (s *Service) Replenish(ctx context.Context, scope shared.Scope, batchID int64, qty float64) (ProductBatch, error) {
	if err := scope.Validate(); err != nil {
		return ProductBatch{}, err
	}
	if qty <= 0 {
		return ProductBatch{}, fmt.Errorf("%w: replenish quantity must be positive", shared.ErrValidation)
	}
	var updated ProductBatch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.GetBatchForUpdate(ctx, scope, batchID)
		if err != nil {
			return err
		}
		tracked, err := tx.SumBatchQty(ctx, scope, b.StockID, b.ID)
		if err != nil {
			return err
		}
		stockQty, err := tx.GetStockQty(ctx, scope, b.StockID)
		if err != nil {
			return err
		}
		if tracked+b.Qty+qty > stockQty+qtyEpsilon {
			return ErrQtyExceedsStock
		}
		b.Qty += qty
		if err := tx.UpdateBatch(ctx, b); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return ProductBatch{}, err
	}
	return updated, nil
}

// Get fetches a batch by id.
func (s *Service) Get(ctx context.Context, scope shared.Scope, batchID int64) (ProductBatch, error) {
	if err := scope.Validate(); err != nil {
		return ProductBatch{}, err
	}
	return s.repo.GetBatch(ctx, scope, batchID)
}

// ListByStock lists the batches owned by a stock row.
func (s *Service) ListByStock(ctx context.Context, scope shared.Scope, stockID int64) ([]ProductBatch, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListByStock(ctx, scope, stockID)
}

// ListExpiringSoon lists live batches whose expiry falls within the
// next days.
func (s *Service) ListExpiringSoon(ctx context.Context, scope shared.Scope, days int) ([]ProductBatch, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if days <= 0 {
		return nil, fmt.Errorf("%w: days must be positive", shared.ErrValidation)
	}
	return s.repo.ListExpiring(ctx, scope, time.Now().AddDate(0, 0, days))
}

// SweepExpired marks overdue AVAILABLE/RESERVED batches EXPIRED and
// returns how many were swept. Called by the periodic expiry job.
func (s *Service) SweepExpired(ctx context.Context, scope shared.Scope, now time.Time) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	overdue, err := s.repo.ListExpiring(ctx, scope, now)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, b := range overdue {
		if !b.Status.CanTransition(StatusExpired) {
			continue
		}
		if _, err := s.Transition(ctx, scope, b.ID, StatusExpired); err != nil {
			s.logger.Warn("expiry sweep skipped batch",
				slog.Int64("batch_id", b.ID), slog.Any("error", err))
			continue
		}
		swept++
	}
	return swept, nil
}

const qtyEpsilon = 1e-6
