package batch

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/niaga-erp/niaga-erp/internal/ledger"
	"github.com/niaga-erp/niaga-erp/internal/platform/db"
	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// Repository persists product batches in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("batch repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const batchColumns = `id, tenant_id, company_id, stock_id, product_id, batch_number, manufacture_date, expiry_date, qty, status, quality_passed, created_at, updated_at`

func scanBatch(row pgx.Row) (ProductBatch, error) {
	var b ProductBatch
	err := row.Scan(&b.ID, &b.TenantID, &b.CompanyID, &b.StockID, &b.ProductID, &b.BatchNumber,
		&b.ManufactureDate, &b.ExpiryDate, &b.Qty, &b.Status, &b.QualityPassed, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

// GetBatch returns one batch in scope.
func (r *Repository) GetBatch(ctx context.Context, scope shared.Scope, batchID int64) (ProductBatch, error) {
	b, err := scanBatch(r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM product_batches
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, batchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductBatch{}, ErrBatchNotFound
		}
		return ProductBatch{}, err
	}
	return b, nil
}

// ListByStock lists batches for a stock row, oldest expiry first so FEFO
// picking falls out of the default order.
func (r *Repository) ListByStock(ctx context.Context, scope shared.Scope, stockID int64) ([]ProductBatch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+` FROM product_batches
WHERE tenant_id=$1 AND company_id=$2 AND stock_id=$3
ORDER BY expiry_date ASC NULLS LAST, id ASC`,
		scope.TenantID, scope.CompanyID, stockID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBatches(rows)
}

// ListExpiring returns AVAILABLE or RESERVED batches whose expiry falls
// before the cutoff.
func (r *Repository) ListExpiring(ctx context.Context, scope shared.Scope, before time.Time) ([]ProductBatch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+` FROM product_batches
WHERE tenant_id=$1 AND company_id=$2 AND expiry_date IS NOT NULL AND expiry_date < $3
  AND status IN ($4, $5)
ORDER BY expiry_date ASC, id ASC`,
		scope.TenantID, scope.CompanyID, before, string(StatusAvailable), string(StatusReserved))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBatches(rows)
}

func collectBatches(rows pgx.Rows) ([]ProductBatch, error) {
	batches := []ProductBatch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *txRepository) GetBatchForUpdate(ctx context.Context, scope shared.Scope, batchID int64) (ProductBatch, error) {
	b, err := scanBatch(r.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM product_batches
WHERE tenant_id=$1 AND company_id=$2 AND id=$3 FOR UPDATE`,
		scope.TenantID, scope.CompanyID, batchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductBatch{}, ErrBatchNotFound
		}
		return ProductBatch{}, err
	}
	return b, nil
}

func (r *txRepository) InsertBatch(ctx context.Context, b ProductBatch) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO product_batches (tenant_id, company_id, stock_id, product_id, batch_number, manufacture_date, expiry_date, qty, status, quality_passed, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW()) RETURNING id`,
		b.TenantID, b.CompanyID, b.StockID, b.ProductID, b.BatchNumber,
		b.ManufactureDate, b.ExpiryDate, b.Qty, string(b.Status), b.QualityPassed).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateBatchNumber
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) UpdateBatch(ctx context.Context, b ProductBatch) error {
	tag, err := r.tx.Exec(ctx, `UPDATE product_batches
SET qty=$4, status=$5, quality_passed=$6, updated_at=NOW()
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		b.TenantID, b.CompanyID, b.ID, b.Qty, string(b.Status), b.QualityPassed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (r *txRepository) SumBatchQty(ctx context.Context, scope shared.Scope, stockID int64, excludeBatchID int64) (float64, error) {
	var sum float64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(qty), 0) FROM product_batches
WHERE tenant_id=$1 AND company_id=$2 AND stock_id=$3 AND id<>$4
  AND status IN ($5, $6)`,
		scope.TenantID, scope.CompanyID, stockID, excludeBatchID,
		string(StatusAvailable), string(StatusReserved)).Scan(&sum)
	return sum, err
}

// GetStockForShare locks the owning stock row in share mode so batch
// creation serialises against concurrent movements.
func (r *txRepository) GetStockForShare(ctx context.Context, scope shared.Scope, warehouseID, productID int64) (int64, float64, error) {
	var id int64
	var qty float64
	err := r.tx.QueryRow(ctx, `SELECT id, quantity FROM warehouse_stocks
WHERE tenant_id=$1 AND company_id=$2 AND warehouse_id=$3 AND product_id=$4 FOR SHARE`,
		scope.TenantID, scope.CompanyID, warehouseID, productID).Scan(&id, &qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, ledger.ErrStockNotFound
		}
		return 0, 0, err
	}
	return id, qty, nil
}

func (r *txRepository) GetStockQty(ctx context.Context, scope shared.Scope, stockID int64) (float64, error) {
	var qty float64
	err := r.tx.QueryRow(ctx, `SELECT quantity FROM warehouse_stocks
WHERE tenant_id=$1 AND company_id=$2 AND id=$3 FOR SHARE`,
		scope.TenantID, scope.CompanyID, stockID).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ledger.ErrStockNotFound
		}
		return 0, err
	}
	return qty, nil
}

func (r *txRepository) BatchNumberExists(ctx context.Context, scope shared.Scope, productID int64, number string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM product_batches
WHERE tenant_id=$1 AND company_id=$2 AND product_id=$3 AND batch_number=$4)`,
		scope.TenantID, scope.CompanyID, productID, number).Scan(&exists)
	return exists, err
}
