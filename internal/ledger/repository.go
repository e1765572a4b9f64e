package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/niaga-erp/niaga-erp/internal/platform/db"
	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// Repository persists the movement log and stock cache in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetStockForUpdate(ctx context.Context, scope shared.Scope, warehouseID, productID int64) (WarehouseStock, error)
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
	UpsertStock(ctx context.Context, stock WarehouseStock) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const stockColumns = `id, tenant_id, company_id, warehouse_id, product_id, quantity, min_stock, max_stock, bin_location, updated_at`

func scanStock(row pgx.Row) (WarehouseStock, error) {
	var stock WarehouseStock
	err := row.Scan(&stock.ID, &stock.TenantID, &stock.CompanyID, &stock.WarehouseID, &stock.ProductID,
		&stock.Quantity, &stock.MinStock, &stock.MaxStock, &stock.BinLocation, &stock.UpdatedAt)
	return stock, err
}

// GetStock returns the cache row for one key.
func (r *Repository) GetStock(ctx context.Context, scope shared.Scope, warehouseID, productID int64) (WarehouseStock, error) {
	stock, err := scanStock(r.pool.QueryRow(ctx, `SELECT `+stockColumns+` FROM warehouse_stocks
WHERE tenant_id=$1 AND company_id=$2 AND warehouse_id=$3 AND product_id=$4`,
		scope.TenantID, scope.CompanyID, warehouseID, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WarehouseStock{}, ErrStockNotFound
		}
		return WarehouseStock{}, err
	}
	return stock, nil
}

// ListMovements lists log entries for a key ordered by creation.
func (r *Repository) ListMovements(ctx context.Context, scope shared.Scope, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, company_id, warehouse_id, product_id, batch_id, movement_type, qty, stock_before, stock_after, ref_type, ref_id, ref_number, note, created_by, created_at
FROM inventory_movements
WHERE tenant_id=$1 AND company_id=$2 AND warehouse_id=$3 AND product_id=$4
  AND ($5::text IS NULL OR movement_type=$5)
  AND created_at BETWEEN COALESCE($6, '-infinity') AND COALESCE($7, 'infinity')
ORDER BY created_at ASC, id ASC
LIMIT $8`,
		scope.TenantID, scope.CompanyID, filter.WarehouseID, filter.ProductID,
		nullString(string(filter.Type)), nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.TenantID, &m.CompanyID, &m.WarehouseID, &m.ProductID, &m.BatchID,
			&m.Type, &m.Qty, &m.StockBefore, &m.StockAfter, &m.Ref.Type, &m.Ref.ID, &m.Ref.Number,
			&m.Note, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

// SumMovements computes the running sum of deltas for one key.
func (r *Repository) SumMovements(ctx context.Context, scope shared.Scope, warehouseID, productID int64) (float64, error) {
	var sum float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(qty), 0) FROM inventory_movements
WHERE tenant_id=$1 AND company_id=$2 AND warehouse_id=$3 AND product_id=$4`,
		scope.TenantID, scope.CompanyID, warehouseID, productID).Scan(&sum)
	return sum, err
}

// ListStockKeys returns every cache row in scope for integrity scans.
func (r *Repository) ListStockKeys(ctx context.Context, scope shared.Scope) ([]WarehouseStock, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+stockColumns+` FROM warehouse_stocks
WHERE tenant_id=$1 AND company_id=$2 ORDER BY warehouse_id, product_id`,
		scope.TenantID, scope.CompanyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	stocks := []WarehouseStock{}
	for rows.Next() {
		stock, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		stocks = append(stocks, stock)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stocks, nil
}

// UpdateStockSettings stores thresholds and bin location on an existing row.
func (r *Repository) UpdateStockSettings(ctx context.Context, input StockSettingsInput) error {
	tag, err := r.pool.Exec(ctx, `UPDATE warehouse_stocks
SET min_stock=$5, max_stock=$6, bin_location=$7, updated_at=NOW()
WHERE tenant_id=$1 AND company_id=$2 AND warehouse_id=$3 AND product_id=$4`,
		input.Scope.TenantID, input.Scope.CompanyID, input.WarehouseID, input.ProductID,
		input.MinStock, input.MaxStock, input.BinLocation)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStockNotFound
	}
	return nil
}

func (r *txRepository) GetStockForUpdate(ctx context.Context, scope shared.Scope, warehouseID, productID int64) (WarehouseStock, error) {
	stock, err := scanStock(r.tx.QueryRow(ctx, `SELECT `+stockColumns+` FROM warehouse_stocks
WHERE tenant_id=$1 AND company_id=$2 AND warehouse_id=$3 AND product_id=$4 FOR UPDATE`,
		scope.TenantID, scope.CompanyID, warehouseID, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WarehouseStock{}, ErrStockNotFound
		}
		return WarehouseStock{}, err
	}
	return stock, nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_movements (tenant_id, company_id, warehouse_id, product_id, batch_id, movement_type, qty, stock_before, stock_after, ref_type, ref_id, ref_number, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW()) RETURNING id`,
		m.TenantID, m.CompanyID, m.WarehouseID, m.ProductID, m.BatchID, string(m.Type), m.Qty,
		m.StockBefore, m.StockAfter, m.Ref.Type, m.Ref.ID, m.Ref.Number, m.Note, nullInt(m.CreatedBy)).Scan(&id)
	return id, err
}

func (r *txRepository) UpsertStock(ctx context.Context, stock WarehouseStock) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO warehouse_stocks (tenant_id, company_id, warehouse_id, product_id, quantity, min_stock, max_stock, bin_location, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
ON CONFLICT (tenant_id, company_id, warehouse_id, product_id)
DO UPDATE SET quantity=EXCLUDED.quantity, updated_at=NOW()`,
		stock.TenantID, stock.CompanyID, stock.WarehouseID, stock.ProductID,
		stock.Quantity, stock.MinStock, stock.MaxStock, stock.BinLocation)
	return err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
