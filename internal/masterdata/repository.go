package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// Repository reads catalog rows from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, tenant_id, company_id, code, name, category_name, base_unit, batch_tracked, perishable, min_stock, is_active`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.TenantID, &p.CompanyID, &p.Code, &p.Name, &p.CategoryName,
		&p.BaseUnit, &p.BatchTracked, &p.Perishable, &p.MinStock, &p.IsActive)
	return p, err
}

// GetProduct loads one product.
func (r *Repository) GetProduct(ctx context.Context, scope shared.Scope, productID int64) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products
WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// ListProducts lists active products, optionally filtered by category.
func (r *Repository) ListProducts(ctx context.Context, scope shared.Scope, category string) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE tenant_id=$1 AND company_id=$2 AND is_active
AND ($3::text IS NULL OR category_name=$3)
ORDER BY code LIMIT 500`,
		scope.TenantID, scope.CompanyID, nullString(category))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

// GetWarehouse loads one warehouse.
func (r *Repository) GetWarehouse(ctx context.Context, scope shared.Scope, warehouseID int64) (Warehouse, error) {
	var wh Warehouse
	err := r.pool.QueryRow(ctx, `SELECT id, tenant_id, company_id, code, name, address, is_active
FROM warehouses WHERE tenant_id=$1 AND company_id=$2 AND id=$3`,
		scope.TenantID, scope.CompanyID, warehouseID).Scan(
		&wh.ID, &wh.TenantID, &wh.CompanyID, &wh.Code, &wh.Name, &wh.Address, &wh.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warehouse{}, ErrWarehouseNotFound
		}
		return Warehouse{}, err
	}
	return wh, nil
}

// ListWarehouses lists active warehouses.
func (r *Repository) ListWarehouses(ctx context.Context, scope shared.Scope) ([]Warehouse, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, company_id, code, name, address, is_active
FROM warehouses WHERE tenant_id=$1 AND company_id=$2 AND is_active ORDER BY code`,
		scope.TenantID, scope.CompanyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	warehouses := []Warehouse{}
	for rows.Next() {
		var wh Warehouse
		if err := rows.Scan(&wh.ID, &wh.TenantID, &wh.CompanyID, &wh.Code, &wh.Name, &wh.Address, &wh.IsActive); err != nil {
			return nil, err
		}
		warehouses = append(warehouses, wh)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return warehouses, nil
}

// ListLowStock joins the stock cache against product reorder points.
func (r *Repository) ListLowStock(ctx context.Context, scope shared.Scope, warehouseID int64) ([]LowStockItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.code, p.name, w.id, w.name, ws.qty, p.min_stock
FROM warehouse_stocks ws
JOIN products p ON p.id = ws.product_id
JOIN warehouses w ON w.id = ws.warehouse_id
WHERE ws.tenant_id=$1 AND ws.company_id=$2
AND ($3 = 0 OR ws.warehouse_id=$3)
AND p.min_stock > 0 AND ws.qty <= p.min_stock
ORDER BY p.code, w.code`,
		scope.TenantID, scope.CompanyID, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []LowStockItem{}
	for rows.Next() {
		var item LowStockItem
		if err := rows.Scan(&item.ProductID, &item.ProductCode, &item.ProductName,
			&item.WarehouseID, &item.Warehouse, &item.Qty, &item.MinStock); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
