package masterdata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/niaga-erp/niaga-erp/internal/shared"
)

type memoryRepo struct {
	products   map[int64]Product
	warehouses map[int64]Warehouse
	lowStock   []LowStockItem
}

func (r *memoryRepo) GetProduct(ctx context.Context, scope shared.Scope, productID int64) (Product, error) {
	if p, ok := r.products[productID]; ok {
		return p, nil
	}
	return Product{}, ErrProductNotFound
}

func (r *memoryRepo) ListProducts(ctx context.Context, scope shared.Scope, category string) ([]Product, error) {
	var out []Product
	for _, p := range r.products {
		if category == "" || p.CategoryName == category {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetWarehouse(ctx context.Context, scope shared.Scope, warehouseID int64) (Warehouse, error) {
	if wh, ok := r.warehouses[warehouseID]; ok {
		return wh, nil
	}
	return Warehouse{}, ErrWarehouseNotFound
}

func (r *memoryRepo) ListWarehouses(ctx context.Context, scope shared.Scope) ([]Warehouse, error) {
	var out []Warehouse
	for _, wh := range r.warehouses {
		out = append(out, wh)
	}
	return out, nil
}

func (r *memoryRepo) ListLowStock(ctx context.Context, scope shared.Scope, warehouseID int64) ([]LowStockItem, error) {
	var out []LowStockItem
	for _, item := range r.lowStock {
		if warehouseID == 0 || item.WarehouseID == warehouseID {
			out = append(out, item)
		}
	}
	return out, nil
}

var testScope = shared.Scope{TenantID: 1, CompanyID: 1}

func TestProductCategoryLookup(t *testing.T) {
	repo := &memoryRepo{products: map[int64]Product{
		7: {ID: 7, Code: "TEH-01", CategoryName: "beverages"},
	}}
	svc := NewService(repo, nil)

	category, err := svc.ProductCategory(context.Background(), testScope, 7)
	require.NoError(t, err)
	require.Equal(t, "beverages", category)

	_, err = svc.ProductCategory(context.Background(), testScope, 999)
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestListLowStockFiltersWarehouse(t *testing.T) {
	repo := &memoryRepo{lowStock: []LowStockItem{
		{ProductID: 7, WarehouseID: 1, Qty: 2, MinStock: 10},
		{ProductID: 8, WarehouseID: 2, Qty: 0, MinStock: 5},
	}}
	svc := NewService(repo, nil)

	all, err := svc.ListLowStock(context.Background(), testScope, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	one, err := svc.ListLowStock(context.Background(), testScope, 2)
	require.NoError(t, err)
	require.Len(t, one, 1)
	require.Equal(t, int64(8), one[0].ProductID)
}
