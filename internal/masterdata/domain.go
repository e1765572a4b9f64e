package masterdata

import (
	"fmt"

	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// Product is the catalog entry the inventory flows reference. Stock
// documents never mutate it; this package is a read-side lookup.
type Product struct {
	ID           int64   `json:"id"`
	TenantID     int64   `json:"tenant_id"`
	CompanyID    int64   `json:"company_id"`
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	CategoryName string  `json:"category_name"`
	BaseUnit     string  `json:"base_unit"`
	BatchTracked bool    `json:"batch_tracked"`
	Perishable   bool    `json:"perishable"`
	MinStock     float64 `json:"min_stock"`
	IsActive     bool    `json:"is_active"`
}

// Warehouse is a physical stock location.
type Warehouse struct {
	ID        int64  `json:"id"`
	TenantID  int64  `json:"tenant_id"`
	CompanyID int64  `json:"company_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Address   string `json:"address,omitempty"`
	IsActive  bool   `json:"is_active"`
}

// LowStockItem pairs a product with a warehouse position that fell to
// or under its reorder point.
type LowStockItem struct {
	ProductID   int64   `json:"product_id"`
	ProductCode string  `json:"product_code"`
	ProductName string  `json:"product_name"`
	WarehouseID int64   `json:"warehouse_id"`
	Warehouse   string  `json:"warehouse"`
	Qty         float64 `json:"qty"`
	MinStock    float64 `json:"min_stock"`
}

var (
	// ErrProductNotFound indicates a missing product in scope.
	ErrProductNotFound = fmt.Errorf("masterdata: product not found: %w", shared.ErrNotFound)
	// ErrWarehouseNotFound indicates a missing warehouse in scope.
	ErrWarehouseNotFound = fmt.Errorf("masterdata: warehouse not found: %w", shared.ErrNotFound)
)
