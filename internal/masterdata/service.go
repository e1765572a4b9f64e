package masterdata

import (
	"context"
	"log/slog"

	"github.com/niaga-erp/niaga-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	GetProduct(ctx context.Context, scope shared.Scope, productID int64) (Product, error)
	ListProducts(ctx context.Context, scope shared.Scope, category string) ([]Product, error)
	GetWarehouse(ctx context.Context, scope shared.Scope, warehouseID int64) (Warehouse, error)
	ListWarehouses(ctx context.Context, scope shared.Scope) ([]Warehouse, error)
	ListLowStock(ctx context.Context, scope shared.Scope, warehouseID int64) ([]LowStockItem, error)
}

// Service exposes catalog lookups to the stock and fulfillment flows.
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

// GetProduct fetches one product.
func (s *Service) GetProduct(ctx context.Context, scope shared.Scope, productID int64) (Product, error) {
	if err := scope.Validate(); err != nil {
		return Product{}, err
	}
	return s.repo.GetProduct(ctx, scope, productID)
}

// ListProducts lists active products.
func (s *Service) ListProducts(ctx context.Context, scope shared.Scope, category string) ([]Product, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, scope, category)
}

// ProductCategory returns the category name for tolerance resolution.
// A missing product maps to the empty category so the resolver falls
// through to company level.
func (s *Service) ProductCategory(ctx context.Context, scope shared.Scope, productID int64) (string, error) {
	p, err := s.repo.GetProduct(ctx, scope, productID)
	if err != nil {
		return "", err
	}
	return p.CategoryName, nil
}

// BatchRequired reports whether a product tracks batches, so outbound
// flows can insist on a batch reference.
func (s *Service) BatchRequired(ctx context.Context, scope shared.Scope, productID int64) (bool, error) {
	p, err := s.repo.GetProduct(ctx, scope, productID)
	if err != nil {
		return false, err
	}
	return p.BatchTracked, nil
}

// GetWarehouse fetches one warehouse.
func (s *Service) GetWarehouse(ctx context.Context, scope shared.Scope, warehouseID int64) (Warehouse, error) {
	if err := scope.Validate(); err != nil {
		return Warehouse{}, err
	}
	return s.repo.GetWarehouse(ctx, scope, warehouseID)
}

// ListWarehouses lists active warehouses.
func (s *Service) ListWarehouses(ctx context.Context, scope shared.Scope) ([]Warehouse, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListWarehouses(ctx, scope)
}

// ListLowStock reports positions at or under their reorder point.
// warehouseID 0 scans every warehouse in scope.
func (s *Service) ListLowStock(ctx context.Context, scope shared.Scope, warehouseID int64) ([]LowStockItem, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListLowStock(ctx, scope, warehouseID)
}
