package product

import (
	"context"

	"invoiceflow/internal/domain"
	"invoiceflow/internal/domain/registers/stock"
)

// Repository defines the interface for Product persistence.
// Update never writes quantity; stock changes go through stock.ProductStore.
type Repository interface {
	domain.CatalogRepository[*Product]
	stock.ProductStore

	// FindLowStock retrieves products at or below their minimum quantity.
	FindLowStock(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*Product], error)
}
