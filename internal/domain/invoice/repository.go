package invoice

import (
	"context"

	"invoiceflow/internal/core/id"
	"invoiceflow/internal/domain"
)

// ListFilter narrows invoice listings.
type ListFilter struct {
	domain.ListFilter

	Statuses      []Status
	Type          Type
	StockDeducted *bool
}

// Repository persists invoices and their items. All methods are scoped to the
// tenant in ctx; soft-deleted invoices are not found.
type Repository interface {
	// Create inserts the header and its items.
	Create(ctx context.Context, inv *Invoice) error

	// GetByID loads the header and items.
	GetByID(ctx context.Context, invoiceID id.ID) (*Invoice, error)

	// GetForUpdate loads the invoice with a row lock held until the transaction ends.
	GetForUpdate(ctx context.Context, invoiceID id.ID) (*Invoice, error)

	// Update writes the header with optimistic locking and bumps inv.Version.
	Update(ctx context.Context, inv *Invoice) error

	// SaveItems replaces all items of an invoice.
	SaveItems(ctx context.Context, invoiceID id.ID, items []Item) error

	// Delete sets the deletion mark.
	Delete(ctx context.Context, invoiceID id.ID) error

	// List returns headers without items.
	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Invoice], error)
}
