// Package stock provides the stock ledger: an append-only movement register
// kept alongside the live product quantity.
package stock

import (
	"context"
	"time"

	"invoiceflow/internal/core/entity"
	"invoiceflow/internal/core/id"
	"invoiceflow/internal/core/types"
)

// Repository defines operations for the movement register.
// Movements are insert-only; there is no update or delete.
type Repository interface {
	// CreateMovements batch inserts movements
	CreateMovements(ctx context.Context, movements []entity.StockMovement) error

	// OutstandingByInvoice returns, per product, the units deducted for an
	// invoice that have not been restored yet (OUT invoice_paid minus IN invoice_unpaid).
	OutstandingByInvoice(ctx context.Context, invoiceID id.ID) (map[id.ID]types.Quantity, error)

	// GetMovementHistory returns movement history for a product, newest first
	GetMovementHistory(ctx context.Context, productID id.ID, filter MovementFilter) ([]entity.StockMovement, error)

	// SumDeltas returns Σ delta per product for the tenant in ctx
	SumDeltas(ctx context.Context) (map[id.ID]types.Quantity, error)
}

// ProductLevel is the stock view of a product.
type ProductLevel struct {
	ProductID   id.ID
	SKU         string
	Name        string
	Quantity    types.Quantity
	MinQuantity types.Quantity
	Deleted     bool
}

// ProductStore is the product side of the ledger. The product catalog owns the rows;
// the ledger only reads levels and applies deltas.
type ProductStore interface {
	// LockLevels locks the given products FOR UPDATE in the order given.
	// Products of other tenants are absent from the result.
	LockLevels(ctx context.Context, productIDs []id.ID) (map[id.ID]ProductLevel, error)

	// GetLevels reads levels without locking. Deleted products are absent.
	GetLevels(ctx context.Context, productIDs []id.ID) (map[id.ID]ProductLevel, error)

	// ListLevels reads every live product of the tenant.
	ListLevels(ctx context.Context) ([]ProductLevel, error)

	// ApplyDelta adds delta to the product quantity and returns the new quantity.
	// It must refuse to take quantity below zero.
	ApplyDelta(ctx context.Context, productID id.ID, delta types.Quantity) (types.Quantity, error)
}

// MovementFilter for filtering movement history.
type MovementFilter struct {
	InvoiceID *id.ID
	Reason    string
	FromDate  *time.Time
	ToDate    *time.Time
	Limit     int
	Offset    int
}
