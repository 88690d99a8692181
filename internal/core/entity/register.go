// Package entity provides core domain entities.
package entity

import (
	"time"

	"invoiceflow/internal/core/id"
	"invoiceflow/internal/core/types"
)

// MovementType defines the direction of a stock ledger row.
type MovementType string

const (
	// MovementIn increases on-hand stock
	MovementIn MovementType = "IN"
	// MovementOut decreases on-hand stock
	MovementOut MovementType = "OUT"
	// MovementAdjustment corrects on-hand stock in either direction
	MovementAdjustment MovementType = "ADJUSTMENT"
)

// Movement reasons written by the ledger.
const (
	ReasonInvoicePaid    = "invoice_paid"
	ReasonInvoiceUnpaid  = "invoice_unpaid"
	ReasonRestock        = "restock"
	ReasonAdjustment     = "adjustment"
	ReasonOpeningBalance = "opening_balance"
)

// StockMovement is one append-only row of the stock ledger.
// Movements are never updated or deleted.
type StockMovement struct {
	ID        id.ID        `db:"id" json:"id"`
	TenantID  string       `db:"tenant_id" json:"-"`
	ProductID id.ID        `db:"product_id" json:"productId"`
	Type      MovementType `db:"type" json:"type"`

	// Quantity is always positive
	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// Delta is the signed effect on Product.quantity
	Delta types.Quantity `db:"delta" json:"delta"`

	Reason    string    `db:"reason" json:"reason"`
	InvoiceID *id.ID    `db:"invoice_id" json:"invoiceId,omitempty"`
	CreatedBy string    `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// NewStockMovement creates a movement whose delta follows its type.
// For ADJUSTMENT the sign of delta is taken as given and quantity is its magnitude.
func NewStockMovement(tenantID string, productID id.ID, movementType MovementType, delta types.Quantity, reason string, invoiceID *id.ID, createdBy string) StockMovement {
	qty := delta.Abs()
	switch movementType {
	case MovementIn:
		delta = qty
	case MovementOut:
		delta = qty.Neg()
	}

	return StockMovement{
		ID:        id.New(),
		TenantID:  tenantID,
		ProductID: productID,
		Type:      movementType,
		Quantity:  qty,
		Delta:     delta,
		Reason:    reason,
		InvoiceID: invoiceID,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
}
