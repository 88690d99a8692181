// Package product provides the product catalog: tenant-scoped goods with a
// live on-hand quantity kept in step with the stock ledger.
package product

import (
	"context"

	"invoiceflow/internal/core/apperror"
	"invoiceflow/internal/core/entity"
	"invoiceflow/internal/core/types"
)

// Product is a catalog entry. Code holds the SKU.
type Product struct {
	entity.Catalog

	Description *string `db:"description" json:"description,omitempty"`

	// UnitPrice is the default selling price copied onto new invoice lines
	UnitPrice types.Money `db:"unit_price" json:"unitPrice"`

	// Quantity is the on-hand stock. It changes only through the stock ledger.
	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// MinQuantity is the reorder threshold
	MinQuantity types.Quantity `db:"min_quantity" json:"minQuantity"`
}

// NewProduct creates a product with an opening quantity.
func NewProduct(tenantID, sku, name string, unitPrice types.Money, quantity types.Quantity) *Product {
	return &Product{
		Catalog:   entity.NewCatalog(tenantID, sku, name),
		UnitPrice: unitPrice,
		Quantity:  quantity,
	}
}

// SKU returns the product code.
func (p *Product) SKU() string { return p.Code }

// IsLowStock reports whether stock is at or under the reorder threshold.
func (p *Product) IsLowStock() bool {
	return p.MinQuantity.IsPositive() && p.Quantity <= p.MinQuantity
}

// Validate implements entity.Validatable.
func (p *Product) Validate(ctx context.Context) error {
	if err := p.Catalog.Validate(ctx); err != nil {
		if appErr, ok := apperror.AsAppError(err); ok && appErr.Details["field"] == "code" {
			return apperror.NewValidation("sku is required").WithDetail("field", "sku")
		}
		return err
	}

	if p.UnitPrice.IsNegative() {
		return apperror.NewValidation("unit price cannot be negative").
			WithDetail("field", "unitPrice")
	}
	if p.Quantity.IsNegative() {
		return apperror.NewValidation("quantity cannot be negative").
			WithDetail("field", "quantity")
	}
	if p.MinQuantity.IsNegative() {
		return apperror.NewValidation("min quantity cannot be negative").
			WithDetail("field", "minQuantity")
	}

	return nil
}
