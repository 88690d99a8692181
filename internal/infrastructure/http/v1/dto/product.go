package dto

import (
	"github.com/shopspring/decimal"

	"invoiceflow/internal/core/types"
	"invoiceflow/internal/domain/catalogs/product"
)

// CreateProductRequest is the request body for creating a product.
// Quantity is the opening balance.
type CreateProductRequest struct {
	SKU         string          `json:"sku" binding:"required"`
	Name        string          `json:"name" binding:"required"`
	Description *string         `json:"description"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int64           `json:"quantity"`
	MinQuantity int64           `json:"minQuantity"`
}

// ToEntity converts DTO to domain entity.
func (r *CreateProductRequest) ToEntity() *product.Product {
	p := product.NewProduct("", r.SKU, r.Name, r.UnitPrice, types.Quantity(r.Quantity))
	p.Description = r.Description
	p.MinQuantity = types.Quantity(r.MinQuantity)
	return p
}

// UpdateProductRequest changes catalog fields. Quantity is not editable here;
// use restock or adjust.
type UpdateProductRequest struct {
	SKU         string          `json:"sku" binding:"required"`
	Name        string          `json:"name" binding:"required"`
	Description *string         `json:"description"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	MinQuantity int64           `json:"minQuantity"`
	Version     int             `json:"version" binding:"required,min=1"`
}

// ApplyTo applies DTO fields onto an existing product.
func (r *UpdateProductRequest) ApplyTo(p *product.Product) {
	p.Code = r.SKU
	p.Name = r.Name
	p.Description = r.Description
	p.UnitPrice = r.UnitPrice
	p.MinQuantity = types.Quantity(r.MinQuantity)
	p.Version = r.Version
}

// RestockRequest receives goods into stock.
type RestockRequest struct {
	Quantity int64  `json:"quantity" binding:"required,min=1"`
	Reason   string `json:"reason"`
}

// AdjustRequest corrects stock by a signed delta.
type AdjustRequest struct {
	Delta  int64  `json:"delta" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// ProductResponse is the API representation of a product.
type ProductResponse struct {
	BaseResponse
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int64           `json:"quantity"`
	MinQuantity int64           `json:"minQuantity"`
	LowStock    bool            `json:"lowStock"`
}

// FromProduct converts entity to response DTO.
func FromProduct(p *product.Product) ProductResponse {
	return ProductResponse{
		BaseResponse: FromBaseCatalog(p.BaseCatalog),
		SKU:          p.Code,
		Name:         p.Name,
		Description:  p.Description,
		UnitPrice:    p.UnitPrice,
		Quantity:     p.Quantity.Int64(),
		MinQuantity:  p.MinQuantity.Int64(),
		LowStock:     p.IsLowStock(),
	}
}

// StockChangeResponse returns the product after a stock change with the movement written.
type StockChangeResponse struct {
	Product  ProductResponse       `json:"product"`
	Movement StockMovementResponse `json:"movement"`
}
