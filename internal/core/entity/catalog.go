package entity

import (
	"context"
	"strings"

	"invoiceflow/internal/core/apperror"
)

// Catalog is the base type for reference data such as products.
type Catalog struct {
	BaseCatalog

	// Code is a human-readable identifier (unique within tenant)
	Code string `db:"code" json:"code"`

	// Name is the display name
	Name string `db:"name" json:"name"`
}

// NewCatalog creates a new Catalog with generated ID.
func NewCatalog(tenantID, code, name string) Catalog {
	return Catalog{
		BaseCatalog: NewBaseCatalog(tenantID),
		Code:        code,
		Name:        name,
	}
}

// Validate implements Validatable interface.
func (c *Catalog) Validate(ctx context.Context) error {
	if strings.TrimSpace(c.Name) == "" {
		return apperror.NewValidation("name is required").
			WithDetail("field", "name")
	}
	if strings.TrimSpace(c.Code) == "" {
		return apperror.NewValidation("code is required").
			WithDetail("field", "code")
	}
	return nil
}
