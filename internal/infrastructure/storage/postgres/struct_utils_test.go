package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"invoiceflow/internal/core/types"
	"invoiceflow/internal/domain/catalogs/product"
	"invoiceflow/internal/domain/invoice"
)

func TestExtractDBColumns_FlattensEmbedded(t *testing.T) {
	cols := ExtractDBColumns[product.Product]()

	assert.Equal(t, []string{"id", "tenant_id", "deletion_mark", "version"}, cols[:4])
	for _, expected := range []string{"code", "name", "description", "unit_price", "quantity", "min_quantity"} {
		assert.Contains(t, cols, expected)
	}
}

func TestExtractDBColumns_SkipsIgnoredFields(t *testing.T) {
	cols := ExtractDBColumns[invoice.Invoice]()

	assert.Contains(t, cols, "stock_deducted_at")
	assert.Contains(t, cols, "currency_decimals")
	assert.NotContains(t, cols, "items")
	assert.NotContains(t, cols, "-")
}

func TestStructToMap(t *testing.T) {
	p := product.NewProduct("tenant-a", "SKU-1", "Widget", types.NewMoneyFromInt(250), 7)
	p.Version = 3

	m := StructToMap(p)

	assert.Equal(t, p.ID, m["id"])
	assert.Equal(t, "tenant-a", m["tenant_id"])
	assert.Equal(t, 3, m["version"])
	assert.Equal(t, "SKU-1", m["code"])
	assert.Equal(t, types.Quantity(7), m["quantity"])

	trimmed := Without(m, "quantity", "version")
	assert.NotContains(t, trimmed, "quantity")
	assert.Contains(t, m, "quantity")

	assert.Nil(t, StructToMap((*product.Product)(nil)))
	assert.Nil(t, StructToMap(42))
}
