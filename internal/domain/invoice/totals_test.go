package invoice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoiceflow/internal/core/types"
)

func money(s string) types.Money {
	return types.MustMoney(s)
}

func TestCalculateTotals(t *testing.T) {
	tests := []struct {
		name     string
		items    []Item
		taxRate  string
		decimals int32
		subtotal string
		tax      string
		total    string
	}{
		{
			name:     "no items",
			taxRate:  "18",
			subtotal: "0",
			tax:      "0",
			total:    "0",
		},
		{
			name: "whole currency rounds half away from zero",
			items: []Item{
				{UnitPrice: money("1000"), Quantity: 1},
				{UnitPrice: money("5"), Quantity: 1},
			},
			taxRate:  "18",
			subtotal: "1005",
			tax:      "181",
			total:    "1186",
		},
		{
			name:     "exact half goes up",
			items:    []Item{{UnitPrice: money("5"), Quantity: 1}},
			taxRate:  "10",
			subtotal: "5",
			tax:      "1",
			total:    "6",
		},
		{
			name:     "two decimals",
			items:    []Item{{UnitPrice: money("3.35"), Quantity: 3}},
			taxRate:  "18",
			decimals: 2,
			subtotal: "10.05",
			tax:      "1.81",
			total:    "11.86",
		},
		{
			name:     "zero tax",
			items:    []Item{{UnitPrice: money("250"), Quantity: 4}},
			taxRate:  "0",
			subtotal: "1000",
			tax:      "0",
			total:    "1000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateTotals(tt.items, money(tt.taxRate), tt.decimals)

			assert.True(t, money(tt.subtotal).Equal(got.Subtotal), "subtotal %s", got.Subtotal)
			assert.True(t, money(tt.tax).Equal(got.TaxAmount), "tax %s", got.TaxAmount)
			assert.True(t, money(tt.total).Equal(got.Total), "total %s", got.Total)
			assert.True(t, got.Total.Equal(got.Subtotal.Add(got.TaxAmount)))
			assert.Len(t, got.LineTotals, len(tt.items))
		})
	}
}

func TestRecalcTotals_Idempotent(t *testing.T) {
	inv := NewInvoice("t1", TypeInvoice, "ACME")
	inv.TaxRate = money("18")
	inv.AddItem(nil, "consulting", money("1000"), 1)
	inv.AddItem(nil, "travel", money("5"), 1)

	inv.RecalcTotals()
	first := []types.Money{inv.Subtotal, inv.TaxAmount, inv.Total}
	inv.RecalcTotals()

	assert.True(t, first[0].Equal(inv.Subtotal))
	assert.True(t, first[1].Equal(inv.TaxAmount))
	assert.True(t, first[2].Equal(inv.Total))
	assert.True(t, money("1000").Equal(inv.Items[0].LineTotal))
	assert.Equal(t, 2, inv.Items[1].LineNo)
}

func TestValidate(t *testing.T) {
	valid := func() *Invoice {
		inv := NewInvoice("t1", TypeInvoice, "ACME")
		inv.Currency = "XOF"
		inv.AddItem(nil, "consulting", money("1000"), 2)
		return inv
	}
	require.NoError(t, valid().Validate(t.Context()))

	tests := []struct {
		name  string
		field string
		edit  func(inv *Invoice)
	}{
		{"blank customer", "customerName", func(inv *Invoice) { inv.CustomerName = " " }},
		{"tax above 100", "taxRate", func(inv *Invoice) { inv.TaxRate = money("100.5") }},
		{"negative tax", "taxRate", func(inv *Invoice) { inv.TaxRate = money("-1") }},
		{"zero quantity", "items", func(inv *Invoice) { inv.Items[0].Quantity = 0 }},
		{"negative price", "items", func(inv *Invoice) { inv.Items[0].UnitPrice = money("-1") }},
		{"bad type", "type", func(inv *Invoice) { inv.Type = "quote" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := valid()
			tt.edit(inv)
			appErr := requireValidation(t, inv.Validate(t.Context()))
			assert.Equal(t, tt.field, appErr.Details["field"])
		})
	}
}
