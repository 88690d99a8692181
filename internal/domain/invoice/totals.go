package invoice

import (
	"invoiceflow/internal/core/types"
)

// Totals is the result of a totals calculation.
type Totals struct {
	LineTotals []types.Money
	Subtotal   types.Money
	TaxAmount  types.Money
	Total      types.Money
}

// CalculateTotals computes line totals, subtotal, tax and total.
//
//	line_total = unit_price * quantity
//	subtotal   = Σ line_total
//	total      = round(subtotal * (1 + tax_rate/100), decimals)   half away from zero
//	tax_amount = total - subtotal
func CalculateTotals(items []Item, taxRate types.Money, decimals int32) Totals {
	t := Totals{
		LineTotals: make([]types.Money, len(items)),
		Subtotal:   types.Zero(),
	}

	for i, item := range items {
		line := item.UnitPrice.Mul(types.NewMoneyFromInt(item.Quantity.Int64()))
		t.LineTotals[i] = line
		t.Subtotal = t.Subtotal.Add(line)
	}

	t.Total = types.RoundToCurrency(types.ApplyPercent(t.Subtotal, taxRate), decimals)
	t.TaxAmount = t.Total.Sub(t.Subtotal)

	return t
}
