// Package types provides common value types for money and stock quantities.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// NewMoneyFromInt creates a Money value from a whole amount.
func NewMoneyFromInt(v int64) Money {
	return decimal.NewFromInt(v)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// RoundToCurrency rounds m to the minor unit of a currency with the given
// number of decimals, half away from zero. Zero-decimal currencies (XOF, XAF)
// round to whole units.
func RoundToCurrency(m Money, decimals int32) Money {
	return m.Round(decimals)
}

// ApplyPercent returns m * (1 + percent/100) without rounding.
func ApplyPercent(m Money, percent Money) Money {
	factor := decimal.NewFromInt(1).Add(percent.Div(decimal.NewFromInt(100)))
	return m.Mul(factor)
}
