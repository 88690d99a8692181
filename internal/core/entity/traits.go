package entity

import (
	"context"
	"strings"

	"invoiceflow/internal/core/apperror"
)

// CurrencyAware is a trait for documents that carry amounts in one currency.
type CurrencyAware struct {
	// Currency is the currency code (e.g. XOF)
	Currency string `db:"currency" json:"currency"`

	// CurrencyDecimals is the number of minor-unit digits; 0 for FCFA
	CurrencyDecimals int32 `db:"currency_decimals" json:"currencyDecimals"`
}

// ValidateCurrency ensures a currency is set and its precision is sane.
func (c *CurrencyAware) ValidateCurrency(ctx context.Context) error {
	if strings.TrimSpace(c.Currency) == "" {
		return apperror.NewValidation("currency is required").
			WithDetail("field", "currency")
	}
	if c.CurrencyDecimals < 0 || c.CurrencyDecimals > 4 {
		return apperror.NewValidation("currency decimals must be between 0 and 4").
			WithDetail("field", "currencyDecimals")
	}
	return nil
}
