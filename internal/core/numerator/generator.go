package numerator

import (
	"context"
	"time"
)

// Generator generates sequential invoice numbers.
// Sequences are kept per tenant; implementations read the tenant from ctx.
type Generator interface {
	// GetNextNumber generates the next number.
	// Pattern: PREFIX-YEAR-XXXXX (e.g., FAC-2026-00001)
	GetNextNumber(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error)

	// SetNextNumber sets the current sequence value (data migration).
	SetNextNumber(ctx context.Context, cfg Config, period time.Time, value int64) error
}
