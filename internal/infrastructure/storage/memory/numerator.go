package memory

import (
	"context"
	"fmt"
	"time"

	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/core/numerator"
)

// Numerator implements numerator.Generator with per-tenant counters in the store.
// Both strategies behave like Strict here.
type Numerator struct {
	store *Store
}

var _ numerator.Generator = (*Numerator)(nil)

func (n *Numerator) key(ctx context.Context, cfg numerator.Config, period time.Time) string {
	key := cfg.Prefix
	switch cfg.ResetPeriod {
	case numerator.ResetYearly:
		key += period.Format("_2006")
	case numerator.ResetMonthly:
		key += period.Format("_2006_01")
	}
	return appctx.GetTenantID(ctx) + ":" + key
}

func (n *Numerator) GetNextNumber(ctx context.Context, cfg numerator.Config, _ *numerator.Options, period time.Time) (string, error) {
	key := n.key(ctx, cfg, period)
	var value int64
	err := n.store.with(ctx, func(st *state) error {
		st.sequences[key]++
		value = st.sequences[key]
		return nil
	})
	if err != nil {
		return "", err
	}

	width := cfg.PadWidth
	if width == 0 {
		width = 5
	}
	if cfg.IncludeYear {
		return fmt.Sprintf("%s-%s-%0*d", cfg.Prefix, period.Format("2006"), width, value), nil
	}
	return fmt.Sprintf("%s-%0*d", cfg.Prefix, width, value), nil
}

func (n *Numerator) SetNextNumber(ctx context.Context, cfg numerator.Config, period time.Time, value int64) error {
	key := n.key(ctx, cfg, period)
	return n.store.with(ctx, func(st *state) error {
		st.sequences[key] = value
		return nil
	})
}
