// Package numerator provides the PostgreSQL implementation of invoice numbering.
// It implements core/numerator.Generator.
package numerator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	appctx "invoiceflow/internal/core/context"
	corenumerator "invoiceflow/internal/core/numerator"
	"invoiceflow/internal/infrastructure/storage/postgres"
)

// Querier interface for database operations.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type cachedRange struct {
	current int64
	max     int64
}

// Service hands out numbers from sys_sequences, one row per (tenant, key).
type Service struct {
	querier func(ctx context.Context) Querier

	// cacheMu protects ranges; keys are prefixed with the tenant
	cacheMu sync.Mutex
	ranges  map[string]*cachedRange
}

var _ corenumerator.Generator = (*Service)(nil)

// New creates a service over a fixed querier. Used in tests.
func New(querier Querier) *Service {
	return &Service{
		querier: func(context.Context) Querier { return querier },
		ranges:  make(map[string]*cachedRange),
	}
}

// NewWithTxManager creates a service that joins the caller's transaction
// when there is one, so strict numbers roll back with the invoice.
func NewWithTxManager(txManager *postgres.TxManager) *Service {
	return &Service{
		querier: func(ctx context.Context) Querier { return txManager.GetQuerier(ctx) },
		ranges:  make(map[string]*cachedRange),
	}
}

// GetNextNumber generates the next number, e.g. FAC-2026-00001.
func (s *Service) GetNextNumber(ctx context.Context, cfg corenumerator.Config, opts *corenumerator.Options, period time.Time) (string, error) {
	tenantID := appctx.GetTenantID(ctx)
	if tenantID == "" {
		return "", fmt.Errorf("numerator: no tenant in context")
	}
	if opts == nil {
		opts = corenumerator.DefaultOptions()
	}

	key := buildKey(cfg, period)

	var (
		num int64
		err error
	)
	switch opts.Strategy {
	case corenumerator.StrategyCached:
		num, err = s.getNextCached(ctx, tenantID, key, opts.RangeSize)
	default:
		num, err = s.reserve(ctx, tenantID, key, 1)
	}
	if err != nil {
		return "", err
	}

	return formatNumber(cfg, period, num), nil
}

// reserve bumps the sequence by n and returns its new value.
func (s *Service) reserve(ctx context.Context, tenantID, key string, n int64) (int64, error) {
	var value int64
	err := s.querier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (tenant_id, key, current_val)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, key) DO UPDATE SET current_val = sys_sequences.current_val + EXCLUDED.current_val
		RETURNING current_val
	`, tenantID, key, n).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("reserve %s: %w", key, postgres.MapError(err))
	}
	return value, nil
}

// getNextCached serves numbers from memory, refilling a range from the DB when empty.
func (s *Service) getNextCached(ctx context.Context, tenantID, key string, size int64) (int64, error) {
	if size <= 0 {
		size = 50
	}
	cacheKey := tenantID + ":" + key

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	rng, ok := s.ranges[cacheKey]
	if !ok {
		rng = &cachedRange{}
		s.ranges[cacheKey] = rng
	}

	if rng.current >= rng.max {
		newMax, err := s.reserve(ctx, tenantID, key, size)
		if err != nil {
			return 0, err
		}
		// the range is (newMax-size, newMax]
		rng.current = newMax - size
		rng.max = newMax
	}

	rng.current++
	return rng.current, nil
}

// SetNextNumber sets the current sequence value (data migration) and drops any cached range.
func (s *Service) SetNextNumber(ctx context.Context, cfg corenumerator.Config, period time.Time, value int64) error {
	tenantID := appctx.GetTenantID(ctx)
	if tenantID == "" {
		return fmt.Errorf("numerator: no tenant in context")
	}
	key := buildKey(cfg, period)

	var result int64
	err := s.querier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (tenant_id, key, current_val)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, key) DO UPDATE SET current_val = EXCLUDED.current_val
		RETURNING current_val
	`, tenantID, key, value).Scan(&result)

	s.cacheMu.Lock()
	delete(s.ranges, tenantID+":"+key)
	s.cacheMu.Unlock()

	if err != nil {
		return fmt.Errorf("set %s: %w", key, postgres.MapError(err))
	}
	return nil
}

func buildKey(cfg corenumerator.Config, period time.Time) string {
	switch cfg.ResetPeriod {
	case corenumerator.ResetMonthly:
		return fmt.Sprintf("%s_%s", cfg.Prefix, period.Format("2006_01"))
	case corenumerator.ResetYearly:
		return fmt.Sprintf("%s_%s", cfg.Prefix, period.Format("2006"))
	default:
		return cfg.Prefix
	}
}

func formatNumber(cfg corenumerator.Config, period time.Time, num int64) string {
	padWidth := cfg.PadWidth
	if padWidth == 0 {
		padWidth = 5
	}

	if cfg.IncludeYear {
		return fmt.Sprintf("%s-%s-%0*d", cfg.Prefix, period.Format("2006"), padWidth, num)
	}
	return fmt.Sprintf("%s-%0*d", cfg.Prefix, padWidth, num)
}
