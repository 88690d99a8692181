package numerator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "invoiceflow/internal/core/context"
	corenumerator "invoiceflow/internal/core/numerator"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if ptr, ok := dest[0].(*int64); ok {
		*ptr = m.val
	}
	return nil
}

// mockQuerier keeps one counter per (tenant, key) like sys_sequences does.
type mockQuerier struct {
	mu     sync.Mutex
	values map[string]int64
	calls  int
	err    error
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return &mockRow{err: m.err}
	}
	if m.values == nil {
		m.values = make(map[string]int64)
	}
	k := args[0].(string) + "/" + args[1].(string)
	m.values[k] += args[2].(int64)
	return &mockRow{val: m.values[k]}
}

func tenantCtx(tenantID string) context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u1", TenantID: tenantID})
}

var period = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

func TestGetNextNumber_Strict(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := tenantCtx("acme")
	cfg := corenumerator.DefaultConfig("FAC")

	num, err := svc.GetNextNumber(ctx, cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "FAC-2026-00001", num)

	num, err = svc.GetNextNumber(ctx, cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "FAC-2026-00002", num)
	assert.Equal(t, 2, q.calls)
}

func TestGetNextNumber_SequencesPerTenant(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	cfg := corenumerator.DefaultConfig("FAC")

	_, err := svc.GetNextNumber(tenantCtx("acme"), cfg, nil, period)
	require.NoError(t, err)

	num, err := svc.GetNextNumber(tenantCtx("globex"), cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "FAC-2026-00001", num)
}

func TestGetNextNumber_RequiresTenant(t *testing.T) {
	svc := New(&mockQuerier{})

	_, err := svc.GetNextNumber(context.Background(), corenumerator.DefaultConfig("FAC"), nil, period)
	assert.Error(t, err)
}

func TestGetNextNumber_Cached(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := tenantCtx("acme")
	cfg := corenumerator.DefaultConfig("PRO")
	opts := &corenumerator.Options{Strategy: corenumerator.StrategyCached, RangeSize: 10}

	num, err := svc.GetNextNumber(ctx, cfg, opts, period)
	require.NoError(t, err)
	assert.Equal(t, "PRO-2026-00001", num)
	assert.Equal(t, int64(10), q.values["acme/PRO_2026"])

	for i := 0; i < 9; i++ {
		_, err := svc.GetNextNumber(ctx, cfg, opts, period)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, q.calls, "range of 10 served from memory")

	num, err = svc.GetNextNumber(ctx, cfg, opts, period)
	require.NoError(t, err)
	assert.Equal(t, "PRO-2026-00011", num)
	assert.Equal(t, 2, q.calls)
}

func TestGetNextNumber_MonthlyResetAndNoYear(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	cfg := corenumerator.Config{Prefix: "X", PadWidth: 3, ResetPeriod: corenumerator.ResetMonthly}

	num, err := svc.GetNextNumber(tenantCtx("acme"), cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "X-001", num)
	assert.Contains(t, q.values, "acme/X_2026_03")
}

func TestSetNextNumber_DropsCachedRange(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := tenantCtx("acme")
	cfg := corenumerator.DefaultConfig("PRO")
	opts := &corenumerator.Options{Strategy: corenumerator.StrategyCached, RangeSize: 10}

	_, err := svc.GetNextNumber(ctx, cfg, opts, period)
	require.NoError(t, err)
	require.NoError(t, svc.SetNextNumber(ctx, cfg, period, 100))

	_, err = svc.GetNextNumber(ctx, cfg, opts, period)
	require.NoError(t, err)
	assert.Equal(t, 3, q.calls, "cache was dropped so the next number hit the database")
}

func TestGetNextNumber_PropagatesErrors(t *testing.T) {
	svc := New(&mockQuerier{err: errors.New("connection reset")})

	_, err := svc.GetNextNumber(tenantCtx("acme"), corenumerator.DefaultConfig("FAC"), nil, period)
	assert.ErrorContains(t, err, "connection reset")
}
