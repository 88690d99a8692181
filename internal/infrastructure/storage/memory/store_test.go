package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoiceflow/internal/core/apperror"
	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/core/types"
	"invoiceflow/internal/domain/catalogs/product"
)

func tenantCtx(tenantID string) context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u1", TenantID: tenantID})
}

func TestRunInTransaction_RollsBackOnError(t *testing.T) {
	store := NewStore()
	repo := store.Products()
	ctx := tenantCtx("t1")

	p := product.NewProduct("t1", "SKU-1", "Widget", types.NewMoneyFromInt(5), 4)
	require.NoError(t, repo.Create(ctx, p))

	boom := errors.New("boom")
	err := store.RunInTransaction(ctx, func(ctx context.Context) error {
		_, err := repo.ApplyDelta(ctx, p.ID, -3)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(4), got.Quantity)
}

func TestProductRepo_TenantScoped(t *testing.T) {
	store := NewStore()
	repo := store.Products()

	p := product.NewProduct("t1", "SKU-1", "Widget", types.NewMoneyFromInt(5), 4)
	require.NoError(t, repo.Create(tenantCtx("t1"), p))

	_, err := repo.GetByID(tenantCtx("t2"), p.ID)
	assert.True(t, apperror.IsNotFound(err))

	// The same SKU is free in another tenant.
	other := product.NewProduct("t2", "SKU-1", "Widget", types.NewMoneyFromInt(5), 1)
	require.NoError(t, repo.Create(tenantCtx("t2"), other))

	dup := product.NewProduct("t1", "SKU-1", "Widget again", types.NewMoneyFromInt(5), 1)
	err = repo.Create(tenantCtx("t1"), dup)
	assert.True(t, apperror.IsCode(err, apperror.CodeDuplicate))
}

func TestProductRepo_ApplyDeltaRefusesNegativeStock(t *testing.T) {
	store := NewStore()
	repo := store.Products()
	ctx := tenantCtx("t1")

	p := product.NewProduct("t1", "SKU-1", "Widget", types.NewMoneyFromInt(5), 2)
	require.NoError(t, repo.Create(ctx, p))

	_, err := repo.ApplyDelta(ctx, p.ID, -3)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientStock))

	qty, err := repo.ApplyDelta(ctx, p.ID, -2)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(0), qty)
}
