package stock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoiceflow/internal/core/apperror"
	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/core/entity"
	"invoiceflow/internal/core/id"
	"invoiceflow/internal/core/types"
	"invoiceflow/internal/domain/catalogs/product"
	"invoiceflow/internal/domain/events"
	"invoiceflow/internal/domain/registers/stock"
	"invoiceflow/internal/infrastructure/storage/memory"
)

type fixture struct {
	store    *memory.Store
	ledger   *stock.Ledger
	products *product.Service
	ctx      context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	ledger := stock.NewLedger(store.Movements(), store.Products(), store, store.Outbox())
	return &fixture{
		store:    store,
		ledger:   ledger,
		products: product.NewService(store.Products(), store, ledger, store.Audit()),
		ctx: appctx.WithUser(context.Background(), &appctx.UserContext{
			UserID:   "stock-keeper",
			TenantID: "tenant-a",
		}),
	}
}

func (f *fixture) product(t *testing.T, sku string, qty int64) *product.Product {
	t.Helper()
	p := product.NewProduct("tenant-a", sku, "Product "+sku, types.NewMoneyFromInt(10), types.Quantity(qty))
	require.NoError(t, f.products.Create(f.ctx, p))
	return p
}

func (f *fixture) quantity(t *testing.T, productID id.ID) types.Quantity {
	t.Helper()
	p, err := f.products.GetByID(f.ctx, productID)
	require.NoError(t, err)
	return p.Quantity
}

func (f *fixture) deduct(invoiceID id.ID, lines ...stock.Line) (stock.Effect, error) {
	var effect stock.Effect
	err := f.store.RunInTransaction(f.ctx, func(ctx context.Context) error {
		var err error
		effect, err = f.ledger.Deduct(ctx, stock.DeductRequest{InvoiceID: invoiceID, InvoiceNumber: "FAC-TEST", Lines: lines})
		return err
	})
	return effect, err
}

func (f *fixture) restore(invoiceID id.ID) (stock.Effect, error) {
	var effect stock.Effect
	err := f.store.RunInTransaction(f.ctx, func(ctx context.Context) error {
		var err error
		effect, err = f.ledger.Restore(ctx, invoiceID)
		return err
	})
	return effect, err
}

func TestAggregate(t *testing.T) {
	a := id.New()
	b := id.New()

	demand, err := stock.Aggregate([]stock.Line{
		{ProductID: a, Quantity: 3, LineNo: 1},
		{ProductID: id.Nil(), Quantity: 9, LineNo: 2},
		{ProductID: a, Quantity: 4, LineNo: 3},
		{ProductID: b, Quantity: 1, LineNo: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, stock.Effect{a: 7, b: 1}, demand)
	assert.Equal(t, types.Quantity(8), demand.Total())

	_, err = stock.Aggregate([]stock.Line{{ProductID: a, Quantity: 0, LineNo: 5}})
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 5, appErr.Details["line_no"])
}

func TestDeductAndRestore(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "SKU-1", 100)
	invoiceID := id.New()

	effect, err := f.deduct(invoiceID, stock.Line{ProductID: p.ID, Quantity: 10, LineNo: 1})
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(10), effect[p.ID])
	assert.Equal(t, types.Quantity(90), f.quantity(t, p.ID))

	history, err := f.ledger.History(f.ctx, p.ID, stock.MovementFilter{InvoiceID: &invoiceID})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, entity.MovementOut, history[0].Type)
	assert.Equal(t, types.Quantity(-10), history[0].Delta)
	assert.Equal(t, entity.ReasonInvoicePaid, history[0].Reason)
	assert.Equal(t, "stock-keeper", history[0].CreatedBy)

	restored, err := f.restore(invoiceID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(10), restored[p.ID])
	assert.Equal(t, types.Quantity(100), f.quantity(t, p.ID))

	// nothing left outstanding
	again, err := f.restore(invoiceID)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Equal(t, types.Quantity(100), f.quantity(t, p.ID))
}

func TestDeduct_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	a := f.product(t, "SKU-A", 10)
	b := f.product(t, "SKU-B", 2)

	_, err := f.deduct(id.New(),
		stock.Line{ProductID: a.ID, Quantity: 5, LineNo: 1},
		stock.Line{ProductID: b.ID, Quantity: 3, LineNo: 2},
	)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
	assert.Equal(t, "SKU-B", appErr.Details["sku"])

	assert.Equal(t, types.Quantity(10), f.quantity(t, a.ID))
	assert.Equal(t, types.Quantity(2), f.quantity(t, b.ID))

	report, err := f.ledger.Reconcile(f.ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
}

func TestDeduct_UnknownProduct(t *testing.T) {
	f := newFixture(t)

	_, err := f.deduct(id.New(), stock.Line{ProductID: id.New(), Quantity: 1, LineNo: 1})
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation), "got %v", err)
}

func TestDeduct_PublishesLowStock(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "SKU-1", 10)
	p.MinQuantity = 4
	require.NoError(t, f.products.Update(f.ctx, p))

	_, err := f.deduct(id.New(), stock.Line{ProductID: p.ID, Quantity: 5, LineNo: 1})
	require.NoError(t, err)
	assert.NotContains(t, f.store.Outbox().EventTypes(), events.ProductLowStock)

	_, err = f.deduct(id.New(), stock.Line{ProductID: p.ID, Quantity: 2, LineNo: 1})
	require.NoError(t, err)
	assert.Contains(t, f.store.Outbox().EventTypes(), events.ProductLowStock)
}

func TestRestore_DeletedProductGetsStockBack(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "SKU-1", 10)
	invoiceID := id.New()

	_, err := f.deduct(invoiceID, stock.Line{ProductID: p.ID, Quantity: 4, LineNo: 1})
	require.NoError(t, err)
	require.NoError(t, f.products.Delete(f.ctx, p.ID))

	effect, err := f.restore(invoiceID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(4), effect[p.ID])

	levels, err := f.store.Products().LockLevels(f.ctx, []id.ID{p.ID})
	require.NoError(t, err)
	assert.True(t, levels[p.ID].Deleted)
	assert.Equal(t, types.Quantity(10), levels[p.ID].Quantity)
}

func TestRestockAndAdjust(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "SKU-1", 5)

	updated, m, err := f.products.Restock(f.ctx, p.ID, 20, "")
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(25), updated.Quantity)
	assert.Equal(t, entity.ReasonRestock, m.Reason)

	updated, m, err = f.products.Adjust(f.ctx, p.ID, -7, "breakage")
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(18), updated.Quantity)
	assert.Equal(t, types.Quantity(-7), m.Delta)

	_, _, err = f.products.Adjust(f.ctx, p.ID, -100, "")
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientStock), "got %v", err)
	assert.Equal(t, types.Quantity(18), f.quantity(t, p.ID))

	_, _, err = f.products.Restock(f.ctx, p.ID, 0, "")
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestCheckAvailability(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "SKU-1", 3)
	missing := id.New()

	shortages, err := f.ledger.CheckAvailability(f.ctx, []stock.Line{
		{ProductID: p.ID, Quantity: 2, LineNo: 1},
		{ProductID: p.ID, Quantity: 2, LineNo: 2},
		{ProductID: missing, Quantity: 1, LineNo: 3},
	})
	require.NoError(t, err)
	require.Len(t, shortages, 2)
	for _, s := range shortages {
		assert.True(t, s.Shortfall().IsPositive())
	}
}

func TestReconcile_DetectsDrift(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "SKU-1", 10)
	f.product(t, "SKU-2", 0)

	report, err := f.ledger.Reconcile(f.ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
	assert.Equal(t, 2, report.Products)
	assert.Equal(t, "tenant-a", report.TenantID)

	require.NoError(t, f.store.Products().SetQuantity(f.ctx, p.ID, 13))

	report, err = f.ledger.Reconcile(f.ctx)
	require.NoError(t, err)
	require.Len(t, report.Drifts, 1)
	assert.Equal(t, p.ID, report.Drifts[0].ProductID)
	assert.Equal(t, types.Quantity(3), report.Drifts[0].Difference())
}

// payDuringListing starts a payment right after ListLevels returns and gives
// it a moment to commit before Reconcile goes on to read the movements.
type payDuringListing struct {
	stock.ProductStore
	pay  func()
	done chan struct{}
	once sync.Once
}

func (p *payDuringListing) ListLevels(ctx context.Context) ([]stock.ProductLevel, error) {
	levels, err := p.ProductStore.ListLevels(ctx)
	p.once.Do(func() {
		go func() {
			defer close(p.done)
			p.pay()
		}()
		select {
		case <-p.done:
		case <-time.After(50 * time.Millisecond):
		}
	})
	return levels, err
}

func TestReconcile_ConcurrentPaymentIsNotDrift(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "SKU-R", 100)

	var payErr error
	products := &payDuringListing{
		ProductStore: f.store.Products(),
		done:         make(chan struct{}),
		pay: func() {
			_, payErr = f.deduct(id.New(), stock.Line{ProductID: p.ID, Quantity: 10, LineNo: 1})
		},
	}
	ledger := stock.NewLedger(f.store.Movements(), products, f.store, f.store.Outbox())

	report, err := ledger.Reconcile(f.ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent(), "drifts: %+v", report.Drifts)

	<-products.done
	require.NoError(t, payErr)
	assert.Equal(t, types.Quantity(90), f.quantity(t, p.ID))

	report, err = ledger.Reconcile(f.ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent(), "drifts: %+v", report.Drifts)
}
