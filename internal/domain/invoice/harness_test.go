package invoice_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/core/id"
	"invoiceflow/internal/core/types"
	"invoiceflow/internal/domain/catalogs/product"
	"invoiceflow/internal/domain/invoice"
	"invoiceflow/internal/domain/registers/stock"
	"invoiceflow/internal/infrastructure/storage/memory"
)

const testTenant = "tenant-a"

type harness struct {
	store    *memory.Store
	products *product.Service
	ledger   *stock.Ledger
	invoices *invoice.Service
	workflow *invoice.Workflow
	ctx      context.Context
}

func newHarness(t *testing.T, cfg invoice.WorkflowConfig) *harness {
	t.Helper()

	store := memory.NewStore()
	outbox := store.Outbox()
	auditLog := store.Audit()
	ledger := stock.NewLedger(store.Movements(), store.Products(), store, outbox)

	return &harness{
		store:    store,
		products: product.NewService(store.Products(), store, ledger, auditLog),
		ledger:   ledger,
		invoices: invoice.NewService(store.Invoices(), store, store.Numerator(), ledger, auditLog, outbox, invoice.DefaultServiceConfig()),
		workflow: invoice.NewWorkflow(store.Invoices(), store, ledger, nil, auditLog, outbox, cfg),
		ctx:      userCtx("manager-1", "invoice:read", "invoice:write", "invoice:approve"),
	}
}

func testWorkflowConfig() invoice.WorkflowConfig {
	cfg := invoice.DefaultWorkflowConfig()
	cfg.RetryBackoff = 0
	return cfg
}

func userCtx(userID string, permissions ...string) context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{
		UserID:      userID,
		TenantID:    testTenant,
		Permissions: permissions,
	})
}

func (h *harness) product(t *testing.T, sku string, qty int64) *product.Product {
	t.Helper()
	p := product.NewProduct(testTenant, sku, "Product "+sku, types.NewMoneyFromInt(20), types.Quantity(qty))
	require.NoError(t, h.products.Create(h.ctx, p))
	return p
}

func (h *harness) quantity(t *testing.T, productID id.ID) types.Quantity {
	t.Helper()
	p, err := h.products.GetByID(h.ctx, productID)
	require.NoError(t, err)
	return p.Quantity
}

type line struct {
	product *product.Product
	qty     int64
	price   int64
}

func (h *harness) draft(t *testing.T, invoiceType invoice.Type, lines ...line) *invoice.Invoice {
	t.Helper()
	inv := invoice.NewInvoice(testTenant, invoiceType, "ACME SARL")
	for _, l := range lines {
		var productID *id.ID
		if l.product != nil {
			pid := l.product.ID
			productID = &pid
		}
		inv.AddItem(productID, "item", types.NewMoneyFromInt(l.price), types.Quantity(l.qty))
	}
	require.NoError(t, h.invoices.Create(h.ctx, inv))
	return inv
}

// approved creates an invoice and drives it to APPROVED.
func (h *harness) approved(t *testing.T, lines ...line) *invoice.Invoice {
	t.Helper()
	inv := h.draft(t, invoice.TypeInvoice, lines...)
	_, err := h.workflow.Submit(h.ctx, inv.ID)
	require.NoError(t, err)
	inv, err = h.workflow.Approve(h.ctx, inv.ID)
	require.NoError(t, err)
	return inv
}

func (h *harness) reload(t *testing.T, invoiceID id.ID) *invoice.Invoice {
	t.Helper()
	inv, err := h.invoices.Get(h.ctx, invoiceID)
	require.NoError(t, err)
	return inv
}

func appctxFor(userID, tenantID string) context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{
		UserID:   userID,
		TenantID: tenantID,
		IsAdmin:  true,
	})
}
