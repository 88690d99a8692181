package invoice_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoiceflow/internal/core/apperror"
	"invoiceflow/internal/core/types"
	"invoiceflow/internal/domain/invoice"
)

func TestCreate_NumbersPerType(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())

	first := h.draft(t, invoice.TypeInvoice, line{qty: 1, price: 10})
	second := h.draft(t, invoice.TypeInvoice, line{qty: 1, price: 10})
	pro := h.draft(t, invoice.TypeProforma, line{qty: 1, price: 10})

	assert.Contains(t, first.Number, "FAC-")
	assert.NotEqual(t, first.Number, second.Number)
	assert.Contains(t, pro.Number, "PRO-")
	assert.Equal(t, invoice.StatusDraft, first.Status)
	assert.Equal(t, "XOF", first.Currency)
}

func TestCreate_RequiresTenant(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	inv := invoice.NewInvoice("", invoice.TypeInvoice, "ACME")

	err := h.invoices.Create(t.Context(), inv)
	assert.True(t, apperror.IsCode(err, apperror.CodeUnauthorized), "got %v", err)
}

func TestGet_IsolatedByTenant(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	inv := h.draft(t, invoice.TypeInvoice, line{qty: 1, price: 10})

	other := appctxFor("user-b", "tenant-b")
	_, err := h.invoices.Get(other, inv.ID)
	assert.True(t, apperror.IsNotFound(err), "got %v", err)

	_, err = h.workflow.Submit(other, inv.ID)
	assert.True(t, apperror.IsNotFound(err), "got %v", err)
}

func TestReplaceItems_LockedOutsideDraftAndPending(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	inv := h.approved(t, line{qty: 1, price: 10})

	_, err := h.invoices.ReplaceItems(h.ctx, inv.ID, []invoice.Item{{
		Description: "changed",
		UnitPrice:   types.NewMoneyFromInt(99),
		Quantity:    1,
	}}, 0)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvoiceLocked), "got %v", err)

	stored := h.reload(t, inv.ID)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "item", stored.Items[0].Description)
}

func TestReplaceItems_RecalculatesTotals(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	inv := h.draft(t, invoice.TypeInvoice, line{qty: 1, price: 10})

	rate := types.NewMoneyFromInt(18)
	inv, err := h.invoices.UpdateHeader(h.ctx, inv.ID, invoice.HeaderUpdate{TaxRate: &rate}, inv.Version)
	require.NoError(t, err)

	updated, err := h.invoices.ReplaceItems(h.ctx, inv.ID, []invoice.Item{
		{Description: "a", UnitPrice: types.NewMoneyFromInt(1000), Quantity: 1},
		{Description: "b", UnitPrice: types.NewMoneyFromInt(5), Quantity: 1},
	}, inv.Version)
	require.NoError(t, err)

	assert.True(t, types.NewMoneyFromInt(1005).Equal(updated.Subtotal))
	assert.True(t, types.NewMoneyFromInt(181).Equal(updated.TaxAmount))
	assert.True(t, types.NewMoneyFromInt(1186).Equal(updated.Total))

	stored := h.reload(t, inv.ID)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, 2, stored.Items[1].LineNo)
	assert.True(t, types.NewMoneyFromInt(1186).Equal(stored.Total))
}

func TestUpdateHeader_StaleVersion(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	inv := h.draft(t, invoice.TypeInvoice, line{qty: 1, price: 10})

	name := "Globex"
	_, err := h.invoices.UpdateHeader(h.ctx, inv.ID, invoice.HeaderUpdate{CustomerName: &name}, inv.Version)
	require.NoError(t, err)

	_, err = h.invoices.UpdateHeader(h.ctx, inv.ID, invoice.HeaderUpdate{CustomerName: &name}, inv.Version)
	assert.True(t, apperror.IsConcurrentModification(err), "got %v", err)
}

func TestDelete_BlockedWhileStockDeducted(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	p := h.product(t, "SKU-1", 10)
	inv := h.approved(t, line{product: p, qty: 2, price: 10})

	_, err := h.workflow.MarkPaid(h.ctx, inv.ID)
	require.NoError(t, err)

	err = h.invoices.Delete(h.ctx, inv.ID)
	assert.True(t, apperror.IsCode(err, apperror.CodeStockNotRestored), "got %v", err)

	_, err = h.workflow.MarkUnpaid(h.ctx, inv.ID)
	require.NoError(t, err)

	require.NoError(t, h.invoices.Delete(h.ctx, inv.ID))
	_, err = h.invoices.Get(h.ctx, inv.ID)
	assert.True(t, apperror.IsNotFound(err))
	assert.Equal(t, types.Quantity(10), h.quantity(t, p.ID))
}

func TestStockCheck_ReportsShortages(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	p := h.product(t, "SKU-1", 3)
	inv := h.draft(t, invoice.TypeInvoice,
		line{product: p, qty: 2, price: 10},
		line{product: p, qty: 2, price: 10},
	)

	shortages, err := h.invoices.StockCheck(h.ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, shortages, 1)
	assert.Equal(t, p.ID, shortages[0].ProductID)
	assert.Equal(t, types.Quantity(1), shortages[0].Shortfall())
}

func TestList_FiltersByStatus(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	h.draft(t, invoice.TypeInvoice, line{qty: 1, price: 10})
	approved := h.approved(t, line{qty: 1, price: 10})

	result, err := h.invoices.List(h.ctx, invoice.ListFilter{Statuses: []invoice.Status{invoice.StatusApproved}})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, approved.ID, result.Items[0].ID)

	_, err = h.invoices.List(h.ctx, invoice.ListFilter{Statuses: []invoice.Status{"ARCHIVED"}})
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}
