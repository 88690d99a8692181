package invoice_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoiceflow/internal/core/apperror"
	"invoiceflow/internal/core/id"
	"invoiceflow/internal/core/types"
	"invoiceflow/internal/domain/events"
	"invoiceflow/internal/domain/invoice"
)

func requireCode(t *testing.T, err error, code string) *apperror.AppError {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	require.Equal(t, code, appErr.Code, "unexpected error: %v", err)
	return appErr
}

func TestMarkPaid_DeductsStockOnce(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	p := h.product(t, "SKU-1", 100)

	inv := h.approved(t, line{product: p, qty: 10, price: 20})
	assert.True(t, types.NewMoneyFromInt(200).Equal(inv.Subtotal))

	paid, err := h.workflow.MarkPaid(h.ctx, inv.ID)
	require.NoError(t, err)

	assert.Equal(t, invoice.StatusPaid, paid.Status)
	assert.NotNil(t, paid.StockDeductedAt)
	assert.NotNil(t, paid.PaidAt)
	assert.Equal(t, "manager-1", *paid.PaidBy)
	assert.Equal(t, types.Quantity(90), h.quantity(t, p.ID))

	stored := h.reload(t, inv.ID)
	assert.Equal(t, invoice.StatusPaid, stored.Status)
	assert.NotNil(t, stored.StockDeductedAt)
}

func TestMarkUnpaid_RoundTripRestoresStock(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	p := h.product(t, "SKU-1", 100)
	inv := h.approved(t, line{product: p, qty: 10, price: 20})

	_, err := h.workflow.MarkPaid(h.ctx, inv.ID)
	require.NoError(t, err)

	unpaid, err := h.workflow.MarkUnpaid(h.ctx, inv.ID)
	require.NoError(t, err)

	assert.Equal(t, invoice.StatusApproved, unpaid.Status)
	assert.Nil(t, unpaid.StockDeductedAt)
	assert.Nil(t, unpaid.PaidAt)
	assert.Nil(t, unpaid.PaidBy)
	assert.Equal(t, types.Quantity(100), h.quantity(t, p.ID))

	report, err := h.ledger.Reconcile(h.ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent(), "drifts: %+v", report.Drifts)
}

func TestMarkPaid_InsufficientStockLeavesEverythingUnchanged(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	p := h.product(t, "SKU-1", 5)
	inv := h.approved(t, line{product: p, qty: 10, price: 20})
	eventsBefore := len(h.store.Outbox().Records())

	_, err := h.workflow.MarkPaid(h.ctx, inv.ID)
	appErr := requireCode(t, err, apperror.CodeInsufficientStock)

	assert.Equal(t, int64(10), appErr.Details["requested"])
	assert.Equal(t, int64(5), appErr.Details["available"])
	assert.Equal(t, int64(5), appErr.Details["shortfall"])
	assert.Equal(t, p.ID.String(), appErr.Details["product_id"])

	assert.Equal(t, types.Quantity(5), h.quantity(t, p.ID))
	stored := h.reload(t, inv.ID)
	assert.Equal(t, invoice.StatusApproved, stored.Status)
	assert.Nil(t, stored.StockDeductedAt)
	assert.Len(t, h.store.Outbox().Records(), eventsBefore)
}

func TestMarkPaid_AggregatesDemandAcrossLines(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	p := h.product(t, "SKU-1", 6)
	inv := h.approved(t,
		line{product: p, qty: 3, price: 20},
		line{product: p, qty: 4, price: 20},
	)

	_, err := h.workflow.MarkPaid(h.ctx, inv.ID)
	appErr := requireCode(t, err, apperror.CodeInsufficientStock)
	assert.Equal(t, int64(7), appErr.Details["requested"])
	assert.Equal(t, types.Quantity(6), h.quantity(t, p.ID))
}

func TestMarkPaid_NoPartialDeductionAcrossProducts(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	plenty := h.product(t, "SKU-A", 50)
	scarce := h.product(t, "SKU-B", 1)
	inv := h.approved(t,
		line{product: plenty, qty: 10, price: 5},
		line{product: scarce, qty: 2, price: 5},
		line{qty: 1, price: 1000}, // free-text service line
	)

	_, err := h.workflow.MarkPaid(h.ctx, inv.ID)
	requireCode(t, err, apperror.CodeInsufficientStock)

	assert.Equal(t, types.Quantity(50), h.quantity(t, plenty.ID))
	assert.Equal(t, types.Quantity(1), h.quantity(t, scarce.ID))
}

func TestMarkPaid_FreeTextLinesDoNotTouchStock(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	inv := h.approved(t, line{qty: 3, price: 15000})

	paid, err := h.workflow.MarkPaid(h.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, paid.Status)
	assert.NotNil(t, paid.StockDeductedAt)

	unpaid, err := h.workflow.MarkUnpaid(h.ctx, inv.ID)
	require.NoError(t, err)
	assert.Nil(t, unpaid.StockDeductedAt)
}

func TestMarkPaid_ConcurrentPaymentsForLastUnit(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	p := h.product(t, "SKU-LAST", 1)
	first := h.approved(t, line{product: p, qty: 1, price: 100})
	second := h.approved(t, line{product: p, qty: 1, price: 100})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, invoiceID := range []id.ID{first.ID, second.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.workflow.MarkPaid(h.ctx, invoiceID)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t,
			apperror.IsCode(err, apperror.CodeInsufficientStock) || apperror.IsConcurrentModification(err),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, types.Quantity(0), h.quantity(t, p.ID))
}

func TestInvalidTransitions(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	p := h.product(t, "SKU-1", 10)
	inv := h.draft(t, invoice.TypeInvoice, line{product: p, qty: 1, price: 10})

	_, err := h.workflow.MarkPaid(h.ctx, inv.ID)
	appErr := requireCode(t, err, apperror.CodeInvalidTransition)
	assert.Equal(t, "DRAFT", appErr.Details["from"])
	assert.Equal(t, []string{"APPROVED"}, appErr.Details["allowed"])

	_, err = h.workflow.Approve(h.ctx, inv.ID)
	requireCode(t, err, apperror.CodeInvalidTransition)

	_, err = h.workflow.ValidateProforma(h.ctx, inv.ID)
	requireCode(t, err, apperror.CodeInvalidTransition)

	_, err = h.workflow.MarkUnpaid(h.ctx, inv.ID)
	requireCode(t, err, apperror.CodeInvalidTransition)

	_, err = h.workflow.ApproveModification(h.ctx, inv.ID)
	requireCode(t, err, apperror.CodeInvalidTransition)
}

func TestSubmit_RequiresItems(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	inv := h.draft(t, invoice.TypeInvoice)

	_, err := h.workflow.Submit(h.ctx, inv.ID)
	requireCode(t, err, apperror.CodeValidation)
	assert.Equal(t, invoice.StatusDraft, h.reload(t, inv.ID).Status)
}

func TestValidateProforma(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	p := h.product(t, "SKU-1", 10)
	pro := h.draft(t, invoice.TypeProforma, line{product: p, qty: 2, price: 10})
	assert.Contains(t, pro.Number, "PRO-")

	_, err := h.workflow.Submit(h.ctx, pro.ID)
	requireCode(t, err, apperror.CodeInvalidTransition)

	sent, err := h.workflow.ValidateProforma(h.ctx, pro.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusSent, sent.Status)
	assert.NotNil(t, sent.SentAt)
	assert.Equal(t, types.Quantity(10), h.quantity(t, p.ID))
}

func TestApprove_RequiresAuthority(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	inv := h.draft(t, invoice.TypeInvoice, line{qty: 1, price: 10})
	_, err := h.workflow.Submit(h.ctx, inv.ID)
	require.NoError(t, err)

	clerk := userCtx("clerk-1", "invoice:read", "invoice:write")
	_, err = h.workflow.Approve(clerk, inv.ID)
	requireCode(t, err, apperror.CodeForbidden)

	_, err = h.workflow.Approve(context.Background(), inv.ID)
	requireCode(t, err, apperror.CodeUnauthorized)

	approved, err := h.workflow.Approve(h.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "manager-1", *approved.ApprovedBy)
}

func TestReject(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	inv := h.draft(t, invoice.TypeInvoice, line{qty: 1, price: 10})
	_, err := h.workflow.Submit(h.ctx, inv.ID)
	require.NoError(t, err)

	_, err = h.workflow.Reject(h.ctx, inv.ID, "  ")
	requireCode(t, err, apperror.CodeValidation)

	rejected, err := h.workflow.Reject(h.ctx, inv.ID, "wrong customer")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusRejected, rejected.Status)
	assert.Equal(t, "wrong customer", *rejected.RejectionReason)
}

func TestCancel(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	inv := h.draft(t, invoice.TypeInvoice, line{qty: 1, price: 10})

	cancelled, err := h.workflow.Cancel(h.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	_, err = h.workflow.Submit(h.ctx, inv.ID)
	requireCode(t, err, apperror.CodeInvalidTransition)
}

// paidThenReopened pays an invoice, then runs request/approve modification
// so it is back in PENDING.
func paidThenReopened(t *testing.T, h *harness, inv *invoice.Invoice) *invoice.Invoice {
	t.Helper()
	_, err := h.workflow.MarkPaid(h.ctx, inv.ID)
	require.NoError(t, err)

	requested, err := h.workflow.RequestModification(h.ctx, inv.ID, "wrong quantity")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, requested.Status)
	assert.NotNil(t, requested.ModificationRequestedAt)

	_, err = h.workflow.RequestModification(h.ctx, inv.ID, "again")
	requireCode(t, err, apperror.CodeModificationPending)

	reopened, err := h.workflow.ApproveModification(h.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPending, reopened.Status)
	assert.Nil(t, reopened.ModificationRequestedAt)
	assert.True(t, reopened.IsEditable())
	return reopened
}

func TestModificationCycle_BlocksSecondDeduction(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	p := h.product(t, "SKU-1", 100)
	inv := h.approved(t, line{product: p, qty: 10, price: 20})

	reopened := paidThenReopened(t, h, inv)
	assert.NotNil(t, reopened.StockDeductedAt, "stock stays deducted through the modification cycle")
	assert.Equal(t, types.Quantity(90), h.quantity(t, p.ID))

	_, err := h.workflow.Cancel(h.ctx, inv.ID)
	requireCode(t, err, apperror.CodeStockNotRestored)

	_, err = h.workflow.Approve(h.ctx, inv.ID)
	require.NoError(t, err)

	_, err = h.workflow.MarkPaid(h.ctx, inv.ID)
	requireCode(t, err, apperror.CodeStockAlreadyDeducted)
	assert.Equal(t, types.Quantity(90), h.quantity(t, p.ID))

	// the explicit way back
	restored, err := h.workflow.MarkUnpaid(h.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusApproved, restored.Status)
	assert.Equal(t, types.Quantity(100), h.quantity(t, p.ID))

	_, err = h.workflow.MarkPaid(h.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(90), h.quantity(t, p.ID))
}

func TestModificationCycle_RestoreUsesLedgerNotCurrentItems(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	p := h.product(t, "SKU-1", 100)
	inv := h.approved(t, line{product: p, qty: 10, price: 20})

	reopened := paidThenReopened(t, h, inv)

	pid := p.ID
	_, err := h.invoices.ReplaceItems(h.ctx, inv.ID, []invoice.Item{{
		ProductID:   &pid,
		Description: "corrected",
		UnitPrice:   types.NewMoneyFromInt(20),
		Quantity:    3,
	}}, reopened.Version)
	require.NoError(t, err)

	_, err = h.workflow.Approve(h.ctx, inv.ID)
	require.NoError(t, err)
	_, err = h.workflow.MarkUnpaid(h.ctx, inv.ID)
	require.NoError(t, err)

	assert.Equal(t, types.Quantity(100), h.quantity(t, p.ID))

	_, err = h.workflow.MarkPaid(h.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(97), h.quantity(t, p.ID))
}

func TestRequestModification_RestoreOnModificationEnabled(t *testing.T) {
	cfg := testWorkflowConfig()
	cfg.RestoreOnModification = true
	h := newHarness(t, cfg)
	p := h.product(t, "SKU-1", 100)
	inv := h.approved(t, line{product: p, qty: 10, price: 20})

	_, err := h.workflow.MarkPaid(h.ctx, inv.ID)
	require.NoError(t, err)

	requested, err := h.workflow.RequestModification(h.ctx, inv.ID, "wrong quantity")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, requested.Status)
	assert.Nil(t, requested.StockDeductedAt)
	assert.Nil(t, requested.PaidBy)
	assert.Nil(t, requested.PaidAt)
	assert.Equal(t, types.Quantity(100), h.quantity(t, p.ID))

	reopened, err := h.workflow.ApproveModification(h.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPending, reopened.Status)
	assert.Nil(t, reopened.PaidBy)
	assert.Nil(t, reopened.PaidAt)
	_, err = h.workflow.Approve(h.ctx, inv.ID)
	require.NoError(t, err)

	paid, err := h.workflow.MarkPaid(h.ctx, inv.ID)
	require.NoError(t, err)
	assert.NotNil(t, paid.StockDeductedAt)
	assert.Equal(t, types.Quantity(90), h.quantity(t, p.ID))
}

func TestRequestModification_ApprovedInvoice(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	inv := h.approved(t, line{qty: 1, price: 10})

	requested, err := h.workflow.RequestModification(h.ctx, inv.ID, "")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusApproved, requested.Status)
	assert.False(t, requested.IsEditable())

	_, err = h.workflow.MarkPaid(h.ctx, inv.ID)
	requireCode(t, err, apperror.CodeModificationPending)
}

func TestWorkflow_RecordsAuditAndEvents(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	p := h.product(t, "SKU-1", 12)
	p.MinQuantity = 5
	require.NoError(t, h.products.Update(h.ctx, p))

	inv := h.approved(t, line{product: p, qty: 8, price: 20})
	_, err := h.workflow.MarkPaid(h.ctx, inv.ID)
	require.NoError(t, err)

	published := h.store.Outbox().EventTypes()
	assert.Contains(t, published, events.InvoiceCreated)
	assert.Contains(t, published, events.InvoiceSubmitted)
	assert.Contains(t, published, events.InvoiceApproved)
	assert.Contains(t, published, events.InvoicePaid)
	assert.Contains(t, published, events.StockDeducted)
	assert.Contains(t, published, events.ProductLowStock)

	history, err := h.invoices.History(h.ctx, inv.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 4) // create, submit, approve, mark_paid
	assert.Contains(t, string(history[0].Changes), "mark_paid")
}

// conflictingRepo fails the first n updates with a version conflict.
type conflictingRepo struct {
	invoice.Repository
	mu       sync.Mutex
	failures int
	calls    int
}

func (r *conflictingRepo) Update(ctx context.Context, inv *invoice.Invoice) error {
	r.mu.Lock()
	r.calls++
	fail := r.calls <= r.failures
	r.mu.Unlock()
	if fail {
		return apperror.NewConcurrentModification("doc_invoices", inv.ID)
	}
	return r.Repository.Update(ctx, inv)
}

func TestWorkflow_RetriesConcurrencyConflicts(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	p := h.product(t, "SKU-1", 10)
	inv := h.approved(t, line{product: p, qty: 4, price: 20})

	repo := &conflictingRepo{Repository: h.store.Invoices(), failures: 2}
	wf := invoice.NewWorkflow(repo, h.store, h.ledger, nil, nil, nil, testWorkflowConfig())

	paid, err := wf.MarkPaid(h.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, paid.Status)
	assert.Equal(t, 3, repo.calls)
	// rolled-back attempts left no trace in stock
	assert.Equal(t, types.Quantity(6), h.quantity(t, p.ID))
}

func TestWorkflow_GivesUpAfterMaxRetries(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	p := h.product(t, "SKU-1", 10)
	inv := h.approved(t, line{product: p, qty: 4, price: 20})

	cfg := testWorkflowConfig()
	cfg.MaxRetries = 1
	repo := &conflictingRepo{Repository: h.store.Invoices(), failures: 5}
	wf := invoice.NewWorkflow(repo, h.store, h.ledger, nil, nil, nil, cfg)

	_, err := wf.MarkPaid(h.ctx, inv.ID)
	requireCode(t, err, apperror.CodeConcurrentModification)
	assert.Equal(t, 2, repo.calls)
	assert.Equal(t, types.Quantity(10), h.quantity(t, p.ID))
}

func TestWorkflow_StopsRetryingWhenContextDone(t *testing.T) {
	h := newHarness(t, testWorkflowConfig())
	inv := h.approved(t, line{qty: 1, price: 20})

	cfg := testWorkflowConfig()
	cfg.RetryBackoff = 50 * time.Millisecond
	repo := &conflictingRepo{Repository: h.store.Invoices(), failures: 5}
	wf := invoice.NewWorkflow(repo, h.store, h.ledger, nil, nil, nil, cfg)

	ctx, cancel := context.WithCancel(h.ctx)
	cancel()

	_, err := wf.MarkPaid(ctx, inv.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) || apperror.IsConcurrentModification(err))
}
