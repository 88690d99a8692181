package invoice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoiceflow/internal/core/apperror"
)

func requireValidation(t *testing.T, err error) *apperror.AppError {
	t.Helper()
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	require.Equal(t, apperror.CodeValidation, appErr.Code)
	return appErr
}

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		action  Action
		typ     Type
		from    Status
		allowed bool
	}{
		{ActionSubmit, TypeInvoice, StatusDraft, true},
		{ActionSubmit, TypeProforma, StatusDraft, false},
		{ActionValidateProforma, TypeProforma, StatusDraft, true},
		{ActionValidateProforma, TypeInvoice, StatusDraft, false},
		{ActionApprove, TypeInvoice, StatusPending, true},
		{ActionApprove, TypeInvoice, StatusDraft, false},
		{ActionMarkPaid, TypeInvoice, StatusApproved, true},
		{ActionMarkPaid, TypeInvoice, StatusPaid, false},
		{ActionMarkUnpaid, TypeInvoice, StatusPaid, true},
		{ActionMarkUnpaid, TypeInvoice, StatusApproved, true},
		{ActionMarkUnpaid, TypeInvoice, StatusPending, false},
		{ActionRequestModification, TypeInvoice, StatusPaid, true},
		{ActionRequestModification, TypeInvoice, StatusDraft, false},
		{ActionApproveModification, TypeInvoice, StatusCancelled, true},
		{ActionReject, TypeInvoice, StatusPending, true},
		{ActionReject, TypeInvoice, StatusApproved, false},
		{ActionCancel, TypeInvoice, StatusDraft, true},
		{ActionCancel, TypeInvoice, StatusPaid, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.action)+"/"+string(tt.from), func(t *testing.T) {
			inv := NewInvoice("t1", tt.typ, "ACME")
			inv.Status = tt.from

			err := CheckTransition(inv, tt.action)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apperror.IsCode(err, apperror.CodeInvalidTransition), "got %v", err)
		})
	}
}

func TestTarget(t *testing.T) {
	assert.Equal(t, StatusPaid, ActionRequestModification.Target(StatusPaid))
	assert.Equal(t, StatusApproved, ActionRequestModification.Target(StatusApproved))
	assert.Equal(t, StatusPending, ActionApproveModification.Target(StatusPaid))
	assert.Equal(t, StatusApproved, ActionMarkUnpaid.Target(StatusPaid))
}

func TestAvailableActions(t *testing.T) {
	inv := NewInvoice("t1", TypeInvoice, "ACME")
	assert.ElementsMatch(t, []Action{ActionSubmit, ActionCancel}, AvailableActions(inv))

	now := time.Now()
	inv.Status = StatusPaid
	inv.StockDeductedAt = &now
	assert.ElementsMatch(t, []Action{ActionMarkUnpaid, ActionRequestModification}, AvailableActions(inv))

	inv.ModificationRequestedAt = &now
	assert.ElementsMatch(t, []Action{ActionMarkUnpaid, ActionApproveModification}, AvailableActions(inv))
}

func TestEnsureEditable(t *testing.T) {
	inv := NewInvoice("t1", TypeInvoice, "ACME")
	require.NoError(t, inv.EnsureEditable())

	inv.Status = StatusApproved
	err := inv.EnsureEditable()
	assert.True(t, apperror.IsCode(err, apperror.CodeInvoiceLocked))

	now := time.Now()
	inv.Status = StatusPending
	inv.ModificationRequestedAt = &now
	assert.True(t, apperror.IsCode(inv.EnsureEditable(), apperror.CodeInvoiceLocked))
}
