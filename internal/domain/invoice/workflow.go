package invoice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"invoiceflow/internal/core/apperror"
	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/core/id"
	"invoiceflow/internal/core/tx"
	"invoiceflow/internal/domain/audit"
	"invoiceflow/internal/domain/events"
	"invoiceflow/internal/domain/registers/stock"
	"invoiceflow/pkg/logger"
)

// PermissionApprove grants approval authority.
const PermissionApprove = "invoice:approve"

// StockLedger is the part of the stock ledger the workflow drives.
type StockLedger interface {
	Deduct(ctx context.Context, req stock.DeductRequest) (stock.Effect, error)
	Restore(ctx context.Context, invoiceID id.ID) (stock.Effect, error)
}

// ApprovalPolicy decides whether the acting user may approve.
type ApprovalPolicy interface {
	CanApprove(ctx context.Context, inv *Invoice) bool
}

// PermissionPolicy grants approval to holders of a permission (admins hold all).
type PermissionPolicy struct {
	Permission string
}

// CanApprove implements ApprovalPolicy.
func (p PermissionPolicy) CanApprove(ctx context.Context, _ *Invoice) bool {
	return appctx.HasPermission(ctx, p.Permission)
}

// WorkflowConfig tunes the engine.
type WorkflowConfig struct {
	// MaxRetries is how many times a conflicting operation is re-run from scratch.
	MaxRetries int
	// RetryBackoff is the base delay between attempts.
	RetryBackoff time.Duration
	// RestoreOnModification restores deducted stock as soon as a modification
	// is requested on a PAID invoice.
	RestoreOnModification bool
}

// DefaultWorkflowConfig returns the default engine settings.
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		MaxRetries:   3,
		RetryBackoff: 20 * time.Millisecond,
	}
}

// Workflow moves invoices through their statuses. Each operation runs in one
// transaction: lock the invoice, check the transition and its guards, call the
// ledger when stock moves, write the invoice, append audit and outbox rows.
type Workflow struct {
	repo      Repository
	txm       tx.Manager
	ledger    StockLedger
	approvals ApprovalPolicy
	audit     audit.Logger
	events    events.Publisher
	cfg       WorkflowConfig
	tracer    trace.Tracer
	now       func() time.Time
}

// NewWorkflow creates the workflow engine.
func NewWorkflow(
	repo Repository,
	txm tx.Manager,
	ledger StockLedger,
	approvals ApprovalPolicy,
	auditLog audit.Logger,
	publisher events.Publisher,
	cfg WorkflowConfig,
) *Workflow {
	if approvals == nil {
		approvals = PermissionPolicy{Permission: PermissionApprove}
	}
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &Workflow{
		repo:      repo,
		txm:       txm,
		ledger:    ledger,
		approvals: approvals,
		audit:     auditLog,
		events:    publisher,
		cfg:       cfg,
		tracer:    otel.Tracer("invoiceflow/invoice"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// step is the action-specific part of a transition, run under the invoice lock.
type step func(ctx context.Context, inv *Invoice, actor string, now time.Time) (extra []events.Event, err error)

// Submit moves a DRAFT invoice to PENDING.
func (w *Workflow) Submit(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	return w.run(ctx, invoiceID, ActionSubmit, "", func(ctx context.Context, inv *Invoice, actor string, now time.Time) ([]events.Event, error) {
		return nil, requireItems(inv)
	})
}

// ValidateProforma moves a DRAFT proforma to SENT.
func (w *Workflow) ValidateProforma(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	return w.run(ctx, invoiceID, ActionValidateProforma, "", func(ctx context.Context, inv *Invoice, actor string, now time.Time) ([]events.Event, error) {
		if err := requireItems(inv); err != nil {
			return nil, err
		}
		inv.SentAt = &now
		return nil, nil
	})
}

// Approve moves a PENDING invoice to APPROVED.
func (w *Workflow) Approve(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	return w.run(ctx, invoiceID, ActionApprove, "", func(ctx context.Context, inv *Invoice, actor string, now time.Time) ([]events.Event, error) {
		if !w.approvals.CanApprove(ctx, inv) {
			return nil, apperror.NewForbidden("approval authority required").
				WithDetail("permission", PermissionApprove)
		}
		inv.ApprovedBy = &actor
		inv.ApprovedAt = &now
		return nil, nil
	})
}

// MarkPaid moves an APPROVED invoice to PAID and deducts its stock exactly once.
func (w *Workflow) MarkPaid(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	return w.run(ctx, invoiceID, ActionMarkPaid, "", func(ctx context.Context, inv *Invoice, actor string, now time.Time) ([]events.Event, error) {
		if inv.IsStockDeducted() {
			return nil, apperror.NewBusinessRule(apperror.CodeStockAlreadyDeducted,
				"Stock for this invoice is already deducted; mark it unpaid first").
				WithDetail("stock_deducted_at", inv.StockDeductedAt.Format(time.RFC3339))
		}
		if inv.HasPendingModification() {
			return nil, apperror.NewBusinessRule(apperror.CodeModificationPending,
				"A modification request is pending")
		}

		effect, err := w.ledger.Deduct(ctx, stock.DeductRequest{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.Number,
			Lines:         inv.StockLines(),
		})
		if err != nil {
			return nil, err
		}

		inv.PaidBy = &actor
		inv.PaidAt = &now
		inv.StockDeductedAt = &now

		return stockEvent(inv, events.StockDeducted, effect), nil
	})
}

// MarkUnpaid restores the stock of an invoice and moves it back to APPROVED.
// It is accepted from PAID, and from APPROVED while stock is still deducted
// (a paid invoice that went through a modification cycle).
func (w *Workflow) MarkUnpaid(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	return w.run(ctx, invoiceID, ActionMarkUnpaid, "", func(ctx context.Context, inv *Invoice, actor string, now time.Time) ([]events.Event, error) {
		if !inv.IsStockDeducted() {
			if inv.Status == StatusApproved {
				return nil, apperror.NewInvalidTransition(string(ActionMarkUnpaid), string(inv.Status), []string{string(StatusPaid)})
			}
			return nil, apperror.NewBusinessRule(apperror.CodeBusinessRule,
				"Stock for this invoice is not deducted")
		}

		effect, err := w.ledger.Restore(ctx, inv.ID)
		if err != nil {
			return nil, err
		}

		inv.PaidBy = nil
		inv.PaidAt = nil
		inv.StockDeductedAt = nil

		return stockEvent(inv, events.StockRestored, effect), nil
	})
}

// RequestModification asks to reopen an APPROVED or PAID invoice for editing.
func (w *Workflow) RequestModification(ctx context.Context, invoiceID id.ID, reason string) (*Invoice, error) {
	return w.run(ctx, invoiceID, ActionRequestModification, reason, func(ctx context.Context, inv *Invoice, actor string, now time.Time) ([]events.Event, error) {
		if inv.HasPendingModification() {
			return nil, apperror.NewBusinessRule(apperror.CodeModificationPending,
				"A modification request is already pending").
				WithDetail("requested_at", inv.ModificationRequestedAt.Format(time.RFC3339))
		}

		inv.ModificationRequestedAt = &now
		inv.ModificationRequestedBy = &actor
		inv.ModificationReason = optional(reason)

		if !w.cfg.RestoreOnModification || inv.Status != StatusPaid || !inv.IsStockDeducted() {
			return nil, nil
		}

		effect, err := w.ledger.Restore(ctx, inv.ID)
		if err != nil {
			return nil, err
		}
		inv.PaidBy = nil
		inv.PaidAt = nil
		inv.StockDeductedAt = nil

		return stockEvent(inv, events.StockRestored, effect), nil
	})
}

// ApproveModification clears a pending modification request and reopens the invoice as PENDING.
func (w *Workflow) ApproveModification(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	return w.run(ctx, invoiceID, ActionApproveModification, "", func(ctx context.Context, inv *Invoice, actor string, now time.Time) ([]events.Event, error) {
		if !inv.HasPendingModification() {
			return nil, apperror.NewInvalidTransition(string(ActionApproveModification), string(inv.Status), nil).
				WithDetail("reason", "no modification requested")
		}
		if !w.approvals.CanApprove(ctx, inv) {
			return nil, apperror.NewForbidden("approval authority required").
				WithDetail("permission", PermissionApprove)
		}

		inv.ModificationRequestedAt = nil
		inv.ModificationRequestedBy = nil
		inv.ModificationReason = nil
		inv.ApprovedBy = nil
		inv.ApprovedAt = nil
		return nil, nil
	})
}

// Reject moves a PENDING invoice to REJECTED. A reason is required.
func (w *Workflow) Reject(ctx context.Context, invoiceID id.ID, reason string) (*Invoice, error) {
	return w.run(ctx, invoiceID, ActionReject, reason, func(ctx context.Context, inv *Invoice, actor string, now time.Time) ([]events.Event, error) {
		if strings.TrimSpace(reason) == "" {
			return nil, apperror.NewValidation("rejection reason is required").
				WithDetail("field", "reason")
		}
		if !w.approvals.CanApprove(ctx, inv) {
			return nil, apperror.NewForbidden("approval authority required").
				WithDetail("permission", PermissionApprove)
		}
		if err := requireStockRestored(inv); err != nil {
			return nil, err
		}

		inv.RejectedBy = &actor
		inv.RejectedAt = &now
		inv.RejectionReason = optional(reason)
		return nil, nil
	})
}

// Cancel moves a DRAFT or PENDING invoice to CANCELLED.
func (w *Workflow) Cancel(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	return w.run(ctx, invoiceID, ActionCancel, "", func(ctx context.Context, inv *Invoice, actor string, now time.Time) ([]events.Event, error) {
		if err := requireStockRestored(inv); err != nil {
			return nil, err
		}
		inv.CancelledAt = &now
		return nil, nil
	})
}

// run executes one transition with retries on concurrency conflicts.
func (w *Workflow) run(ctx context.Context, invoiceID id.ID, action Action, reason string, apply step) (*Invoice, error) {
	ctx, span := w.tracer.Start(ctx, "invoice."+string(action), trace.WithAttributes(
		attribute.String("invoice.id", invoiceID.String()),
		attribute.String("invoice.action", string(action)),
	))
	defer span.End()

	actor := appctx.GetUserID(ctx)
	if actor == "" {
		return nil, apperror.NewUnauthorized("acting user is required")
	}

	var result *Invoice
	attempts, err := retryOnConflict(ctx, w.cfg.MaxRetries, w.cfg.RetryBackoff, func() error {
		return w.txm.RunInTransaction(ctx, func(ctx context.Context) error {
			inv, err := w.repo.GetForUpdate(ctx, invoiceID)
			if err != nil {
				return err
			}

			if err := CheckTransition(inv, action); err != nil {
				return err
			}

			from := inv.Status
			before := inv.Snapshot()
			now := w.now()

			extra, err := apply(ctx, inv, actor, now)
			if err != nil {
				return err
			}

			inv.Status = action.Target(inv.Status)
			inv.RecalcTotals()
			inv.UpdatedBy = actor
			inv.Touch()

			if err := w.repo.Update(ctx, inv); err != nil {
				return err
			}

			changes := audit.Diff(before, inv.Snapshot())
			changes["action"] = string(action)
			if reason != "" {
				changes["reason"] = reason
			}
			if err := w.audit.LogChange(ctx, "invoice", inv.ID, audit.ActionTransition, changes); err != nil {
				return fmt.Errorf("audit: %w", err)
			}

			evts := append([]events.Event{transitionEvent(inv, action, from, actor, reason)}, extra...)
			if err := w.events.PublishBatch(ctx, evts); err != nil {
				return fmt.Errorf("publish events: %w", err)
			}

			result = inv
			return nil
		})
	})
	span.SetAttributes(attribute.Int("invoice.attempts", attempts))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn(ctx, "invoice transition refused",
			"invoice_id", invoiceID,
			"action", action,
			"attempts", attempts,
			"error", err,
		)
		return nil, err
	}

	logger.Info(ctx, "invoice transition",
		"invoice_id", result.ID,
		"number", result.Number,
		"action", action,
		"status", result.Status,
	)
	return result, nil
}

// retryOnConflict re-runs fn while it fails with a concurrency conflict,
// at most maxRetries extra times.
func retryOnConflict(ctx context.Context, maxRetries int, backoff time.Duration, fn func() error) (int, error) {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !apperror.IsConcurrentModification(err) || attempt > maxRetries {
			return attempt, err
		}

		logger.Debug(ctx, "retrying after concurrency conflict", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(backoff * time.Duration(attempt)):
		}
	}
}

func requireItems(inv *Invoice) error {
	if len(inv.Items) == 0 {
		return apperror.NewValidation("invoice has no items").
			WithDetail("field", "items")
	}
	return nil
}

func requireStockRestored(inv *Invoice) error {
	if !inv.IsStockDeducted() {
		return nil
	}
	return apperror.NewBusinessRule(apperror.CodeStockNotRestored,
		"Stock for this invoice is still deducted; mark it unpaid first").
		WithDetail("stock_deducted_at", inv.StockDeductedAt.Format(time.RFC3339))
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

var transitionEvents = map[Action]string{
	ActionSubmit:              events.InvoiceSubmitted,
	ActionValidateProforma:    events.ProformaValidated,
	ActionApprove:             events.InvoiceApproved,
	ActionMarkPaid:            events.InvoicePaid,
	ActionMarkUnpaid:          events.InvoiceUnpaid,
	ActionRequestModification: events.InvoiceModificationRequested,
	ActionApproveModification: events.InvoiceModificationApproved,
	ActionReject:              events.InvoiceRejected,
	ActionCancel:              events.InvoiceCancelled,
}

func transitionEvent(inv *Invoice, action Action, from Status, actor, reason string) events.Event {
	return events.Event{
		AggregateType: events.AggregateInvoice,
		AggregateID:   inv.ID,
		EventType:     transitionEvents[action],
		Payload: events.TransitionPayload{
			InvoiceID: inv.ID.String(),
			Number:    inv.Number,
			Action:    string(action),
			From:      string(from),
			To:        string(inv.Status),
			ActorID:   actor,
			Reason:    reason,
		},
	}
}

func stockEvent(inv *Invoice, eventType string, effect stock.Effect) []events.Event {
	if len(effect) == 0 {
		return nil
	}
	return []events.Event{{
		AggregateType: events.AggregateInvoice,
		AggregateID:   inv.ID,
		EventType:     eventType,
		Payload: events.StockPayload{
			InvoiceID: inv.ID.String(),
			Lines:     effect.Lines(),
		},
	}}
}
