package invoice

import (
	"context"
	"fmt"
	"time"

	"invoiceflow/internal/core/apperror"
	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/core/id"
	"invoiceflow/internal/core/numerator"
	"invoiceflow/internal/core/tx"
	"invoiceflow/internal/core/types"
	"invoiceflow/internal/domain"
	"invoiceflow/internal/domain/audit"
	"invoiceflow/internal/domain/events"
	"invoiceflow/internal/domain/registers/stock"
	"invoiceflow/pkg/logger"
)

// AvailabilityChecker previews stock shortages.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, lines []stock.Line) ([]stock.Shortage, error)
}

// ServiceConfig holds invoice defaults.
type ServiceConfig struct {
	DefaultCurrency         string
	DefaultCurrencyDecimals int32
	InvoicePrefix           string
	ProformaPrefix          string
}

// DefaultServiceConfig returns FCFA defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		DefaultCurrency:         "XOF",
		DefaultCurrencyDecimals: 0,
		InvoicePrefix:           "FAC",
		ProformaPrefix:          "PRO",
	}
}

// Service provides invoice CRUD under the edit lock. Status changes go through Workflow.
type Service struct {
	repo      Repository
	txm       tx.Manager
	numerator numerator.Generator
	stock     AvailabilityChecker
	audit     audit.Logger
	events    events.Publisher
	hooks     *domain.HookRegistry[*Invoice]
	cfg       ServiceConfig
}

// NewService creates a new invoice service.
func NewService(
	repo Repository,
	txm tx.Manager,
	gen numerator.Generator,
	checker AvailabilityChecker,
	auditLog audit.Logger,
	publisher events.Publisher,
	cfg ServiceConfig,
) *Service {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	svc := &Service{
		repo:      repo,
		txm:       txm,
		numerator: gen,
		stock:     checker,
		audit:     auditLog,
		events:    publisher,
		hooks:     domain.NewHookRegistry[*Invoice](),
		cfg:       cfg,
	}

	svc.hooks.OnBeforeCreate(func(ctx context.Context, inv *Invoice) error {
		return audit.EnrichCreatedBy(ctx, inv)
	})
	svc.hooks.OnBeforeUpdate(func(ctx context.Context, inv *Invoice) error {
		return audit.EnrichUpdatedBy(ctx, inv)
	})

	return svc
}

// Hooks returns the hook registry for external registration.
func (s *Service) Hooks() *domain.HookRegistry[*Invoice] {
	return s.hooks
}

// Create validates, numbers and stores a new DRAFT invoice.
func (s *Service) Create(ctx context.Context, inv *Invoice) error {
	tenantID := appctx.GetTenantID(ctx)
	if tenantID == "" {
		return apperror.NewUnauthorized("tenant is required")
	}

	inv.TenantID = tenantID
	inv.Status = StatusDraft
	inv.StockDeductedAt = nil
	if inv.Currency == "" {
		inv.Currency = s.cfg.DefaultCurrency
		inv.CurrencyDecimals = s.cfg.DefaultCurrencyDecimals
	}
	if inv.IssueDate.IsZero() {
		inv.IssueDate = time.Now().UTC().Truncate(24 * time.Hour)
	}
	inv.SetItems(inv.Items)
	inv.RecalcTotals()

	if err := inv.Validate(ctx); err != nil {
		return err
	}

	if err := s.hooks.Run(ctx, domain.BeforeCreate, inv); err != nil {
		return err
	}

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if inv.Number == "" {
			number, err := s.nextNumber(ctx, inv)
			if err != nil {
				return fmt.Errorf("generate number: %w", err)
			}
			inv.Number = number
		}

		if err := s.repo.Create(ctx, inv); err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}

		if err := s.audit.LogChange(ctx, "invoice", inv.ID, audit.ActionCreate, inv.Snapshot()); err != nil {
			return fmt.Errorf("audit: %w", err)
		}

		return s.events.Publish(ctx, events.Event{
			AggregateType: events.AggregateInvoice,
			AggregateID:   inv.ID,
			EventType:     events.InvoiceCreated,
			Payload: map[string]any{
				"invoiceId": inv.ID.String(),
				"number":    inv.Number,
				"type":      string(inv.Type),
				"total":     inv.Total.String(),
			},
		})
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "invoice created", "invoice_id", inv.ID, "number", inv.Number, "type", inv.Type)
	return nil
}

func (s *Service) nextNumber(ctx context.Context, inv *Invoice) (string, error) {
	if inv.Type == TypeProforma {
		return s.numerator.GetNextNumber(ctx, numerator.DefaultConfig(s.cfg.ProformaPrefix),
			&numerator.Options{Strategy: numerator.StrategyCached, RangeSize: 20}, inv.IssueDate)
	}
	return s.numerator.GetNextNumber(ctx, numerator.DefaultConfig(s.cfg.InvoicePrefix),
		numerator.DefaultOptions(), inv.IssueDate)
}

// Get returns the read-only projection of an invoice.
func (s *Service) Get(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	inv, err := s.repo.GetByID(ctx, invoiceID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("invoice", invoiceID.String())
		}
		return nil, err
	}
	return inv, nil
}

// List returns invoice headers.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Invoice], error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return domain.ListResult[*Invoice]{}, apperror.NewValidation("invalid status filter").
				WithDetail("status", string(st))
		}
	}
	return s.repo.List(ctx, filter)
}

// HeaderUpdate carries the editable header fields. Nil means unchanged.
type HeaderUpdate struct {
	CustomerName  *string
	CustomerEmail *string
	IssueDate     *time.Time
	DueDate       *time.Time
	Notes         *string
	TaxRate       *types.Money
}

// UpdateHeader changes header fields of an editable invoice.
// A positive expectedVersion enables the optimistic check against the client's copy.
func (s *Service) UpdateHeader(ctx context.Context, invoiceID id.ID, upd HeaderUpdate, expectedVersion int) (*Invoice, error) {
	return s.edit(ctx, invoiceID, expectedVersion, func(inv *Invoice) error {
		if upd.CustomerName != nil {
			inv.CustomerName = *upd.CustomerName
		}
		if upd.CustomerEmail != nil {
			inv.CustomerEmail = upd.CustomerEmail
		}
		if upd.IssueDate != nil {
			inv.IssueDate = *upd.IssueDate
		}
		if upd.DueDate != nil {
			inv.DueDate = upd.DueDate
		}
		if upd.Notes != nil {
			inv.Notes = upd.Notes
		}
		if upd.TaxRate != nil {
			inv.TaxRate = *upd.TaxRate
		}
		return nil
	}, false)
}

// ReplaceItems swaps all items of an editable invoice.
func (s *Service) ReplaceItems(ctx context.Context, invoiceID id.ID, items []Item, expectedVersion int) (*Invoice, error) {
	return s.edit(ctx, invoiceID, expectedVersion, func(inv *Invoice) error {
		inv.SetItems(items)
		return nil
	}, true)
}

func (s *Service) edit(ctx context.Context, invoiceID id.ID, expectedVersion int, apply func(inv *Invoice) error, itemsChanged bool) (*Invoice, error) {
	var result *Invoice

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		inv, err := s.repo.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if expectedVersion > 0 && inv.Version != expectedVersion {
			return apperror.NewConcurrentModification("invoice", invoiceID.String()).
				WithDetail("expected_version", expectedVersion).
				WithDetail("actual_version", inv.Version)
		}
		if err := inv.EnsureEditable(); err != nil {
			return err
		}

		before := inv.Snapshot()
		if err := apply(inv); err != nil {
			return err
		}
		inv.RecalcTotals()
		if err := inv.Validate(ctx); err != nil {
			return err
		}
		if err := s.hooks.Run(ctx, domain.BeforeUpdate, inv); err != nil {
			return err
		}
		inv.Touch()

		if itemsChanged {
			if err := s.repo.SaveItems(ctx, inv.ID, inv.Items); err != nil {
				return fmt.Errorf("save items: %w", err)
			}
		}
		if err := s.repo.Update(ctx, inv); err != nil {
			return err
		}

		if err := s.audit.LogChange(ctx, "invoice", inv.ID, audit.ActionUpdate, audit.Diff(before, inv.Snapshot())); err != nil {
			return fmt.Errorf("audit: %w", err)
		}

		result = inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Delete soft-deletes an invoice. An invoice whose stock is deducted cannot be deleted.
func (s *Service) Delete(ctx context.Context, invoiceID id.ID) error {
	return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		inv, err := s.repo.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.IsStockDeducted() {
			return apperror.NewBusinessRule(apperror.CodeStockNotRestored,
				"Invoice has deducted stock; mark it unpaid before deleting").
				WithDetail("invoice_id", invoiceID.String())
		}

		if err := s.repo.Delete(ctx, invoiceID); err != nil {
			return fmt.Errorf("delete invoice: %w", err)
		}

		if err := s.audit.LogChange(ctx, "invoice", invoiceID, audit.ActionDelete, inv.Snapshot()); err != nil {
			return fmt.Errorf("audit: %w", err)
		}

		return s.events.Publish(ctx, events.Event{
			AggregateType: events.AggregateInvoice,
			AggregateID:   invoiceID,
			EventType:     events.InvoiceDeleted,
			Payload:       map[string]any{"invoiceId": invoiceID.String(), "number": inv.Number},
		})
	})
}

// StockCheck previews shortages for the invoice's current items.
func (s *Service) StockCheck(ctx context.Context, invoiceID id.ID) ([]stock.Shortage, error) {
	inv, err := s.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return s.stock.CheckAvailability(ctx, inv.StockLines())
}

// History returns the audit trail of an invoice.
func (s *Service) History(ctx context.Context, invoiceID id.ID, limit int) ([]audit.Entry, error) {
	if _, err := s.Get(ctx, invoiceID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	return s.audit.GetEntityHistory(ctx, "invoice", invoiceID, limit)
}
