package memory

import (
	"context"
	"slices"
	"strings"

	"invoiceflow/internal/core/apperror"
	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/core/id"
	"invoiceflow/internal/domain"
	"invoiceflow/internal/domain/invoice"
)

// InvoiceRepo implements invoice.Repository.
type InvoiceRepo struct {
	store *Store
}

var _ invoice.Repository = (*InvoiceRepo)(nil)

func (r *InvoiceRepo) Create(ctx context.Context, inv *invoice.Invoice) error {
	return r.store.with(ctx, func(st *state) error {
		for _, other := range st.invoices {
			if other.TenantID == inv.TenantID && other.Number == inv.Number {
				return apperror.NewDuplicate("invoice", "number", inv.Number)
			}
		}
		stored := *inv
		stored.Items = slices.Clone(inv.Items)
		st.invoices[inv.ID] = stored
		return nil
	})
}

func (r *InvoiceRepo) get(ctx context.Context, invoiceID id.ID) (*invoice.Invoice, error) {
	var out *invoice.Invoice
	err := r.store.with(ctx, func(st *state) error {
		inv, ok := st.invoices[invoiceID]
		if !ok || inv.DeletionMark || inv.TenantID != appctx.GetTenantID(ctx) {
			return apperror.NewNotFound("doc_invoices", invoiceID.String())
		}
		inv.Items = slices.Clone(inv.Items)
		out = &inv
		return nil
	})
	return out, err
}

func (r *InvoiceRepo) GetByID(ctx context.Context, invoiceID id.ID) (*invoice.Invoice, error) {
	return r.get(ctx, invoiceID)
}

// GetForUpdate needs no row lock: transactions are serialized by the store.
func (r *InvoiceRepo) GetForUpdate(ctx context.Context, invoiceID id.ID) (*invoice.Invoice, error) {
	return r.get(ctx, invoiceID)
}

func (r *InvoiceRepo) Update(ctx context.Context, inv *invoice.Invoice) error {
	return r.store.with(ctx, func(st *state) error {
		current, ok := st.invoices[inv.ID]
		if !ok || current.DeletionMark || current.TenantID != appctx.GetTenantID(ctx) {
			return apperror.NewNotFound("doc_invoices", inv.ID.String())
		}
		if current.Version != inv.Version {
			return apperror.NewConcurrentModification("doc_invoices", inv.ID)
		}
		stored := *inv
		stored.Items = current.Items
		stored.Version = current.Version + 1
		st.invoices[inv.ID] = stored
		inv.SetVersion(stored.Version)
		return nil
	})
}

func (r *InvoiceRepo) SaveItems(ctx context.Context, invoiceID id.ID, items []invoice.Item) error {
	return r.store.with(ctx, func(st *state) error {
		current, ok := st.invoices[invoiceID]
		if !ok || current.TenantID != appctx.GetTenantID(ctx) {
			return apperror.NewNotFound("doc_invoices", invoiceID.String())
		}
		current.Items = slices.Clone(items)
		st.invoices[invoiceID] = current
		return nil
	})
}

func (r *InvoiceRepo) Delete(ctx context.Context, invoiceID id.ID) error {
	return r.store.with(ctx, func(st *state) error {
		current, ok := st.invoices[invoiceID]
		if !ok || current.DeletionMark || current.TenantID != appctx.GetTenantID(ctx) {
			return apperror.NewNotFound("doc_invoices", invoiceID.String())
		}
		current.DeletionMark = true
		current.Version++
		st.invoices[invoiceID] = current
		return nil
	})
}

func (r *InvoiceRepo) List(ctx context.Context, filter invoice.ListFilter) (domain.ListResult[*invoice.Invoice], error) {
	result := domain.ListResult[*invoice.Invoice]{Limit: filter.Limit, Offset: filter.Offset}
	if len(filter.AdvancedFilters) > 0 {
		return result, apperror.NewValidation("advanced filters are not supported by the in-memory store")
	}
	tenantID := appctx.GetTenantID(ctx)

	err := r.store.with(ctx, func(st *state) error {
		var items []*invoice.Invoice
		for _, inv := range st.invoices {
			if inv.TenantID != tenantID || (inv.DeletionMark && !filter.IncludeDeleted) {
				continue
			}
			if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, inv.Status) {
				continue
			}
			if filter.Type != "" && inv.Type != filter.Type {
				continue
			}
			if filter.StockDeducted != nil && inv.IsStockDeducted() != *filter.StockDeducted {
				continue
			}
			if filter.Search != "" && !matches(filter.Search, inv.Number, inv.CustomerName) {
				continue
			}
			inv.Items = nil
			items = append(items, &inv)
		}
		// newest first, like the SQL default
		slices.SortFunc(items, func(a, b *invoice.Invoice) int {
			if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
				return c
			}
			return strings.Compare(b.Number, a.Number)
		})
		result.TotalCount = int64(len(items))
		result.Items = page(items, filter.Limit, filter.Offset)
		return nil
	})
	return result, err
}
