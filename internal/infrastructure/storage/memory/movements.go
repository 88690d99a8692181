package memory

import (
	"context"
	"slices"

	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/core/entity"
	"invoiceflow/internal/core/id"
	"invoiceflow/internal/core/types"
	"invoiceflow/internal/domain/registers/stock"
)

// MovementRepo implements stock.Repository.
type MovementRepo struct {
	store *Store
}

var _ stock.Repository = (*MovementRepo)(nil)

func (r *MovementRepo) CreateMovements(ctx context.Context, movements []entity.StockMovement) error {
	return r.store.with(ctx, func(st *state) error {
		st.movements = append(st.movements, movements...)
		return nil
	})
}

func (r *MovementRepo) OutstandingByInvoice(ctx context.Context, invoiceID id.ID) (map[id.ID]types.Quantity, error) {
	tenantID := appctx.GetTenantID(ctx)
	out := make(map[id.ID]types.Quantity)
	err := r.store.with(ctx, func(st *state) error {
		for _, m := range st.movements {
			if m.TenantID != tenantID || m.InvoiceID == nil || *m.InvoiceID != invoiceID {
				continue
			}
			switch m.Reason {
			case entity.ReasonInvoicePaid:
				out[m.ProductID] += m.Quantity
			case entity.ReasonInvoiceUnpaid:
				out[m.ProductID] -= m.Quantity
			}
		}
		return nil
	})
	return out, err
}

func (r *MovementRepo) GetMovementHistory(ctx context.Context, productID id.ID, filter stock.MovementFilter) ([]entity.StockMovement, error) {
	tenantID := appctx.GetTenantID(ctx)
	var out []entity.StockMovement
	err := r.store.with(ctx, func(st *state) error {
		for _, m := range st.movements {
			if m.TenantID != tenantID || m.ProductID != productID {
				continue
			}
			if filter.InvoiceID != nil && (m.InvoiceID == nil || *m.InvoiceID != *filter.InvoiceID) {
				continue
			}
			if filter.Reason != "" && m.Reason != filter.Reason {
				continue
			}
			if filter.FromDate != nil && m.CreatedAt.Before(*filter.FromDate) {
				continue
			}
			if filter.ToDate != nil && m.CreatedAt.After(*filter.ToDate) {
				continue
			}
			out = append(out, m)
		}
		return nil
	})
	slices.Reverse(out) // newest first
	return page(out, filter.Limit, filter.Offset), err
}

func (r *MovementRepo) SumDeltas(ctx context.Context) (map[id.ID]types.Quantity, error) {
	tenantID := appctx.GetTenantID(ctx)
	out := make(map[id.ID]types.Quantity)
	err := r.store.with(ctx, func(st *state) error {
		for _, m := range st.movements {
			if m.TenantID == tenantID {
				out[m.ProductID] += m.Delta
			}
		}
		return nil
	})
	return out, err
}

// All returns every movement of the tenant in insertion order.
func (r *MovementRepo) All(ctx context.Context) []entity.StockMovement {
	tenantID := appctx.GetTenantID(ctx)
	var out []entity.StockMovement
	_ = r.store.with(ctx, func(st *state) error {
		for _, m := range st.movements {
			if m.TenantID == tenantID {
				out = append(out, m)
			}
		}
		return nil
	})
	return out
}
