package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/core/id"
	"invoiceflow/internal/domain"
	"invoiceflow/internal/domain/invoice"
	"invoiceflow/internal/infrastructure/storage/postgres"
)

const (
	invoiceTable      = "doc_invoices"
	invoiceItemsTable = "doc_invoice_items"
)

var itemColumns = []string{"line_id", "line_no", "product_id", "description", "unit_price", "quantity", "line_total"}

// InvoiceRepo implements invoice.Repository.
type InvoiceRepo struct {
	*BaseDocumentRepo[*invoice.Invoice]
	writer *postgres.BatchWriter
}

var _ invoice.Repository = (*InvoiceRepo)(nil)

// NewInvoiceRepo creates a new invoice repository.
func NewInvoiceRepo(txManager *postgres.TxManager) *InvoiceRepo {
	return &InvoiceRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			txManager,
			invoiceTable,
			postgres.ExtractDBColumns[invoice.Invoice](),
			func() *invoice.Invoice { return &invoice.Invoice{} },
		),
		writer: postgres.NewBatchWriter(txManager),
	}
}

// Create inserts the header and its items. Callers run it inside a transaction.
func (r *InvoiceRepo) Create(ctx context.Context, inv *invoice.Invoice) error {
	if err := r.BaseDocumentRepo.Create(ctx, inv); err != nil {
		return err
	}
	return r.insertItems(ctx, inv.ID, inv.Items)
}

// GetByID loads the header and items.
func (r *InvoiceRepo) GetByID(ctx context.Context, invoiceID id.ID) (*invoice.Invoice, error) {
	inv, err := r.BaseDocumentRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return r.withItems(ctx, inv)
}

// GetForUpdate locks the header row. Items are only written together with
// the header, so the header lock covers them.
func (r *InvoiceRepo) GetForUpdate(ctx context.Context, invoiceID id.ID) (*invoice.Invoice, error) {
	inv, err := r.BaseDocumentRepo.GetForUpdate(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return r.withItems(ctx, inv)
}

func (r *InvoiceRepo) withItems(ctx context.Context, inv *invoice.Invoice) (*invoice.Invoice, error) {
	items, err := r.loadItems(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	inv.Items = items
	return inv, nil
}

func (r *InvoiceRepo) loadItems(ctx context.Context, invoiceID id.ID) ([]invoice.Item, error) {
	sql, args, err := r.Builder().
		Select(itemColumns...).
		From(invoiceItemsTable).
		Where(squirrel.Eq{"invoice_id": invoiceID}).
		Where(r.scope(ctx)).
		OrderBy("line_no").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build items query: %w", err)
	}

	items := make([]invoice.Item, 0)
	if err := pgxscan.Select(ctx, r.querier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("select items: %w", postgres.MapError(err))
	}
	return items, nil
}

// SaveItems replaces all items of an invoice.
func (r *InvoiceRepo) SaveItems(ctx context.Context, invoiceID id.ID, items []invoice.Item) error {
	sql, args, err := r.Builder().
		Delete(invoiceItemsTable).
		Where(squirrel.Eq{"invoice_id": invoiceID}).
		Where(r.scope(ctx)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete items: %w", err)
	}

	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete items: %w", postgres.MapError(err))
	}
	return r.insertItems(ctx, invoiceID, items)
}

func (r *InvoiceRepo) insertItems(ctx context.Context, invoiceID id.ID, items []invoice.Item) error {
	if len(items) == 0 {
		return nil
	}

	tenantID := appctx.GetTenantID(ctx)
	columns := append([]string{"tenant_id", "invoice_id"}, itemColumns...)
	rows := make([][]any, 0, len(items))
	for _, it := range items {
		rows = append(rows, []any{
			tenantID, invoiceID,
			it.LineID, it.LineNo, it.ProductID, it.Description, it.UnitPrice, it.Quantity, it.LineTotal,
		})
	}

	if _, err := r.writer.CopyRows(ctx, invoiceItemsTable, columns, rows); err != nil {
		return fmt.Errorf("copy items: %w", postgres.MapError(err))
	}
	return nil
}

// List returns headers without items.
func (r *InvoiceRepo) List(ctx context.Context, filter invoice.ListFilter) (domain.ListResult[*invoice.Invoice], error) {
	var conds []squirrel.Sqlizer

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		conds = append(conds, squirrel.Eq{"status": statuses})
	}
	if filter.Type != "" {
		conds = append(conds, squirrel.Eq{"type": string(filter.Type)})
	}
	if filter.StockDeducted != nil {
		if *filter.StockDeducted {
			conds = append(conds, squirrel.NotEq{"stock_deducted_at": nil})
		} else {
			conds = append(conds, squirrel.Eq{"stock_deducted_at": nil})
		}
	}

	return r.ListWhere(ctx, filter.ListFilter, conds...)
}
