// Package register_repo provides PostgreSQL implementations for register repositories.
package register_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/core/entity"
	"invoiceflow/internal/core/id"
	"invoiceflow/internal/core/types"
	"invoiceflow/internal/domain/registers/stock"
	"invoiceflow/internal/infrastructure/storage/postgres"
)

const stockMovementsTable = "reg_stock_movements"

var movementColumns = []string{
	"id", "tenant_id", "product_id", "type", "quantity", "delta",
	"reason", "invoice_id", "created_by", "created_at",
}

// StockRepo implements stock.Repository.
type StockRepo struct {
	txManager *postgres.TxManager
	writer    *postgres.BatchWriter
	builder   squirrel.StatementBuilderType
}

// NewStockRepo creates a new stock register repository.
func NewStockRepo(txManager *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txManager: txManager,
		writer:    postgres.NewBatchWriter(txManager),
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func movementRow(m entity.StockMovement) []any {
	return []any{
		m.ID, m.TenantID, m.ProductID, string(m.Type), m.Quantity, m.Delta,
		m.Reason, m.InvoiceID, m.CreatedBy, m.CreatedAt,
	}
}

// CreateMovements batch inserts movements.
func (r *StockRepo) CreateMovements(ctx context.Context, movements []entity.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}

	// Fast path: COPY when inside a transaction.
	if r.txManager.GetTx(ctx) != nil {
		rows := make([][]any, 0, len(movements))
		for _, m := range movements {
			rows = append(rows, movementRow(m))
		}
		if _, err := r.writer.CopyRows(ctx, stockMovementsTable, movementColumns, rows); err != nil {
			return fmt.Errorf("copy movements: %w", postgres.MapError(err))
		}
		return nil
	}

	q := r.builder.Insert(stockMovementsTable).Columns(movementColumns...)
	for _, m := range movements {
		q = q.Values(movementRow(m)...)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movements: %w", postgres.MapError(err))
	}
	return nil
}

type productSum struct {
	ProductID id.ID          `db:"product_id"`
	Total     types.Quantity `db:"total"`
}

func (r *StockRepo) sumByProduct(ctx context.Context, q squirrel.SelectBuilder) (map[id.ID]types.Quantity, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var sums []productSum
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &sums, sql, args...); err != nil {
		return nil, fmt.Errorf("sum movements: %w", postgres.MapError(err))
	}

	out := make(map[id.ID]types.Quantity, len(sums))
	for _, s := range sums {
		out[s.ProductID] = s.Total
	}
	return out, nil
}

// OutstandingByInvoice nets invoice_paid OUT rows against invoice_unpaid IN rows.
// Products already fully restored are left out.
func (r *StockRepo) OutstandingByInvoice(ctx context.Context, invoiceID id.ID) (map[id.ID]types.Quantity, error) {
	return r.sumByProduct(ctx, r.outstandingQuery(ctx, invoiceID))
}

// outstandingQuery nets the paid and unpaid movements of one invoice per product.
// Deductions carry a negative delta, so the outstanding amount is its negation.
func (r *StockRepo) outstandingQuery(ctx context.Context, invoiceID id.ID) squirrel.SelectBuilder {
	return r.builder.
		Select("product_id", "-SUM(delta) AS total").
		From(stockMovementsTable).
		Where(squirrel.Eq{
			"tenant_id":  appctx.GetTenantID(ctx),
			"invoice_id": invoiceID,
			"reason":     []string{entity.ReasonInvoicePaid, entity.ReasonInvoiceUnpaid},
		}).
		GroupBy("product_id").
		Having("SUM(delta) <> 0")
}

// SumDeltas returns the net movement per product for the tenant.
func (r *StockRepo) SumDeltas(ctx context.Context) (map[id.ID]types.Quantity, error) {
	q := r.builder.
		Select("product_id", "SUM(delta) AS total").
		From(stockMovementsTable).
		Where(squirrel.Eq{"tenant_id": appctx.GetTenantID(ctx)}).
		GroupBy("product_id")

	return r.sumByProduct(ctx, q)
}

// GetMovementHistory returns movement history for a product, newest first.
func (r *StockRepo) GetMovementHistory(ctx context.Context, productID id.ID, filter stock.MovementFilter) ([]entity.StockMovement, error) {
	q := r.builder.Select(movementColumns...).
		From(stockMovementsTable).
		Where(squirrel.Eq{
			"tenant_id":  appctx.GetTenantID(ctx),
			"product_id": productID,
		})

	if filter.InvoiceID != nil {
		q = q.Where(squirrel.Eq{"invoice_id": *filter.InvoiceID})
	}
	if filter.Reason != "" {
		q = q.Where(squirrel.Eq{"reason": filter.Reason})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.ToDate})
	}

	// ids are UUIDv7, so they break ties inside one timestamp
	q = q.OrderBy("created_at DESC", "id DESC")

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []entity.StockMovement
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select history: %w", postgres.MapError(err))
	}
	return movements, nil
}

var _ stock.Repository = (*StockRepo)(nil)
