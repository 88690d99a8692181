package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"invoiceflow/internal/core/apperror"
	"invoiceflow/internal/core/id"
	"invoiceflow/internal/core/types"
	"invoiceflow/internal/domain"
	"invoiceflow/internal/domain/catalogs/product"
	"invoiceflow/internal/domain/registers/stock"
	"invoiceflow/internal/infrastructure/storage/postgres"
)

const productTable = "cat_products"

// ProductRepo implements product.Repository against cat_products.
type ProductRepo struct {
	*BaseCatalogRepo[*product.Product]
}

var _ product.Repository = (*ProductRepo)(nil)

// NewProductRepo creates a new product repository.
func NewProductRepo(txManager *postgres.TxManager) *ProductRepo {
	return &ProductRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txManager,
			productTable,
			postgres.ExtractDBColumns[product.Product](),
			// quantity moves only through ApplyDelta
			[]string{"quantity"},
			func() *product.Product { return &product.Product{} },
		),
	}
}

// FindLowStock lists products at or below their reorder threshold.
func (r *ProductRepo) FindLowStock(ctx context.Context, f domain.ListFilter) (domain.ListResult[*product.Product], error) {
	return r.ListWhere(ctx, f, squirrel.Expr("min_quantity > 0 AND quantity <= min_quantity"))
}

type levelRow struct {
	ID           id.ID          `db:"id"`
	Code         string         `db:"code"`
	Name         string         `db:"name"`
	Quantity     types.Quantity `db:"quantity"`
	MinQuantity  types.Quantity `db:"min_quantity"`
	DeletionMark bool           `db:"deletion_mark"`
}

func (l levelRow) level() stock.ProductLevel {
	return stock.ProductLevel{
		ProductID:   l.ID,
		SKU:         l.Code,
		Name:        l.Name,
		Quantity:    l.Quantity,
		MinQuantity: l.MinQuantity,
		Deleted:     l.DeletionMark,
	}
}

func (r *ProductRepo) levelSelect(ctx context.Context) squirrel.SelectBuilder {
	return r.Builder().
		Select("id", "code", "name", "quantity", "min_quantity", "deletion_mark").
		From(productTable).
		Where(tenantScope(ctx))
}

func (r *ProductRepo) queryLevels(ctx context.Context, q squirrel.SelectBuilder) ([]levelRow, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build levels query: %w", err)
	}

	var rows []levelRow
	if err := pgxscan.Select(ctx, r.querier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select levels: %w", postgres.MapError(err))
	}
	return rows, nil
}

func levelMap(rows []levelRow) map[id.ID]stock.ProductLevel {
	out := make(map[id.ID]stock.ProductLevel, len(rows))
	for _, row := range rows {
		out[row.ID] = row.level()
	}
	return out
}

// LockLevels locks the rows in id order. Deleted products are locked too so
// a restore can still reach them.
func (r *ProductRepo) LockLevels(ctx context.Context, productIDs []id.ID) (map[id.ID]stock.ProductLevel, error) {
	if len(productIDs) == 0 {
		return map[id.ID]stock.ProductLevel{}, nil
	}

	q := r.levelSelect(ctx).
		Where(squirrel.Eq{"id": id.SortedUnique(productIDs)}).
		OrderBy("id").
		Suffix("FOR UPDATE")

	rows, err := r.queryLevels(ctx, q)
	if err != nil {
		return nil, err
	}
	return levelMap(rows), nil
}

// GetLevels reads live products without locking.
func (r *ProductRepo) GetLevels(ctx context.Context, productIDs []id.ID) (map[id.ID]stock.ProductLevel, error) {
	if len(productIDs) == 0 {
		return map[id.ID]stock.ProductLevel{}, nil
	}

	q := r.levelSelect(ctx).
		Where(squirrel.Eq{"id": productIDs, "deletion_mark": false})

	rows, err := r.queryLevels(ctx, q)
	if err != nil {
		return nil, err
	}
	return levelMap(rows), nil
}

// ListLevels reads every live product of the tenant ordered by SKU.
func (r *ProductRepo) ListLevels(ctx context.Context) ([]stock.ProductLevel, error) {
	q := r.levelSelect(ctx).
		Where(squirrel.Eq{"deletion_mark": false}).
		OrderBy("code")

	rows, err := r.queryLevels(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]stock.ProductLevel, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.level())
	}
	return out, nil
}

func (r *ProductRepo) applyDeltaQuery(ctx context.Context, productID id.ID, delta types.Quantity) squirrel.UpdateBuilder {
	return r.Builder().
		Update(productTable).
		Set("quantity", squirrel.Expr("quantity + ?", delta)).
		Where(squirrel.Eq{"id": productID}).
		Where(tenantScope(ctx)).
		Where(squirrel.Expr("quantity + ? >= 0", delta)).
		Suffix("RETURNING quantity")
}

// ApplyDelta changes quantity in one guarded statement. The WHERE clause
// refuses any delta that would take the row below zero.
func (r *ProductRepo) ApplyDelta(ctx context.Context, productID id.ID, delta types.Quantity) (types.Quantity, error) {
	sql, args, err := r.applyDeltaQuery(ctx, productID, delta).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build apply delta: %w", err)
	}

	var qty types.Quantity
	err = r.querier(ctx).QueryRow(ctx, sql, args...).Scan(&qty)
	if err == nil {
		return qty, nil
	}
	if !postgres.IsNoRows(err) {
		return 0, fmt.Errorf("apply delta: %w", postgres.MapError(err))
	}

	// Either the product is gone or the guard refused the delta.
	levels, lookupErr := r.LockLevels(ctx, []id.ID{productID})
	if lookupErr != nil {
		return 0, lookupErr
	}
	current, ok := levels[productID]
	if !ok {
		return 0, apperror.NewNotFound(productTable, productID.String())
	}
	return 0, apperror.NewInsufficientStock(productID.String(), delta.Neg().Int64(), current.Quantity.Int64()).
		WithDetail("sku", current.SKU)
}
