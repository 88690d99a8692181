package memory

import (
	"context"
	"slices"
	"strings"

	"invoiceflow/internal/core/apperror"
	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/core/id"
	"invoiceflow/internal/core/types"
	"invoiceflow/internal/domain"
	"invoiceflow/internal/domain/catalogs/product"
	"invoiceflow/internal/domain/registers/stock"
)

// ProductRepo implements product.Repository.
type ProductRepo struct {
	store *Store
}

var _ product.Repository = (*ProductRepo)(nil)

func (r *ProductRepo) visible(ctx context.Context, p product.Product) bool {
	return p.TenantID == appctx.GetTenantID(ctx)
}

func (r *ProductRepo) Create(ctx context.Context, p *product.Product) error {
	return r.store.with(ctx, func(st *state) error {
		if _, exists := st.products[p.ID]; exists {
			return apperror.NewDuplicate("product", "id", p.ID.String())
		}
		for _, other := range st.products {
			if other.TenantID == p.TenantID && other.Code == p.Code && !other.DeletionMark {
				return apperror.NewDuplicate("product", "sku", p.Code)
			}
		}
		st.products[p.ID] = *p
		return nil
	})
}

func (r *ProductRepo) GetByID(ctx context.Context, productID id.ID) (*product.Product, error) {
	var out *product.Product
	err := r.store.with(ctx, func(st *state) error {
		p, ok := st.products[productID]
		if !ok || !r.visible(ctx, p) {
			return apperror.NewNotFound("cat_products", productID.String())
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *ProductRepo) GetByCode(ctx context.Context, code string) (*product.Product, error) {
	var out *product.Product
	err := r.store.with(ctx, func(st *state) error {
		for _, p := range st.products {
			if r.visible(ctx, p) && p.Code == code && !p.DeletionMark {
				out = &p
				return nil
			}
		}
		return apperror.NewNotFound("cat_products", code)
	})
	return out, err
}

// Update writes everything except quantity, which belongs to the ledger.
func (r *ProductRepo) Update(ctx context.Context, p *product.Product) error {
	return r.store.with(ctx, func(st *state) error {
		current, ok := st.products[p.ID]
		if !ok || !r.visible(ctx, current) {
			return apperror.NewNotFound("cat_products", p.ID.String())
		}
		if current.Version != p.Version {
			return apperror.NewConcurrentModification("cat_products", p.ID)
		}
		next := *p
		next.Quantity = current.Quantity
		next.Version = current.Version + 1
		st.products[p.ID] = next

		p.Quantity = current.Quantity
		p.SetVersion(next.Version)
		return nil
	})
}

func (r *ProductRepo) SetDeletionMark(ctx context.Context, productID id.ID, marked bool) error {
	return r.store.with(ctx, func(st *state) error {
		p, ok := st.products[productID]
		if !ok || !r.visible(ctx, p) {
			return apperror.NewNotFound("cat_products", productID.String())
		}
		p.DeletionMark = marked
		p.Version++
		st.products[productID] = p
		return nil
	})
}

func (r *ProductRepo) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*product.Product], error) {
	return r.list(ctx, filter, func(product.Product) bool { return true })
}

func (r *ProductRepo) FindLowStock(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*product.Product], error) {
	return r.list(ctx, filter, func(p product.Product) bool { return p.IsLowStock() })
}

func (r *ProductRepo) list(ctx context.Context, filter domain.ListFilter, keep func(product.Product) bool) (domain.ListResult[*product.Product], error) {
	result := domain.ListResult[*product.Product]{Limit: filter.Limit, Offset: filter.Offset}
	if len(filter.AdvancedFilters) > 0 {
		return result, apperror.NewValidation("advanced filters are not supported by the in-memory store")
	}

	err := r.store.with(ctx, func(st *state) error {
		var items []*product.Product
		for _, p := range st.products {
			if !r.visible(ctx, p) || (p.DeletionMark && !filter.IncludeDeleted) || !keep(p) {
				continue
			}
			if len(filter.IDs) > 0 && !slices.Contains(filter.IDs, p.ID) {
				continue
			}
			if filter.Search != "" && !matches(filter.Search, p.Code, p.Name) {
				continue
			}
			items = append(items, &p)
		}
		slices.SortFunc(items, func(a, b *product.Product) int { return strings.Compare(a.Name, b.Name) })
		result.TotalCount = int64(len(items))
		result.Items = page(items, filter.Limit, filter.Offset)
		return nil
	})
	return result, err
}

func (r *ProductRepo) Exists(ctx context.Context, productID id.ID) (bool, error) {
	_, err := r.GetByID(ctx, productID)
	if apperror.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (r *ProductRepo) ExistsByCode(ctx context.Context, code string) (bool, error) {
	_, err := r.GetByCode(ctx, code)
	if apperror.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// --- stock.ProductStore ---

func level(p product.Product) stock.ProductLevel {
	return stock.ProductLevel{
		ProductID:   p.ID,
		SKU:         p.Code,
		Name:        p.Name,
		Quantity:    p.Quantity,
		MinQuantity: p.MinQuantity,
		Deleted:     p.DeletionMark,
	}
}

// LockLevels needs no row locks: the caller already holds the store mutex.
func (r *ProductRepo) LockLevels(ctx context.Context, productIDs []id.ID) (map[id.ID]stock.ProductLevel, error) {
	out := make(map[id.ID]stock.ProductLevel, len(productIDs))
	err := r.store.with(ctx, func(st *state) error {
		for _, productID := range productIDs {
			if p, ok := st.products[productID]; ok && r.visible(ctx, p) {
				out[productID] = level(p)
			}
		}
		return nil
	})
	return out, err
}

func (r *ProductRepo) GetLevels(ctx context.Context, productIDs []id.ID) (map[id.ID]stock.ProductLevel, error) {
	levels, err := r.LockLevels(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	for k, v := range levels {
		if v.Deleted {
			delete(levels, k)
		}
	}
	return levels, nil
}

func (r *ProductRepo) ListLevels(ctx context.Context) ([]stock.ProductLevel, error) {
	var out []stock.ProductLevel
	err := r.store.with(ctx, func(st *state) error {
		for _, p := range st.products {
			if r.visible(ctx, p) && !p.DeletionMark {
				out = append(out, level(p))
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b stock.ProductLevel) int { return strings.Compare(a.SKU, b.SKU) })
	return out, err
}

func (r *ProductRepo) ApplyDelta(ctx context.Context, productID id.ID, delta types.Quantity) (types.Quantity, error) {
	var newQty types.Quantity
	err := r.store.with(ctx, func(st *state) error {
		p, ok := st.products[productID]
		if !ok || !r.visible(ctx, p) {
			return apperror.NewNotFound("cat_products", productID.String())
		}
		if p.Quantity+delta < 0 {
			return apperror.NewInsufficientStock(productID.String(), delta.Neg().Int64(), p.Quantity.Int64()).
				WithDetail("sku", p.Code)
		}
		p.Quantity += delta
		st.products[productID] = p
		newQty = p.Quantity
		return nil
	})
	return newQty, err
}

// SetQuantity overwrites a product quantity without a movement.
// Only for tests that need to simulate drift.
func (r *ProductRepo) SetQuantity(ctx context.Context, productID id.ID, qty types.Quantity) error {
	return r.store.with(ctx, func(st *state) error {
		p, ok := st.products[productID]
		if !ok {
			return apperror.NewNotFound("cat_products", productID.String())
		}
		p.Quantity = qty
		st.products[productID] = p
		return nil
	})
}

func matches(search string, fields ...string) bool {
	search = strings.ToLower(search)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
