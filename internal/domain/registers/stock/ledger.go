package stock

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"invoiceflow/internal/core/apperror"
	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/core/entity"
	"invoiceflow/internal/core/id"
	"invoiceflow/internal/core/tx"
	"invoiceflow/internal/core/types"
	"invoiceflow/internal/domain/events"
	"invoiceflow/pkg/logger"
)

// Line is one product demand of an invoice.
type Line struct {
	ProductID id.ID
	Quantity  types.Quantity
	LineNo    int
}

// DeductRequest asks the ledger to take an invoice's demand out of stock.
type DeductRequest struct {
	InvoiceID     id.ID
	InvoiceNumber string
	Lines         []Line
}

// Effect is the per-product quantity moved by one ledger operation.
type Effect map[id.ID]types.Quantity

// Total returns the number of units moved.
func (e Effect) Total() types.Quantity {
	var total types.Quantity
	for _, q := range e {
		total += q
	}
	return total
}

// Lines renders the effect for event payloads.
func (e Effect) Lines() map[string]int64 {
	out := make(map[string]int64, len(e))
	for productID, q := range e {
		out[productID.String()] = q.Int64()
	}
	return out
}

// Shortage describes a product that cannot cover its demand.
type Shortage struct {
	ProductID id.ID          `json:"productId"`
	SKU       string         `json:"sku"`
	Requested types.Quantity `json:"requested"`
	Available types.Quantity `json:"available"`
}

// Shortfall is the missing number of units.
func (s Shortage) Shortfall() types.Quantity {
	return s.Requested - s.Available
}

// Drift is a product whose live quantity disagrees with its ledger.
type Drift struct {
	ProductID id.ID          `json:"productId"`
	SKU       string         `json:"sku"`
	Quantity  types.Quantity `json:"quantity"`
	LedgerSum types.Quantity `json:"ledgerSum"`
}

// Difference is quantity minus the ledger sum.
func (d Drift) Difference() types.Quantity {
	return d.Quantity - d.LedgerSum
}

// ReconcileReport is the result of a ledger consistency check.
type ReconcileReport struct {
	TenantID  string    `json:"tenantId"`
	CheckedAt time.Time `json:"checkedAt"`
	Products  int       `json:"products"`
	Drifts    []Drift   `json:"drifts"`
}

// Consistent reports whether no drift was found.
func (r ReconcileReport) Consistent() bool {
	return len(r.Drifts) == 0
}

// Ledger mutates stock. Every change to a product quantity goes through it
// together with a movement row.
//
// Write transactions are managed by the caller: Deduct and Restore run inside
// the workflow transaction, manual flows inside the product service transaction.
// Reconcile opens its own read-only snapshot through txm.
type Ledger struct {
	repo     Repository
	products ProductStore
	txm      tx.ReadOnlyManager
	events   events.Publisher
}

// NewLedger creates a stock ledger.
func NewLedger(repo Repository, products ProductStore, txm tx.ReadOnlyManager, publisher events.Publisher) *Ledger {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Ledger{
		repo:     repo,
		products: products,
		txm:      txm,
		events:   publisher,
	}
}

// Aggregate sums demand per product. Lines with a nil product are ignored.
func Aggregate(lines []Line) (Effect, error) {
	demand := make(Effect)
	for _, line := range lines {
		if id.IsNil(line.ProductID) {
			continue
		}
		if !line.Quantity.IsPositive() {
			return nil, apperror.NewValidation("quantity must be positive").
				WithDetail("field", "quantity").
				WithDetail("line_no", line.LineNo)
		}
		demand[line.ProductID] += line.Quantity
	}
	return demand, nil
}

// Deduct takes the aggregated demand of an invoice out of stock.
// Either every product is decremented and recorded, or nothing is.
func (l *Ledger) Deduct(ctx context.Context, req DeductRequest) (Effect, error) {
	demand, err := Aggregate(req.Lines)
	if err != nil {
		return nil, err
	}
	if len(demand) == 0 {
		return demand, nil
	}

	productIDs := id.SortedUnique(slices.Collect(maps.Keys(demand)))

	levels, err := l.products.LockLevels(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}

	// Check everything before touching anything.
	for _, productID := range productIDs {
		level, ok := levels[productID]
		if !ok || level.Deleted {
			return nil, apperror.NewValidation("product not found or deleted").
				WithDetail("field", "productId").
				WithDetail("product_id", productID.String())
		}
		if demand[productID] > level.Quantity {
			return nil, apperror.NewInsufficientStock(
				productID.String(),
				demand[productID].Int64(),
				level.Quantity.Int64(),
			).WithDetail("sku", level.SKU)
		}
	}

	invoiceID := req.InvoiceID
	movements := make([]entity.StockMovement, 0, len(productIDs))
	var lowStock []events.Event

	for _, productID := range productIDs {
		level := levels[productID]
		newQty, err := l.products.ApplyDelta(ctx, productID, demand[productID].Neg())
		if err != nil {
			return nil, fmt.Errorf("decrement %s: %w", productID, err)
		}

		movements = append(movements, l.newMovement(ctx, productID, entity.MovementOut, demand[productID], entity.ReasonInvoicePaid, &invoiceID))

		if level.MinQuantity.IsPositive() && level.Quantity > level.MinQuantity && newQty <= level.MinQuantity {
			lowStock = append(lowStock, events.Event{
				AggregateType: events.AggregateProduct,
				AggregateID:   productID,
				EventType:     events.ProductLowStock,
				Payload: events.LowStockPayload{
					ProductID:   productID.String(),
					SKU:         level.SKU,
					Quantity:    newQty.Int64(),
					MinQuantity: level.MinQuantity.Int64(),
				},
			})
		}
	}

	if err := l.repo.CreateMovements(ctx, movements); err != nil {
		return nil, fmt.Errorf("record movements: %w", err)
	}

	if len(lowStock) > 0 {
		if err := l.events.PublishBatch(ctx, lowStock); err != nil {
			return nil, fmt.Errorf("publish low stock: %w", err)
		}
	}

	logger.Info(ctx, "stock deducted",
		"invoice_id", req.InvoiceID,
		"invoice_number", req.InvoiceNumber,
		"products", len(demand),
		"units", demand.Total(),
	)

	return demand, nil
}

// Restore puts back what is still outstanding for an invoice according to the
// ledger, regardless of the invoice's current items.
func (l *Ledger) Restore(ctx context.Context, invoiceID id.ID) (Effect, error) {
	outstanding, err := l.repo.OutstandingByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("outstanding movements: %w", err)
	}

	effect := make(Effect, len(outstanding))
	for productID, q := range outstanding {
		if q.IsPositive() {
			effect[productID] = q
		}
	}
	if len(effect) == 0 {
		return effect, nil
	}

	productIDs := id.SortedUnique(slices.Collect(maps.Keys(effect)))

	// Deleted products still get their stock back.
	if _, err := l.products.LockLevels(ctx, productIDs); err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}

	movements := make([]entity.StockMovement, 0, len(productIDs))
	for _, productID := range productIDs {
		if _, err := l.products.ApplyDelta(ctx, productID, effect[productID]); err != nil {
			return nil, fmt.Errorf("increment %s: %w", productID, err)
		}
		movements = append(movements, l.newMovement(ctx, productID, entity.MovementIn, effect[productID], entity.ReasonInvoiceUnpaid, &invoiceID))
	}

	if err := l.repo.CreateMovements(ctx, movements); err != nil {
		return nil, fmt.Errorf("record movements: %w", err)
	}

	logger.Info(ctx, "stock restored",
		"invoice_id", invoiceID,
		"products", len(effect),
		"units", effect.Total(),
	)

	return effect, nil
}

// Receive records incoming goods.
func (l *Ledger) Receive(ctx context.Context, productID id.ID, qty types.Quantity, reason string) (entity.StockMovement, error) {
	if !qty.IsPositive() {
		return entity.StockMovement{}, apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity")
	}
	if reason == "" {
		reason = entity.ReasonRestock
	}
	return l.apply(ctx, productID, entity.MovementIn, qty, reason)
}

// Adjust corrects stock by a signed delta. It refuses to go below zero.
func (l *Ledger) Adjust(ctx context.Context, productID id.ID, delta types.Quantity, reason string) (entity.StockMovement, error) {
	if delta.IsZero() {
		return entity.StockMovement{}, apperror.NewValidation("delta must not be zero").
			WithDetail("field", "delta")
	}
	if reason == "" {
		reason = entity.ReasonAdjustment
	}
	return l.apply(ctx, productID, entity.MovementAdjustment, delta, reason)
}

// RecordOpeningBalance writes the movement that explains a product's initial
// quantity. The quantity itself is already on the product row.
func (l *Ledger) RecordOpeningBalance(ctx context.Context, productID id.ID, qty types.Quantity) error {
	if qty.IsZero() {
		return nil
	}
	m := l.newMovement(ctx, productID, entity.MovementAdjustment, qty, entity.ReasonOpeningBalance, nil)
	return l.repo.CreateMovements(ctx, []entity.StockMovement{m})
}

func (l *Ledger) apply(ctx context.Context, productID id.ID, movementType entity.MovementType, delta types.Quantity, reason string) (entity.StockMovement, error) {
	levels, err := l.products.LockLevels(ctx, []id.ID{productID})
	if err != nil {
		return entity.StockMovement{}, fmt.Errorf("lock product: %w", err)
	}
	level, ok := levels[productID]
	if !ok || level.Deleted {
		return entity.StockMovement{}, apperror.NewNotFound("product", productID.String())
	}

	m := l.newMovement(ctx, productID, movementType, delta, reason, nil)
	if level.Quantity+m.Delta < 0 {
		return entity.StockMovement{}, apperror.NewInsufficientStock(
			productID.String(), m.Quantity.Int64(), level.Quantity.Int64(),
		).WithDetail("sku", level.SKU)
	}

	if _, err := l.products.ApplyDelta(ctx, productID, m.Delta); err != nil {
		return entity.StockMovement{}, fmt.Errorf("apply delta: %w", err)
	}
	if err := l.repo.CreateMovements(ctx, []entity.StockMovement{m}); err != nil {
		return entity.StockMovement{}, fmt.Errorf("record movement: %w", err)
	}

	logger.Info(ctx, "stock movement recorded",
		"product_id", productID,
		"type", m.Type,
		"delta", m.Delta,
		"reason", reason,
	)

	return m, nil
}

func (l *Ledger) newMovement(ctx context.Context, productID id.ID, movementType entity.MovementType, qty types.Quantity, reason string, invoiceID *id.ID) entity.StockMovement {
	return entity.NewStockMovement(
		appctx.GetTenantID(ctx),
		productID,
		movementType,
		qty,
		reason,
		invoiceID,
		appctx.GetUserID(ctx),
	)
}

// CheckAvailability previews shortages for a set of lines without locking.
func (l *Ledger) CheckAvailability(ctx context.Context, lines []Line) ([]Shortage, error) {
	demand, err := Aggregate(lines)
	if err != nil {
		return nil, err
	}
	if len(demand) == 0 {
		return nil, nil
	}

	productIDs := id.SortedUnique(slices.Collect(maps.Keys(demand)))
	levels, err := l.products.GetLevels(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("get levels: %w", err)
	}

	var shortages []Shortage
	for _, productID := range productIDs {
		level := levels[productID] // missing products count as zero stock
		if demand[productID] > level.Quantity {
			shortages = append(shortages, Shortage{
				ProductID: productID,
				SKU:       level.SKU,
				Requested: demand[productID],
				Available: level.Quantity,
			})
		}
	}
	return shortages, nil
}

// Reconcile compares every product's live quantity with the sum of its movements.
// Both are read from one snapshot, so stock moved by concurrent payments is
// either fully visible or not at all.
func (l *Ledger) Reconcile(ctx context.Context) (ReconcileReport, error) {
	report := ReconcileReport{
		TenantID:  appctx.GetTenantID(ctx),
		CheckedAt: time.Now().UTC(),
	}

	var (
		levels []ProductLevel
		sums   map[id.ID]types.Quantity
	)
	err := l.txm.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		if levels, err = l.products.ListLevels(ctx); err != nil {
			return fmt.Errorf("list products: %w", err)
		}
		if sums, err = l.repo.SumDeltas(ctx); err != nil {
			return fmt.Errorf("sum movements: %w", err)
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	report.Products = len(levels)
	for _, level := range levels {
		if sum := sums[level.ProductID]; sum != level.Quantity {
			report.Drifts = append(report.Drifts, Drift{
				ProductID: level.ProductID,
				SKU:       level.SKU,
				Quantity:  level.Quantity,
				LedgerSum: sum,
			})
		}
	}

	if !report.Consistent() {
		logger.Warn(ctx, "stock ledger drift detected", "products", len(report.Drifts))
	}

	return report, nil
}

// History returns the movements of one product.
func (l *Ledger) History(ctx context.Context, productID id.ID, filter MovementFilter) ([]entity.StockMovement, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return l.repo.GetMovementHistory(ctx, productID, filter)
}
