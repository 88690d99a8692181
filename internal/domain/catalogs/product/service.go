package product

import (
	"context"
	"fmt"

	"invoiceflow/internal/core/apperror"
	"invoiceflow/internal/core/entity"
	"invoiceflow/internal/core/id"
	"invoiceflow/internal/core/tx"
	"invoiceflow/internal/core/types"
	"invoiceflow/internal/domain"
	"invoiceflow/internal/domain/audit"
	"invoiceflow/internal/domain/registers/stock"
)

// Service provides business logic for the product catalog.
// Uses composition with domain.CatalogService for common CRUD operations.
type Service struct {
	*domain.CatalogService[*Product]
	repo   Repository
	txm    tx.Manager
	ledger *stock.Ledger
	audit  audit.Logger
}

// NewService creates a new product service.
func NewService(repo Repository, txm tx.Manager, ledger *stock.Ledger, auditLog audit.Logger) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Product]{
		Repo:       repo,
		TxManager:  txm,
		EntityName: "product",
	})

	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}

	svc := &Service{
		CatalogService: base,
		repo:           repo,
		txm:            txm,
		ledger:         ledger,
		audit:          auditLog,
	}

	base.Hooks().OnBeforeCreate(svc.checkSKU)
	base.Hooks().OnCreatedInTx(svc.recordOpeningBalance)
	base.Hooks().OnBeforeUpdate(svc.checkSKU)

	return svc
}

func (s *Service) checkSKU(ctx context.Context, p *Product) error {
	existing, err := s.repo.GetByCode(ctx, p.Code)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("check sku: %w", err)
	}
	if existing.ID != p.ID {
		return apperror.NewDuplicate("product", "sku", p.Code)
	}
	return nil
}

func (s *Service) recordOpeningBalance(ctx context.Context, p *Product) error {
	if err := s.ledger.RecordOpeningBalance(ctx, p.ID, p.Quantity); err != nil {
		return fmt.Errorf("opening balance: %w", err)
	}
	return s.audit.LogChange(ctx, "product", p.ID, audit.ActionCreate, map[string]any{
		"sku":      p.Code,
		"name":     p.Name,
		"quantity": p.Quantity.Int64(),
	})
}

// Restock receives goods into stock.
func (s *Service) Restock(ctx context.Context, productID id.ID, qty types.Quantity, reason string) (*Product, entity.StockMovement, error) {
	return s.moveStock(ctx, productID, func(ctx context.Context) (entity.StockMovement, error) {
		return s.ledger.Receive(ctx, productID, qty, reason)
	})
}

// Adjust corrects stock by a signed delta (inventory count, breakage).
func (s *Service) Adjust(ctx context.Context, productID id.ID, delta types.Quantity, reason string) (*Product, entity.StockMovement, error) {
	return s.moveStock(ctx, productID, func(ctx context.Context) (entity.StockMovement, error) {
		return s.ledger.Adjust(ctx, productID, delta, reason)
	})
}

func (s *Service) moveStock(ctx context.Context, productID id.ID, move func(ctx context.Context) (entity.StockMovement, error)) (*Product, entity.StockMovement, error) {
	var (
		product  *Product
		movement entity.StockMovement
	)

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		m, err := move(ctx)
		if err != nil {
			return err
		}
		movement = m

		if err := s.audit.LogChange(ctx, "product", productID, audit.ActionStock, map[string]any{
			"type":   string(m.Type),
			"delta":  m.Delta.Int64(),
			"reason": m.Reason,
		}); err != nil {
			return fmt.Errorf("audit: %w", err)
		}

		product, err = s.repo.GetByID(ctx, productID)
		return err
	})
	if err != nil {
		return nil, entity.StockMovement{}, err
	}

	return product, movement, nil
}

// FindLowStock retrieves products at or below their reorder threshold.
func (s *Service) FindLowStock(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*Product], error) {
	return s.repo.FindLowStock(ctx, filter)
}

// Movements returns the ledger history of a product.
func (s *Service) Movements(ctx context.Context, productID id.ID, filter stock.MovementFilter) ([]entity.StockMovement, error) {
	if _, err := s.GetByID(ctx, productID); err != nil {
		return nil, err
	}
	return s.ledger.History(ctx, productID, filter)
}
