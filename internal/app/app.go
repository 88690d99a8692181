// Package app assembles the domain services over a storage backend.
// cmd/server, cmd/worker and cmd/invoicectl share this wiring.
package app

import (
	"fmt"

	"invoiceflow/internal/core/numerator"
	"invoiceflow/internal/core/tx"
	"invoiceflow/internal/domain/audit"
	"invoiceflow/internal/domain/catalogs/product"
	"invoiceflow/internal/domain/events"
	"invoiceflow/internal/domain/invoice"
	"invoiceflow/internal/domain/registers/stock"
	numeratorImpl "invoiceflow/internal/infrastructure/numerator"
	"invoiceflow/internal/infrastructure/storage/memory"
	"invoiceflow/internal/infrastructure/storage/postgres"
	"invoiceflow/internal/infrastructure/storage/postgres/catalog_repo"
	"invoiceflow/internal/infrastructure/storage/postgres/document_repo"
	"invoiceflow/internal/infrastructure/storage/postgres/register_repo"
)

// Backend is a set of repositories sharing one transaction manager.
type Backend struct {
	TxManager tx.ReadOnlyManager
	Products  product.Repository
	Movements stock.Repository
	Invoices  invoice.Repository
	Audit     audit.Logger
	Events    events.Publisher
	Numerator numerator.Generator
}

// NewPostgresBackend builds the PostgreSQL repositories.
func NewPostgresBackend(txm *postgres.TxManager) (Backend, error) {
	auditLog, err := postgres.NewAuditLog(txm)
	if err != nil {
		return Backend{}, fmt.Errorf("audit log: %w", err)
	}

	return Backend{
		TxManager: txm,
		Products:  catalog_repo.NewProductRepo(txm),
		Movements: register_repo.NewStockRepo(txm),
		Invoices:  document_repo.NewInvoiceRepo(txm),
		Audit:     auditLog,
		Events:    postgres.NewOutboxPublisher(txm),
		Numerator: numeratorImpl.NewWithTxManager(txm),
	}, nil
}

// NewMemoryBackend builds the in-memory repositories.
func NewMemoryBackend(store *memory.Store) Backend {
	return Backend{
		TxManager: store,
		Products:  store.Products(),
		Movements: store.Movements(),
		Invoices:  store.Invoices(),
		Audit:     store.Audit(),
		Events:    store.Outbox(),
		Numerator: store.Numerator(),
	}
}

// Config carries the domain settings.
type Config struct {
	Workflow invoice.WorkflowConfig
	Invoice  invoice.ServiceConfig
}

// DefaultConfig returns default domain settings.
func DefaultConfig() Config {
	return Config{
		Workflow: invoice.DefaultWorkflowConfig(),
		Invoice:  invoice.DefaultServiceConfig(),
	}
}

// Services are the domain entry points.
type Services struct {
	Ledger   *stock.Ledger
	Products *product.Service
	Invoices *invoice.Service
	Workflow *invoice.Workflow
}

// NewServices wires the domain services over b.
func NewServices(b Backend, cfg Config) *Services {
	ledger := stock.NewLedger(b.Movements, b.Products, b.TxManager, b.Events)

	return &Services{
		Ledger:   ledger,
		Products: product.NewService(b.Products, b.TxManager, ledger, b.Audit),
		Invoices: invoice.NewService(b.Invoices, b.TxManager, b.Numerator, ledger, b.Audit, b.Events, cfg.Invoice),
		Workflow: invoice.NewWorkflow(b.Invoices, b.TxManager, ledger, nil, b.Audit, b.Events, cfg.Workflow),
	}
}
