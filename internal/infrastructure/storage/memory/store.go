// Package memory provides an in-process implementation of every repository and
// of the transaction manager. Transactions are serialized by one mutex and rolled
// back by restoring a snapshot, which gives serializable semantics.
// Used by domain tests and by the offline CLI demo.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"invoiceflow/internal/core/entity"
	"invoiceflow/internal/core/id"
	"invoiceflow/internal/core/tx"
	"invoiceflow/internal/domain/audit"
	"invoiceflow/internal/domain/catalogs/product"
	"invoiceflow/internal/domain/invoice"
)

// OutboxRecord is an event stored by the in-memory outbox.
type OutboxRecord struct {
	TenantID      string
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
}

type state struct {
	products  map[id.ID]product.Product
	invoices  map[id.ID]invoice.Invoice
	movements []entity.StockMovement
	audit     []audit.Entry
	outbox    []OutboxRecord
	sequences map[string]int64
}

func newState() *state {
	return &state{
		products:  make(map[id.ID]product.Product),
		invoices:  make(map[id.ID]invoice.Invoice),
		sequences: make(map[string]int64),
	}
}

func (s *state) clone() *state {
	invoices := make(map[id.ID]invoice.Invoice, len(s.invoices))
	for k, v := range s.invoices {
		v.Items = slices.Clone(v.Items)
		invoices[k] = v
	}
	return &state{
		products:  maps.Clone(s.products),
		invoices:  invoices,
		movements: slices.Clone(s.movements),
		audit:     slices.Clone(s.audit),
		outbox:    slices.Clone(s.outbox),
		sequences: maps.Clone(s.sequences),
	}
}

// Store holds all data of the in-memory backend.
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{state: newState()}
}

type txKey struct{}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(bool)
	return ok
}

var (
	_ tx.Manager         = (*Store)(nil)
	_ tx.ReadOnlyManager = (*Store)(nil)
)

// RunInTransaction implements tx.Manager. Nested calls join the outer transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	defer func() {
		if p := recover(); p != nil {
			s.state = snapshot
			panic(p)
		}
		if err != nil {
			s.state = snapshot
		}
	}()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	return fn(context.WithValue(ctx, txKey{}, true))
}

// ReadOnly implements tx.ReadOnlyManager. Any write made by fn is discarded.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	defer func() { s.state = snapshot }()

	return fn(context.WithValue(ctx, txKey{}, true))
}

// with runs fn against the state, locking unless ctx already holds the transaction.
func (s *Store) with(ctx context.Context, fn func(st *state) error) error {
	if inTx(ctx) {
		return fn(s.state)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

// Products returns the product repository.
func (s *Store) Products() *ProductRepo { return &ProductRepo{store: s} }

// Movements returns the stock movement repository.
func (s *Store) Movements() *MovementRepo { return &MovementRepo{store: s} }

// Invoices returns the invoice repository.
func (s *Store) Invoices() *InvoiceRepo { return &InvoiceRepo{store: s} }

// Audit returns the audit log.
func (s *Store) Audit() *AuditLog { return &AuditLog{store: s} }

// Outbox returns the event publisher.
func (s *Store) Outbox() *Outbox { return &Outbox{store: s} }

// Numerator returns the invoice number generator.
func (s *Store) Numerator() *Numerator { return &Numerator{store: s} }
