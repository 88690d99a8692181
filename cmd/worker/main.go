// Package main is the entry point for the invoiceflow background worker.
// It relays the outbox, reconciles stock ledgers and expires idempotency keys.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"invoiceflow/internal/app"
	"invoiceflow/internal/config"
	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/domain/registers/stock"
	"invoiceflow/internal/infrastructure/events"
	"invoiceflow/internal/infrastructure/storage/postgres"
	"invoiceflow/pkg/logger"
)

const (
	systemUser    = "system:worker"
	cleanupPeriod = time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		Development: cfg.App.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Info("starting invoiceflow worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = cfg.Database.MaxConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)
	backend, err := app.NewPostgresBackend(txManager)
	if err != nil {
		log.Fatalw("failed to build repositories", "error", err)
	}
	services := app.NewServices(backend, app.Config{Workflow: cfg.Workflow, Invoice: cfg.Invoice})

	worker := &Worker{
		txManager:   txManager,
		relay:       postgres.NewOutboxRelay(txManager, cfg.Worker.OutboxBatch, events.NewLogHandler(log)),
		ledger:      services.Ledger,
		idempotency: postgres.NewIdempotencyStore(txManager, cfg.Idempotency.TTL),
		cfg:         cfg.Worker,
		log:         log.WithComponent("worker"),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	postgres.LogPoolStats(context.Background(), pool)
	log.Info("worker stopped")
}

// Worker runs the periodic background jobs.
type Worker struct {
	txManager   *postgres.TxManager
	relay       *postgres.OutboxRelay
	ledger      *stock.Ledger
	idempotency *postgres.IdempotencyStore
	cfg         config.WorkerConfig
	log         *logger.Logger
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	outboxTicker := time.NewTicker(w.cfg.OutboxInterval)
	defer outboxTicker.Stop()

	reconcileTicker := time.NewTicker(w.cfg.ReconcileInterval)
	defer reconcileTicker.Stop()

	cleanupTicker := time.NewTicker(cleanupPeriod)
	defer cleanupTicker.Stop()

	w.reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-outboxTicker.C:
			w.processOutbox(ctx)
		case <-reconcileTicker.C:
			w.reconcile(ctx)
		case <-cleanupTicker.C:
			w.cleanupIdempotency(ctx)
		}
	}
}

func (w *Worker) processOutbox(ctx context.Context) {
	// Drain while full batches keep coming.
	for ctx.Err() == nil {
		n, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			w.log.Errorw("outbox batch failed", "error", err)
			return
		}
		if n == 0 {
			break
		}
		w.log.Debugw("processed outbox batch", "count", n)
		if n < w.cfg.OutboxBatch {
			break
		}
	}

	moved, err := w.relay.MoveToDLQ(ctx)
	if err != nil {
		w.log.Errorw("outbox dlq move failed", "error", err)
		return
	}
	if moved > 0 {
		w.log.Warnw("moved dead outbox messages to dlq", "count", moved)
	}
}

func (w *Worker) reconcile(ctx context.Context) {
	tenants, err := postgres.ListTenants(ctx, w.txManager.GetQuerier(ctx))
	if err != nil {
		w.log.Errorw("failed to list tenants", "error", err)
		return
	}

	for _, tenantID := range tenants {
		tctx := appctx.WithTrace(ctx, appctx.NewTraceContext())
		tctx = appctx.WithUser(tctx, &appctx.UserContext{
			UserID:   systemUser,
			TenantID: tenantID,
			IsAdmin:  true,
		})

		report, err := w.ledger.Reconcile(tctx)
		if err != nil {
			w.log.Errorw("reconcile failed", "tenant_id", tenantID, "error", err)
			continue
		}
		if report.Consistent() {
			w.log.Debugw("stock ledger consistent", "tenant_id", tenantID, "products", report.Products)
			continue
		}
		for _, d := range report.Drifts {
			w.log.Warnw("stock drift",
				"tenant_id", tenantID,
				"product_id", d.ProductID,
				"sku", d.SKU,
				"quantity", d.Quantity.Int64(),
				"ledger_sum", d.LedgerSum.Int64(),
			)
		}
	}
}

func (w *Worker) cleanupIdempotency(ctx context.Context) {
	n, err := w.idempotency.CleanupExpired(ctx)
	if err != nil {
		w.log.Errorw("idempotency cleanup failed", "error", err)
		return
	}
	if n > 0 {
		w.log.Infow("cleaned up idempotency keys", "count", n)
	}
}
