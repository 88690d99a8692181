// Package main is the entry point for the invoiceflow API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"invoiceflow/internal/app"
	"invoiceflow/internal/config"
	"invoiceflow/internal/domain/auth"
	v1 "invoiceflow/internal/infrastructure/http/v1"
	"invoiceflow/internal/infrastructure/http/v1/middleware"
	"invoiceflow/internal/infrastructure/storage/postgres"
	"invoiceflow/pkg/logger"
)

const version = "0.1.0"

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

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting invoiceflow server", "version", version, "env", cfg.App.Env)

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = cfg.Database.MaxConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	backend, err := app.NewPostgresBackend(txManager)
	if err != nil {
		log.Fatalw("failed to build repositories", "error", err)
	}
	services := app.NewServices(backend, app.Config{
		Workflow: cfg.Workflow,
		Invoice:  cfg.Invoice,
	})

	// --- Auth ---
	jwtConfig := auth.DefaultJWTConfig(cfg.JWT.Secret)
	jwtConfig.Issuer = cfg.JWT.Issuer
	jwtService := auth.NewJWTService(jwtConfig)

	var idempotency middleware.IdempotencyStore
	if cfg.Idempotency.Enabled {
		idempotency = postgres.NewIdempotencyStore(txManager, cfg.Idempotency.TTL)
	}

	// --- Router ---
	if !cfg.App.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := v1.NewRouter(v1.RouterConfig{
		Logger:       log,
		JWTValidator: jwtService,
		Idempotency:  idempotency,
		CORSOrigins:  cfg.CORS.AllowedOrigins,
		DB:           pool,
		Version:      version,
		Invoices:     services.Invoices,
		Workflow:     services.Workflow,
		Products:     services.Products,
		Ledger:       services.Ledger,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	postgres.LogPoolStats(ctx, pool)
	log.Info("server stopped")
}
