// Package v1 provides HTTP API version 1.
package v1

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"invoiceflow/internal/domain/auth"
	"invoiceflow/internal/domain/catalogs/product"
	"invoiceflow/internal/domain/invoice"
	"invoiceflow/internal/domain/registers/stock"
	"invoiceflow/internal/infrastructure/http/v1/handlers"
	"invoiceflow/internal/infrastructure/http/v1/middleware"
	"invoiceflow/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// Idempotency stores replayable responses; nil disables the middleware
	Idempotency middleware.IdempotencyStore

	// CORSOrigins are the browser origins allowed to call the API
	CORSOrigins []string

	// DB backs the readiness probe; nil skips the check
	DB handlers.Pinger

	Version string

	Invoices *invoice.Service
	Workflow *invoice.Workflow
	Products *product.Service
	Ledger   *stock.Ledger
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Trace(cfg.Logger))
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE"},
			AllowHeaders: []string{
				"Origin", "Content-Type", "Authorization",
				middleware.HeaderIdempotencyKey, middleware.HeaderRequestID,
			},
			ExposeHeaders:    []string{"Content-Length", middleware.HeaderRequestID, middleware.HeaderTraceID},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Health endpoints (no auth)
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWTValidator))
	if cfg.Idempotency != nil {
		v1.Use(middleware.Idempotency(cfg.Idempotency))
	}

	base := handlers.NewBaseHandler()
	registerInvoiceRoutes(v1, handlers.NewInvoiceHandler(base, cfg.Invoices, cfg.Workflow))
	registerProductRoutes(v1, handlers.NewProductHandler(base, cfg.Products))
	registerStockRoutes(v1, handlers.NewStockHandler(base, cfg.Ledger))

	return router
}

func registerInvoiceRoutes(rg *gin.RouterGroup, h *handlers.InvoiceHandler) {
	read := middleware.RequirePermission(auth.PermInvoiceRead)
	write := middleware.RequirePermission(auth.PermInvoiceWrite)
	approve := middleware.RequirePermission(auth.PermInvoiceApprove)

	invoices := rg.Group("/invoices")
	invoices.GET("", read, h.List)
	invoices.POST("", write, h.Create)
	invoices.GET("/:id", read, h.Get)
	invoices.PUT("/:id", write, h.Update)
	invoices.PUT("/:id/items", write, h.ReplaceItems)
	invoices.DELETE("/:id", write, h.Delete)
	invoices.GET("/:id/stock-check", read, h.StockCheck)
	invoices.GET("/:id/history", read, h.History)

	invoices.POST("/:id/submit", write, h.Submit)
	invoices.POST("/:id/validate", write, h.Validate)
	invoices.POST("/:id/mark-paid", write, h.MarkPaid)
	invoices.POST("/:id/mark-unpaid", write, h.MarkUnpaid)
	invoices.POST("/:id/request-modification", write, h.RequestModification)
	invoices.POST("/:id/cancel", write, h.Cancel)

	invoices.POST("/:id/approve", approve, h.Approve)
	invoices.POST("/:id/approve-modification", approve, h.ApproveModification)
	invoices.POST("/:id/reject", approve, h.Reject)
}

func registerProductRoutes(rg *gin.RouterGroup, h *handlers.ProductHandler) {
	read := middleware.RequirePermission(auth.PermProductRead)
	write := middleware.RequirePermission(auth.PermProductWrite)

	products := rg.Group("/products")
	products.GET("", read, h.List)
	products.GET("/low-stock", read, h.LowStock)
	products.POST("", write, h.Create)
	products.GET("/:id", read, h.Get)
	products.PUT("/:id", write, h.Update)
	products.GET("/:id/movements", read, h.Movements)
	products.POST("/:id/restock", write, h.Restock)
	products.POST("/:id/adjust", write, h.Adjust)
}

func registerStockRoutes(rg *gin.RouterGroup, h *handlers.StockHandler) {
	rg.GET("/stock/reconcile", middleware.RequirePermission(auth.PermStockRead), h.Reconcile)
}
