// Package config loads application configuration from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"invoiceflow/internal/domain/invoice"
)

const devJWTSecret = "dev-secret-change-me"

// Config holds all application configuration.
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Idempotency IdempotencyConfig
	Workflow    invoice.WorkflowConfig
	Invoice     invoice.ServiceConfig
	Worker      WorkerConfig
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Env      string
	Port     string
	LogLevel string
}

// IsDevelopment reports whether the app runs in development mode.
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development"
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL      string
	MaxConns int32
}

// JWTConfig holds token validation settings.
type JWTConfig struct {
	Secret string
	Issuer string
}

// CORSConfig lists allowed browser origins.
type CORSConfig struct {
	AllowedOrigins []string
}

// IdempotencyConfig controls X-Idempotency-Key handling.
type IdempotencyConfig struct {
	Enabled bool
	TTL     time.Duration
}

// WorkerConfig holds background job settings.
type WorkerConfig struct {
	OutboxInterval    time.Duration
	OutboxBatch       int
	ReconcileInterval time.Duration
}

// Load reads .env (if any) and the environment, then validates the result.
func Load() (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	workflow := invoice.DefaultWorkflowConfig()
	workflow.MaxRetries = getEnvInt("WORKFLOW_MAX_RETRIES", workflow.MaxRetries)
	workflow.RestoreOnModification = getEnvBool("WORKFLOW_RESTORE_ON_MODIFICATION", false)

	cfg := &Config{
		App: AppConfig{
			Env:      getEnv("APP_ENV", "development"),
			Port:     getEnv("APP_PORT", "8080"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 20)),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", devJWTSecret),
			Issuer: getEnv("JWT_ISSUER", "invoiceflow"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Idempotency: IdempotencyConfig{
			Enabled: getEnvBool("IDEMPOTENCY_ENABLED", true),
			TTL:     getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Workflow: workflow,
		Invoice: invoice.ServiceConfig{
			DefaultCurrency:         getEnv("DEFAULT_CURRENCY", "XOF"),
			DefaultCurrencyDecimals: int32(getEnvInt("DEFAULT_CURRENCY_DECIMALS", 0)),
			InvoicePrefix:           getEnv("INVOICE_NUMBER_PREFIX", "FAC"),
			ProformaPrefix:          getEnv("PROFORMA_NUMBER_PREFIX", "PRO"),
		},
		Worker: WorkerConfig{
			OutboxInterval:    getEnvDuration("WORKER_OUTBOX_INTERVAL", 5*time.Second),
			OutboxBatch:       getEnvInt("WORKER_OUTBOX_BATCH", 100),
			ReconcileInterval: getEnvDuration("WORKER_RECONCILE_INTERVAL", time.Hour),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, errors.New("DB_MAX_CONNS must be positive"))
	}
	if !c.App.IsDevelopment() && c.JWT.Secret == devJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET must be set outside development"))
	}
	if c.Workflow.MaxRetries < 0 {
		errs = append(errs, errors.New("WORKFLOW_MAX_RETRIES cannot be negative"))
	}
	if c.Invoice.DefaultCurrencyDecimals < 0 || c.Invoice.DefaultCurrencyDecimals > 4 {
		errs = append(errs, errors.New("DEFAULT_CURRENCY_DECIMALS must be between 0 and 4"))
	}
	if c.Invoice.InvoicePrefix == c.Invoice.ProformaPrefix {
		errs = append(errs, errors.New("invoice and proforma prefixes must differ"))
	}
	if c.Worker.OutboxInterval <= 0 || c.Worker.ReconcileInterval <= 0 {
		errs = append(errs, errors.New("worker intervals must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvBool accepts anything strconv.ParseBool does.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
