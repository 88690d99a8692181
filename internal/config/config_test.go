package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/invoiceflow")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "XOF", cfg.Invoice.DefaultCurrency)
	assert.Equal(t, int32(0), cfg.Invoice.DefaultCurrencyDecimals)
	assert.Equal(t, "FAC", cfg.Invoice.InvoicePrefix)
	assert.Equal(t, 3, cfg.Workflow.MaxRetries)
	assert.False(t, cfg.Workflow.RestoreOnModification)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/invoiceflow")
	t.Setenv("WORKFLOW_RESTORE_ON_MODIFICATION", "true")
	t.Setenv("WORKFLOW_MAX_RETRIES", "5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("WORKER_OUTBOX_INTERVAL", "250ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Workflow.RestoreOnModification)
	assert.Equal(t, 5, cfg.Workflow.MaxRetries)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.Worker.OutboxInterval)
}

func TestLoad_Validation(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "JWT_SECRET")
}
