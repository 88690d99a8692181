package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoiceflow/internal/app"
)

func demoConfig(restore bool) app.Config {
	cfg := app.DefaultConfig()
	cfg.Workflow.RetryBackoff = 0
	cfg.Workflow.RestoreOnModification = restore
	return cfg
}

func TestRunDemo(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runDemo(context.Background(), &out, demoConfig(false)))

	text := out.String()
	assert.Contains(t, text, "created product: WIDGET=5")
	assert.Contains(t, text, "refused: INVALID_TRANSITION")
	assert.Contains(t, text, "refused: STOCK_ALREADY_DEDUCTED")
	assert.Contains(t, text, "refused: INSUFFICIENT_STOCK")
	assert.Contains(t, text, "consistent")
}

func TestRunDemo_RestoreOnModification(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runDemo(context.Background(), &out, demoConfig(true)))

	text := out.String()
	assert.NotContains(t, text, "STOCK_ALREADY_DEDUCTED")
	assert.Contains(t, text, "consistent")
}

func TestRootCmd_RegistersCommands(t *testing.T) {
	root := newRootCmd()

	for _, path := range [][]string{
		{"token"},
		{"invoice", "pay"},
		{"invoice", "request-mod"},
		{"stock", "reconcile"},
		{"product", "low-stock"},
		{"db", "init"},
		{"demo"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestDemoCmd_Executes(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"demo"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "mark paid")
}
