package postgres

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestTxManager_ReadOnlyUsesOneSnapshot(t *testing.T) {
	m := &TxManager{opts: DefaultTxOptions()}

	opts := m.readOnlyOptions()

	assert.Equal(t, pgx.RepeatableRead, opts.IsolationLevel)
	assert.Equal(t, pgx.ReadOnly, opts.AccessMode)
	assert.Equal(t, m.opts.StatementTimeout, opts.StatementTimeout)
	// Write transactions keep their own isolation.
	assert.Equal(t, pgx.ReadCommitted, m.opts.IsolationLevel)
}
