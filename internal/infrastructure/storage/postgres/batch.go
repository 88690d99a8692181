package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// errNoTx is returned by bulk writers called outside a transaction.
var errNoTx = errors.New("bulk write requires transaction context")

// BatchWriter performs multi-row writes inside the current transaction:
// COPY for append-only tables and pipelined batches for everything else.
type BatchWriter struct {
	txManager *TxManager
}

// NewBatchWriter creates a batch writer.
func NewBatchWriter(txManager *TxManager) *BatchWriter {
	return &BatchWriter{txManager: txManager}
}

// CopyRows bulk-inserts rows with the COPY protocol.
func (b *BatchWriter) CopyRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	t := b.txManager.GetTx(ctx)
	if t == nil {
		return 0, errNoTx
	}
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := t.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", table, MapError(err))
	}
	if n != int64(len(rows)) {
		return n, fmt.Errorf("copy into %s: wrote %d of %d rows", table, n, len(rows))
	}
	return n, nil
}

// BatchQuery is one statement of a batch.
type BatchQuery struct {
	SQL  string
	Args []any
}

// Exec sends all queries in one round-trip and checks every result.
func (b *BatchWriter) Exec(ctx context.Context, queries []BatchQuery) error {
	t := b.txManager.GetTx(ctx)
	if t == nil {
		return errNoTx
	}
	if len(queries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, q := range queries {
		batch.Queue(q.SQL, q.Args...)
	}

	results := t.SendBatch(ctx, batch)
	defer results.Close()

	for i := range queries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch statement %d: %w", i, MapError(err))
		}
	}
	return nil
}
