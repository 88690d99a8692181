package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Schema is the DDL for every table the repositories use.
//
//go:embed schema.sql
var Schema string

// ApplySchema creates missing tables and indexes. Statements are idempotent.
func ApplySchema(ctx context.Context, pool *Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", MapError(err))
	}
	return nil
}

// ListTenants returns every tenant that owns products or invoices.
// Background jobs use it to run per-tenant work.
func ListTenants(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.Query(ctx, `
		SELECT tenant_id FROM cat_products
		UNION
		SELECT tenant_id FROM doc_invoices
		ORDER BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", MapError(err))
	}
	tenants, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", MapError(err))
	}
	return tenants, nil
}
