package document_repo

import (
	"context"
	"testing"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/core/id"
)

func TestInvoiceRepo_ForUpdateIsTenantScoped(t *testing.T) {
	repo := NewInvoiceRepo(nil)
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u1", TenantID: "acme"})
	invoiceID := id.New()

	q := repo.baseSelect(ctx).
		Where(squirrel.Eq{"id": invoiceID, "deletion_mark": false}).
		Suffix("FOR UPDATE")
	sql, args, err := q.ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "FROM doc_invoices WHERE tenant_id = $1 AND deletion_mark = $2 AND id = $3 FOR UPDATE")
	assert.Equal(t, []any{"acme", false, invoiceID}, args)
	assert.NotContains(t, sql, "items")
}

func TestInvoiceRepo_ParseOrderBy(t *testing.T) {
	repo := NewInvoiceRepo(nil)

	got, err := repo.parseOrderBy("")
	require.NoError(t, err)
	assert.Equal(t, "created_at DESC, number DESC", got)

	got, err = repo.parseOrderBy("-total")
	require.NoError(t, err)
	assert.Equal(t, "total DESC", got)

	for _, bad := range []string{"tenant_id", "items", "total; --"} {
		_, err := repo.parseOrderBy(bad)
		assert.Error(t, err, bad)
	}
}
