package register_repo

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/core/entity"
	"invoiceflow/internal/core/id"
)

func TestStockRepo_OutstandingQueryNetsInvoiceMovements(t *testing.T) {
	repo := NewStockRepo(nil)
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u1", TenantID: "t1"})

	sql, args, err := repo.outstandingQuery(ctx, id.New()).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "SELECT product_id, -SUM(delta) AS total FROM reg_stock_movements WHERE ")
	assert.Contains(t, sql, "invoice_id = $1")
	assert.Contains(t, sql, "reason IN (")
	assert.Contains(t, sql, "tenant_id = ")
	assert.True(t, strings.HasSuffix(sql, "GROUP BY product_id HAVING SUM(delta) <> 0"), sql)

	// Receipts and adjustments never count towards what an invoice holds.
	assert.Contains(t, args, entity.ReasonInvoicePaid)
	assert.Contains(t, args, entity.ReasonInvoiceUnpaid)
	assert.Contains(t, args, "t1")
	assert.Len(t, args, 4)
}
