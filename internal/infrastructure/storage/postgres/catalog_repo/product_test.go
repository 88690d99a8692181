package catalog_repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoiceflow/internal/core/id"
	"invoiceflow/internal/core/types"
)

func TestProductRepo_ApplyDeltaGuardsAgainstNegativeStock(t *testing.T) {
	repo := NewProductRepo(nil)

	sql, args, err := repo.applyDeltaQuery(tenantCtx(), id.New(), types.Quantity(-3)).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"UPDATE cat_products SET quantity = quantity + $1 WHERE id = $2 AND tenant_id = $3 AND quantity + $4 >= 0 RETURNING quantity",
		sql)
	require.Len(t, args, 4)
	assert.Equal(t, types.Quantity(-3), args[0])
	assert.Equal(t, "t1", args[2])
	// The guard checks the same delta that is applied.
	assert.Equal(t, args[0], args[3])
}
