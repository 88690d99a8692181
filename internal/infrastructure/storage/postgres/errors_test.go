package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"invoiceflow/internal/core/apperror"
)

func TestMapError_ConcurrencyCodes(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03"} {
		t.Run(code, func(t *testing.T) {
			err := MapError(fmt.Errorf("update: %w", &pgconn.PgError{Code: code}))
			assert.True(t, apperror.IsConcurrentModification(err), "got %v", err)
		})
	}
}

func TestMapError_Constraints(t *testing.T) {
	err := MapError(&pgconn.PgError{Code: "23514", ConstraintName: "cat_products_quantity_check"})
	appErr, ok := apperror.AsAppError(err)
	assert.True(t, ok)
	assert.Equal(t, apperror.CodeBusinessRule, appErr.Code)
	assert.Equal(t, "cat_products_quantity_check", appErr.Details["constraint"])

	err = MapError(&pgconn.PgError{Code: "23505"})
	assert.True(t, apperror.IsCode(err, apperror.CodeConflict))
}

func TestMapError_PassThrough(t *testing.T) {
	assert.NoError(t, MapError(nil))

	plain := errors.New("boom")
	assert.Same(t, plain, MapError(plain))

	notFound := apperror.NewNotFound("invoice", "x")
	assert.Same(t, notFound, MapError(notFound))

	assert.True(t, IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)))
}
