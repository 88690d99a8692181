package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"invoiceflow/internal/core/apperror"
)

// SQLSTATE codes the storage layer reacts to.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
	sqlStateUniqueViolation      = "23505"
	sqlStateCheckViolation       = "23514"
	sqlStateForeignKeyViolation  = "23503"
)

// MapError translates driver errors into application errors.
// Errors it does not recognise are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.AsAppError(err); ok {
		return err
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable:
		return apperror.NewConcurrencyConflict(err).
			WithDetail("sqlstate", pgErr.Code)
	case sqlStateUniqueViolation:
		return apperror.NewConflict("Record already exists").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	case sqlStateCheckViolation:
		return apperror.NewBusinessRule(apperror.CodeBusinessRule, "Constraint violated").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	case sqlStateForeignKeyViolation:
		return apperror.NewValidation("Referenced record does not exist").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	}

	return err
}

// IsNoRows reports whether err is pgx.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
