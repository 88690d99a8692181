package audit

import (
	"context"

	appctx "invoiceflow/internal/core/context"
)

type createdByAware interface {
	SetCreatedBy(string)
	SetUpdatedBy(string)
}

type updatedByAware interface {
	SetUpdatedBy(string)
}

// EnrichCreatedBy sets CreatedBy and UpdatedBy from the user in ctx.
// Use in BeforeCreate hooks. No-op without a user.
func EnrichCreatedBy(ctx context.Context, entity any) error {
	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return nil
	}
	if e, ok := entity.(createdByAware); ok {
		e.SetCreatedBy(userID)
		e.SetUpdatedBy(userID)
	}
	return nil
}

// EnrichUpdatedBy sets only UpdatedBy. Use in BeforeUpdate hooks.
func EnrichUpdatedBy(ctx context.Context, entity any) error {
	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return nil
	}
	if e, ok := entity.(updatedByAware); ok {
		e.SetUpdatedBy(userID)
	}
	return nil
}

// Diff returns the fields whose values differ between two states as
// {"field": {"old": ..., "new": ...}}.
func Diff(oldState, newState map[string]any) map[string]any {
	changes := make(map[string]any)

	for key, newVal := range newState {
		oldVal, exists := oldState[key]
		if !exists || !equal(oldVal, newVal) {
			changes[key] = map[string]any{"old": oldVal, "new": newVal}
		}
	}
	for key, oldVal := range oldState {
		if _, exists := newState[key]; !exists {
			changes[key] = map[string]any{"old": oldVal, "new": nil}
		}
	}

	return changes
}
