package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/core/id"
	"invoiceflow/internal/domain/audit"
)

// AuditLog implements audit.Logger.
type AuditLog struct {
	store *Store
}

var _ audit.Logger = (*AuditLog)(nil)

func (a *AuditLog) LogChange(ctx context.Context, entityType string, entityID id.ID, action audit.Action, changes map[string]any) error {
	raw, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}

	entry := audit.Entry{
		ID:         id.New(),
		TenantID:   appctx.GetTenantID(ctx),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		UserID:     appctx.GetUserID(ctx),
		Changes:    raw,
		CreatedAt:  time.Now().UTC(),
	}
	if u := appctx.GetUser(ctx); u != nil {
		entry.UserEmail = u.Email
	}

	return a.store.with(ctx, func(st *state) error {
		st.audit = append(st.audit, entry)
		return nil
	})
}

func (a *AuditLog) GetEntityHistory(ctx context.Context, entityType string, entityID id.ID, limit int) ([]audit.Entry, error) {
	tenantID := appctx.GetTenantID(ctx)
	var out []audit.Entry
	err := a.store.with(ctx, func(st *state) error {
		for _, e := range st.audit {
			if e.TenantID == tenantID && e.EntityType == entityType && e.EntityID == entityID {
				out = append(out, e)
			}
		}
		return nil
	})
	slices.Reverse(out)
	return page(out, limit, 0), err
}
