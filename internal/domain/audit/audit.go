// Package audit defines the audit trail contract used by domain services.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"invoiceflow/internal/core/id"
)

// Action represents the type of audited operation.
type Action string

const (
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionTransition Action = "transition"
	ActionStock      Action = "stock"
)

// Entry is one recorded change of an entity.
type Entry struct {
	ID         id.ID           `db:"id" json:"id"`
	TenantID   string          `db:"tenant_id" json:"-"`
	EntityType string          `db:"entity_type" json:"entityType"`
	EntityID   id.ID           `db:"entity_id" json:"entityId"`
	Action     Action          `db:"action" json:"action"`
	UserID     string          `db:"user_id" json:"userId"`
	UserEmail  string          `db:"user_email" json:"userEmail,omitempty"`
	Changes    json.RawMessage `db:"changes" json:"changes"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}

// Logger records and reads audit entries.
// LogChange must join the transaction in ctx so the entry commits with the change.
type Logger interface {
	LogChange(ctx context.Context, entityType string, entityID id.ID, action Action, changes map[string]any) error
	GetEntityHistory(ctx context.Context, entityType string, entityID id.ID, limit int) ([]Entry, error)
}

// NopLogger discards audit entries.
type NopLogger struct{}

func (NopLogger) LogChange(context.Context, string, id.ID, Action, map[string]any) error {
	return nil
}

func (NopLogger) GetEntityHistory(context.Context, string, id.ID, int) ([]Entry, error) {
	return nil, nil
}
