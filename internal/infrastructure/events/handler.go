// Package events delivers outbox messages. Notification delivery is out of scope,
// so the handler records each event in the log.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	domainevents "invoiceflow/internal/domain/events"
	"invoiceflow/internal/infrastructure/storage/postgres"
	"invoiceflow/pkg/logger"
)

// LogHandler implements postgres.OutboxHandler by writing structured log lines.
type LogHandler struct {
	log *logger.Logger
}

var _ postgres.OutboxHandler = (*LogHandler)(nil)

// NewLogHandler creates a logging outbox handler.
func NewLogHandler(log *logger.Logger) *LogHandler {
	return &LogHandler{log: log.WithComponent("outbox")}
}

// Handle logs one message. Low-stock alerts go out at warn level.
func (h *LogHandler) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	var payload map[string]any
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", msg.EventType, err)
	}

	kv := []any{
		"event_id", msg.ID,
		"tenant_id", msg.TenantID,
		"event_type", msg.EventType,
		"aggregate_type", msg.AggregateType,
		"aggregate_id", msg.AggregateID,
		"payload", payload,
	}

	if msg.EventType == domainevents.ProductLowStock {
		h.log.Warnw("product low on stock", kv...)
		return nil
	}
	h.log.Infow("event delivered", kv...)
	return nil
}
