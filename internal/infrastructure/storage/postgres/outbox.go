package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/core/id"
	"invoiceflow/internal/domain/events"
	"invoiceflow/pkg/logger"
)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// MaxOutboxRetries is the number of failed deliveries after which a
// message is parked as failed and later moved to the DLQ.
const MaxOutboxRetries = 5

// OutboxMessage is a row of sys_outbox.
type OutboxMessage struct {
	ID            id.ID        `db:"id"`
	TenantID      string       `db:"tenant_id"`
	AggregateType string       `db:"aggregate_type"`
	AggregateID   id.ID        `db:"aggregate_id"`
	EventType     string       `db:"event_type"`
	Payload       []byte       `db:"payload"`
	Status        OutboxStatus `db:"status"`
	RetryCount    int          `db:"retry_count"`
	LastError     *string      `db:"last_error"`
	NextRetryAt   *time.Time   `db:"next_retry_at"`
	CreatedAt     time.Time    `db:"created_at"`
	PublishedAt   *time.Time   `db:"published_at"`
}

const insertOutboxSQL = `
	INSERT INTO sys_outbox (id, tenant_id, aggregate_type, aggregate_id, event_type, payload, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// OutboxPublisher writes domain events to sys_outbox in the caller's transaction.
type OutboxPublisher struct {
	txManager *TxManager
	batch     *BatchWriter
}

var _ events.Publisher = (*OutboxPublisher)(nil)

// NewOutboxPublisher creates an outbox publisher.
func NewOutboxPublisher(txManager *TxManager) *OutboxPublisher {
	return &OutboxPublisher{txManager: txManager, batch: NewBatchWriter(txManager)}
}

// Publish writes one event. It must be called inside a transaction.
func (p *OutboxPublisher) Publish(ctx context.Context, event events.Event) error {
	return p.PublishBatch(ctx, []events.Event{event})
}

// PublishBatch writes events in one round-trip.
func (p *OutboxPublisher) PublishBatch(ctx context.Context, evts []events.Event) error {
	if p.txManager.GetTx(ctx) == nil {
		return fmt.Errorf("outbox publish requires transaction context")
	}

	tenantID := appctx.GetTenantID(ctx)
	now := time.Now().UTC()
	queries := make([]BatchQuery, 0, len(evts))

	for _, event := range evts {
		payload, err := json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", event.EventType, err)
		}
		queries = append(queries, BatchQuery{
			SQL: insertOutboxSQL,
			Args: []any{
				id.New(), tenantID, event.AggregateType, event.AggregateID,
				event.EventType, payload, OutboxStatusPending, now,
			},
		})
	}

	if err := p.batch.Exec(ctx, queries); err != nil {
		return fmt.Errorf("insert outbox messages: %w", err)
	}
	return nil
}

// OutboxHandler delivers one outbox message.
type OutboxHandler interface {
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// OutboxRelay reads pending messages and hands them to a handler.
type OutboxRelay struct {
	txManager *TxManager
	batchSize int
	handler   OutboxHandler
}

// NewOutboxRelay creates an outbox relay.
func NewOutboxRelay(txManager *TxManager, batchSize int, handler OutboxHandler) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{
		txManager: txManager,
		batchSize: batchSize,
		handler:   handler,
	}
}

// ProcessBatch claims up to batchSize due messages and delivers them.
// The rows stay locked until the batch transaction commits, so parallel
// relays skip each other's messages.
// Returns the number of delivered messages.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	delivered := 0

	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var messages []*OutboxMessage
		err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &messages, `
			SELECT id, tenant_id, aggregate_type, aggregate_id, event_type, payload, status,
			       retry_count, last_error, next_retry_at, created_at, published_at
			FROM sys_outbox
			WHERE status = $1
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`, OutboxStatusPending, r.batchSize)
		if err != nil {
			return fmt.Errorf("fetch outbox messages: %w", err)
		}

		for _, msg := range messages {
			if err := r.deliver(ctx, msg); err != nil {
				return err
			}
			if msg.Status == OutboxStatusPublished {
				delivered++
			}
		}
		return nil
	})

	return delivered, err
}

// deliver runs the handler and records the outcome on the message row.
// Handler failures are recorded, not returned.
func (r *OutboxRelay) deliver(ctx context.Context, msg *OutboxMessage) error {
	q := r.txManager.GetQuerier(ctx)

	handleErr := r.handler.Handle(ctx, msg)
	if handleErr == nil {
		msg.Status = OutboxStatusPublished
		_, err := q.Exec(ctx, `
			UPDATE sys_outbox SET status = $1, published_at = NOW() WHERE id = $2
		`, OutboxStatusPublished, msg.ID)
		if err != nil {
			return fmt.Errorf("mark published: %w", err)
		}
		return nil
	}

	logger.Warn(ctx, "outbox delivery failed",
		"message_id", msg.ID,
		"event_type", msg.EventType,
		"retry", msg.RetryCount+1,
		"error", handleErr,
	)

	// linear backoff, one more minute per attempt
	nextRetry := time.Now().UTC().Add(time.Duration(msg.RetryCount+1) * time.Minute)
	_, err := q.Exec(ctx, `
		UPDATE sys_outbox
		SET retry_count = retry_count + 1,
		    last_error = $1,
		    next_retry_at = $2,
		    status = CASE WHEN retry_count + 1 >= $3 THEN $4 ELSE status END
		WHERE id = $5
	`, handleErr.Error(), nextRetry, MaxOutboxRetries, OutboxStatusFailed, msg.ID)
	if err != nil {
		return fmt.Errorf("record delivery failure: %w", err)
	}
	return nil
}

// MoveToDLQ moves messages that exhausted their retries to sys_outbox_dlq.
func (r *OutboxRelay) MoveToDLQ(ctx context.Context) (int64, error) {
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		WITH moved AS (
			DELETE FROM sys_outbox
			WHERE status = $1
			RETURNING id, tenant_id, aggregate_type, aggregate_id, event_type, payload,
			          retry_count, last_error, created_at
		)
		INSERT INTO sys_outbox_dlq (id, tenant_id, aggregate_type, aggregate_id, event_type, payload,
		                            retry_count, failure_reason, created_at, failed_at)
		SELECT id, tenant_id, aggregate_type, aggregate_id, event_type, payload,
		       retry_count, last_error, created_at, NOW()
		FROM moved
	`, OutboxStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("move to DLQ: %w", err)
	}
	return tag.RowsAffected(), nil
}
