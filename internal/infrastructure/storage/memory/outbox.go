package memory

import (
	"context"

	appctx "invoiceflow/internal/core/context"
	"invoiceflow/internal/domain/events"
)

// Outbox implements events.Publisher by keeping events in the store.
type Outbox struct {
	store *Store
}

var _ events.Publisher = (*Outbox)(nil)

func (o *Outbox) Publish(ctx context.Context, event events.Event) error {
	return o.PublishBatch(ctx, []events.Event{event})
}

func (o *Outbox) PublishBatch(ctx context.Context, evts []events.Event) error {
	tenantID := appctx.GetTenantID(ctx)
	return o.store.with(ctx, func(st *state) error {
		for _, e := range evts {
			st.outbox = append(st.outbox, OutboxRecord{
				TenantID:      tenantID,
				AggregateType: e.AggregateType,
				AggregateID:   e.AggregateID,
				EventType:     e.EventType,
				Payload:       e.Payload,
			})
		}
		return nil
	})
}

// Records returns all committed events in order.
func (o *Outbox) Records() []OutboxRecord {
	var out []OutboxRecord
	_ = o.store.with(context.Background(), func(st *state) error {
		out = append(out, st.outbox...)
		return nil
	})
	return out
}

// EventTypes returns the committed event types in order.
func (o *Outbox) EventTypes() []string {
	records := o.Records()
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.EventType
	}
	return out
}
