// Package events defines the domain events written to the transactional outbox.
package events

import (
	"context"

	"invoiceflow/internal/core/id"
)

// Aggregate types.
const (
	AggregateInvoice = "Invoice"
	AggregateProduct = "Product"
)

// Event types.
const (
	InvoiceCreated               = "InvoiceCreated"
	InvoiceSubmitted             = "InvoiceSubmitted"
	ProformaValidated            = "ProformaValidated"
	InvoiceApproved              = "InvoiceApproved"
	InvoicePaid                  = "InvoicePaid"
	InvoiceUnpaid                = "InvoiceUnpaid"
	InvoiceSent                  = "InvoiceSent"
	InvoiceModificationRequested = "InvoiceModificationRequested"
	InvoiceModificationApproved  = "InvoiceModificationApproved"
	InvoiceRejected              = "InvoiceRejected"
	InvoiceCancelled             = "InvoiceCancelled"
	InvoiceDeleted               = "InvoiceDeleted"
	StockDeducted                = "StockDeducted"
	StockRestored                = "StockRestored"
	ProductLowStock              = "ProductLowStock"
)

// Event is a fact about an aggregate, recorded in the same transaction
// as the state change that produced it.
type Event struct {
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
}

// Publisher records events. Implementations must join the transaction in ctx.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	PublishBatch(ctx context.Context, events []Event) error
}

// TransitionPayload describes an invoice status change.
type TransitionPayload struct {
	InvoiceID string `json:"invoiceId"`
	Number    string `json:"number"`
	Action    string `json:"action"`
	From      string `json:"from"`
	To        string `json:"to"`
	ActorID   string `json:"actorId"`
	Reason    string `json:"reason,omitempty"`
}

// StockPayload describes one stock effect of an invoice.
type StockPayload struct {
	InvoiceID string           `json:"invoiceId"`
	Lines     map[string]int64 `json:"lines"` // product id -> units
}

// LowStockPayload is emitted when a product drops to its minimum.
type LowStockPayload struct {
	ProductID   string `json:"productId"`
	SKU         string `json:"sku"`
	Quantity    int64  `json:"quantity"`
	MinQuantity int64  `json:"minQuantity"`
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

func (NopPublisher) PublishBatch(context.Context, []Event) error { return nil }
