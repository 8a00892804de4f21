// Package events publishes ledger facts to downstream consumers after the
// owning transaction commits. Delivery is best effort.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Event types.
const (
	InvoiceCreated   = "invoice.created"
	InvoiceUpdated   = "invoice.updated"
	InvoiceDeleted   = "invoice.deleted"
	InvoiceApproved  = "invoice.approved"
	InvoiceCancelled = "invoice.cancelled"
	InvoiceOverdue   = "invoice.overdue"
	ItemAdded        = "invoice_item.added"
	ItemUpdated      = "invoice_item.updated"
	ItemDeleted      = "invoice_item.deleted"
	PaymentRecorded  = "payment.recorded"
)

// Event is a single ledger fact.
type Event struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	AggregateID string            `json:"aggregate_id"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Payload     map[string]any    `json:"payload,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// New builds an event carrying the correlation and trace identifiers of ctx.
func New(ctx context.Context, eventType, aggregateID string, occurredAt time.Time, payload map[string]any) Event {
	evt := Event{
		ID:          ulid.Make().String(),
		Type:        eventType,
		AggregateID: aggregateID,
		OccurredAt:  occurredAt.UTC(),
		Payload:     payload,
	}
	InjectTrace(ctx, &evt)
	return evt
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

// MemoryPublisher keeps published events in order. Useful for tests and
// local runs.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *MemoryPublisher) Publish(_ context.Context, evt Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Types returns the published event types in order.
func (p *MemoryPublisher) Types() []string {
	evts := p.Events()
	out := make([]string, 0, len(evts))
	for _, e := range evts {
		out = append(out, e.Type)
	}
	return out
}

// Emit publishes evt and logs failures instead of returning them.
func Emit(ctx context.Context, pub Publisher, log *zap.Logger, evt Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, evt); err != nil && log != nil {
		log.Warn("ledger event publish failed",
			zap.String("event_type", evt.Type),
			zap.String("aggregate_id", evt.AggregateID),
			zap.Error(err),
		)
	}
}
