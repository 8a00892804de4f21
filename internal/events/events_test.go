package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_StampsCorrelationAndTrace(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	ctx = WithCorrelationID(ctx, "corr-1")
	evt := New(ctx, InvoiceApproved, "42", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), map[string]any{"status": "approved"})

	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, "corr-1", evt.Headers[HeaderCorrelationID])
	assert.Equal(t, span.SpanContext().TraceID().String(), evt.Headers[HeaderTraceID])
	assert.Equal(t, span.SpanContext().SpanID().String(), evt.Headers[HeaderSpanID])
}

func TestNew_GeneratesCorrelationWhenMissing(t *testing.T) {
	evt := New(context.Background(), InvoiceCreated, "1", time.Now(), nil)
	assert.NotEmpty(t, evt.Headers[HeaderCorrelationID])
	assert.Empty(t, evt.Headers[HeaderTraceID])
}

func TestContextWithRemoteSpan(t *testing.T) {
	headers := map[string]string{
		HeaderCorrelationID: "c",
		HeaderTraceID:       "4bf92f3577b34da6a3ce929d0e0e4736",
		HeaderSpanID:        "00f067aa0ba902b7",
	}
	ctx := ContextWithRemoteSpan(context.Background(), headers)
	assert.Equal(t, "c", CorrelationIDFromContext(ctx))

	ctx = ContextWithRemoteSpan(context.Background(), map[string]string{HeaderTraceID: "bad", HeaderSpanID: "bad"})
	assert.Empty(t, CorrelationIDFromContext(ctx))
}

func TestMemoryPublisher(t *testing.T) {
	pub := &MemoryPublisher{}
	ctx := context.Background()
	require.NoError(t, pub.Publish(ctx, Event{Type: InvoiceCreated}))
	require.NoError(t, pub.Publish(ctx, Event{Type: ItemAdded}))
	assert.Equal(t, []string{InvoiceCreated, ItemAdded}, pub.Types())
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, Event) error { return errors.New("broker down") }

func TestEmit_LogsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	Emit(context.Background(), failingPublisher{}, zap.New(core), Event{Type: PaymentRecorded, AggregateID: "7"})

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "ledger event publish failed", logs.All()[0].Message)

	Emit(context.Background(), nil, zap.New(core), Event{})
	assert.Equal(t, 1, logs.Len())
}
