package events

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
)

// Header keys carried on every event.
const (
	HeaderCorrelationID = "correlation_id"
	HeaderTraceID       = "trace_id"
	HeaderSpanID        = "span_id"
	HeaderPublishedAt   = "published_at"
)

type correlationKey struct{}

// CorrelationIDFromContext fetches a correlation ID from the context if present.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// EnsureCorrelationID guarantees a correlation ID on the context, generating one when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	cid := CorrelationIDFromContext(ctx)
	if cid == "" {
		cid = ulid.Make().String()
	}
	return WithCorrelationID(ctx, cid), cid
}

// InjectTrace stamps correlation and tracing identifiers onto the event headers.
func InjectTrace(ctx context.Context, evt *Event) {
	if evt == nil {
		return
	}
	if evt.Headers == nil {
		evt.Headers = map[string]string{}
	}

	cid := evt.Headers[HeaderCorrelationID]
	if cid == "" {
		cid = CorrelationIDFromContext(ctx)
	}
	if cid == "" {
		cid = ulid.Make().String()
	}
	evt.Headers[HeaderCorrelationID] = cid

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt.Headers[HeaderTraceID] = sc.TraceID().String()
		evt.Headers[HeaderSpanID] = sc.SpanID().String()
	}
	evt.Headers[HeaderPublishedAt] = time.Now().UTC().Format(time.RFC3339)
}

// ContextWithRemoteSpan seeds the context with the span carried by a consumed event.
func ContextWithRemoteSpan(ctx context.Context, headers map[string]string) context.Context {
	traceIDHex, spanIDHex := headers[HeaderTraceID], headers[HeaderSpanID]
	if traceIDHex == "" || spanIDHex == "" {
		return ctx
	}

	traceID, err := trace.TraceIDFromHex(traceIDHex)
	if err != nil {
		return ctx
	}
	spanID, err := trace.SpanIDFromHex(spanIDHex)
	if err != nil {
		return ctx
	}

	parent := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled, Remote: true})
	return trace.ContextWithSpanContext(WithCorrelationID(ctx, headers[HeaderCorrelationID]), parent)
}
