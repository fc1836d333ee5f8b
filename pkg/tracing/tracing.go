// Package tracing holds the process-wide tracer and span helpers. Setup
// installs the OTLP provider; until then StartSpan is a no-op passthrough so
// library code can trace unconditionally.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer installs the tracer used by StartSpan. Called by Setup, and by
// tests that want to capture spans.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan begins a span named after the calling component, in the form
// "pkg.Type.Method". With no tracer installed it returns ctx unchanged and
// the surrounding span, so callers can always `defer span.End()`.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName)
}

// TraceID returns the current trace id, or "" outside a recorded trace. Used
// to stamp outgoing event headers for cross-service correlation.
func TraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// SpanID returns the current span id, or "" outside a recorded trace.
func SpanID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.SpanID().String()
}
