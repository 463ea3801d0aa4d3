package otel

import (
	"context"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func init() {
	otel.SetTextMapPropagator(propagation.TraceContext{})
}

func TestExtractTraceContextFromHeaders(t *testing.T) {
	const (
		validTraceID     = "0af7651916cd43dd8448eb211c80319c"
		validSpanID      = "b7ad6b7169203331"
		validTraceparent = "00-" + validTraceID + "-" + validSpanID + "-01"
		validTracestate  = "vendor1=value1,vendor2=value2"
	)

	t.Run("nil_header_returns_unchanged_context", func(t *testing.T) {
		ctx := context.Background()
		result := ExtractTraceContextFromHeaders(ctx, nil)

		if result != ctx {
			t.Error("expected context to be unchanged for nil header")
		}
	})

	t.Run("header_without_traceparent_returns_unchanged_context", func(t *testing.T) {
		ctx := context.Background()
		result := ExtractTraceContextFromHeaders(ctx, http.Header{})

		spanCtx := trace.SpanContextFromContext(result)
		if spanCtx.IsValid() {
			t.Error("expected no valid span context without a traceparent header")
		}
	})

	t.Run("header_with_valid_traceparent_extracts_trace_context", func(t *testing.T) {
		ctx := context.Background()
		header := http.Header{}
		header.Set("traceparent", validTraceparent)
		header.Set("tracestate", validTracestate)

		result := ExtractTraceContextFromHeaders(ctx, header)

		spanCtx := trace.SpanContextFromContext(result)
		if !spanCtx.IsValid() {
			t.Fatal("expected valid span context")
		}
		if spanCtx.TraceID().String() != validTraceID {
			t.Errorf("expected trace ID %s, got %s", validTraceID, spanCtx.TraceID().String())
		}
		if spanCtx.TraceState().Get("vendor1") != "value1" {
			t.Error("expected tracestate vendor1=value1 to be preserved")
		}
	})

	t.Run("header_with_invalid_traceparent_handles_gracefully", func(t *testing.T) {
		ctx := context.Background()
		header := http.Header{}
		header.Set("traceparent", "not-a-valid-traceparent")

		result := ExtractTraceContextFromHeaders(ctx, header)

		spanCtx := trace.SpanContextFromContext(result)
		if spanCtx.IsValid() {
			t.Error("expected invalid span context for malformed traceparent")
		}
	})
}

func TestInjectTraceContextIntoHeaders(t *testing.T) {
	header := http.Header{}
	InjectTraceContextIntoHeaders(context.Background(), header)
	// No active span: nothing should be injected, but it must not panic.
	if header.Get("traceparent") != "" {
		t.Error("expected no traceparent to be injected without an active span")
	}
}
