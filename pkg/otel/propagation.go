package otel

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// ExtractTraceContextFromHeaders extracts W3C trace context
// (traceparent/tracestate) from an incoming admission webhook request
// so spans the admission controller creates for that request become
// children of whatever trace the API server is already carrying.
// If no trace context is present, ctx is returned unchanged and any
// new spans will be root spans.
func ExtractTraceContextFromHeaders(ctx context.Context, header http.Header) context.Context {
	if header == nil {
		return ctx
	}

	traceparent := header.Get("traceparent")
	if traceparent == "" {
		return ctx
	}

	carrier := propagation.MapCarrier{"traceparent": traceparent}
	if tracestate := header.Get("tracestate"); tracestate != "" {
		carrier["tracestate"] = tracestate
	}

	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// InjectTraceContextIntoHeaders writes the current span's trace
// context into outgoing request headers, for calls the reconciler or
// admission controller makes back to the Kubernetes API server.
func InjectTraceContextIntoHeaders(ctx context.Context, header http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}
