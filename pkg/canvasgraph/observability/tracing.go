package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the canvasgraph tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("canvasgraph")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartGenerationSpan starts a span covering one generation request.
	StartGenerationSpan(ctx context.Context, canvasID, sourceNodeID, model string) (context.Context, trace.Span)

	// StartUploadSpan starts a span for an asset upload.
	StartUploadSpan(ctx context.Context, nodeID string, payloadBytes int) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the
// provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartGenerationSpan starts a span covering one generation request.
func (m *otelSpanManager) StartGenerationSpan(ctx context.Context, canvasID, sourceNodeID, model string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "canvasgraph.generate",
		trace.WithAttributes(
			attribute.String("canvas.id", canvasID),
			attribute.String("source_node.id", sourceNodeID),
			attribute.String("model", model),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartUploadSpan starts a span for an asset upload.
func (m *otelSpanManager) StartUploadSpan(ctx context.Context, nodeID string, payloadBytes int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "canvasgraph.offload.upload",
		trace.WithAttributes(
			attribute.String("node.id", nodeID),
			attribute.Int("payload.bytes", payloadBytes),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
