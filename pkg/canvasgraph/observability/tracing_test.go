package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTracingTest creates a test tracer provider with an in-memory span recorder.
func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)

	originalProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	// Update the package-level tracer
	tracer = otel.Tracer("canvasgraph")

	cleanup := func() {
		otel.SetTracerProvider(originalProvider)
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down tracer provider: %v", err)
		}
	}

	return exporter, cleanup
}

func TestStartGenerationSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()

	t.Run("creates span with correct name and attributes", func(t *testing.T) {
		ctx := context.Background()
		_, span := sm.StartGenerationSpan(ctx, "canvas-1", "src-node", "sd-xl")
		require.NotNil(t, span)

		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)

		s := spans[0]
		assert.Equal(t, "canvasgraph.generate", s.Name)

		var canvasID, sourceNodeID, model string
		for _, attr := range s.Attributes {
			switch attr.Key {
			case "canvas.id":
				canvasID = attr.Value.AsString()
			case "source_node.id":
				sourceNodeID = attr.Value.AsString()
			case "model":
				model = attr.Value.AsString()
			}
		}
		assert.Equal(t, "canvas-1", canvasID)
		assert.Equal(t, "src-node", sourceNodeID)
		assert.Equal(t, "sd-xl", model)
	})

	t.Run("returns context carrying the span", func(t *testing.T) {
		exporter.Reset()

		ctx := context.Background()
		newCtx, span := sm.StartGenerationSpan(ctx, "canvas-1", "src", "sd-xl")
		assert.NotEqual(t, ctx, newCtx)

		span.End()
		require.Len(t, exporter.GetSpans(), 1)
	})
}

func TestStartUploadSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()

	t.Run("creates span with payload size", func(t *testing.T) {
		ctx := context.Background()
		_, span := sm.StartUploadSpan(ctx, "node-9", 2048)
		require.NotNil(t, span)

		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)

		s := spans[0]
		assert.Equal(t, "canvasgraph.offload.upload", s.Name)

		var nodeID string
		var payloadBytes int64
		for _, attr := range s.Attributes {
			switch attr.Key {
			case "node.id":
				nodeID = attr.Value.AsString()
			case "payload.bytes":
				payloadBytes = attr.Value.AsInt64()
			}
		}
		assert.Equal(t, "node-9", nodeID)
		assert.Equal(t, int64(2048), payloadBytes)
	})

	t.Run("upload span nests under generation span", func(t *testing.T) {
		exporter.Reset()

		ctx := context.Background()
		ctx, genSpan := sm.StartGenerationSpan(ctx, "canvas-1", "src", "sd-xl")

		_, upSpan := sm.StartUploadSpan(ctx, "out-node", 512)
		upSpan.End()
		genSpan.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 2)

		var uploadSpan *tracetest.SpanStub
		for i := range spans {
			if spans[i].Name == "canvasgraph.offload.upload" {
				uploadSpan = &spans[i]
				break
			}
		}
		require.NotNil(t, uploadSpan)
		assert.True(t, uploadSpan.Parent.IsValid())
	})
}

func TestEndSpanWithError(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()

	t.Run("sets OK status for nil error", func(t *testing.T) {
		ctx := context.Background()
		_, span := sm.StartGenerationSpan(ctx, "canvas-1", "src", "sd-xl")

		sm.EndSpanWithError(span, nil)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)

		assert.Equal(t, codes.Ok, spans[0].Status.Code)
		assert.Equal(t, "", spans[0].Status.Description)
	})

	t.Run("sets Error status and records error", func(t *testing.T) {
		exporter.Reset()

		ctx := context.Background()
		_, span := sm.StartGenerationSpan(ctx, "canvas-1", "src", "sd-xl")
		testErr := errors.New("model overloaded")

		sm.EndSpanWithError(span, testErr)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)

		s := spans[0]
		assert.Equal(t, codes.Error, s.Status.Code)
		assert.Equal(t, "model overloaded", s.Status.Description)

		require.NotEmpty(t, s.Events)
		found := false
		for _, event := range s.Events {
			if event.Name == "exception" {
				found = true
			}
		}
		assert.True(t, found, "Expected exception event")
	})

	t.Run("nil span does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			sm.EndSpanWithError(nil, nil)
		})
		assert.NotPanics(t, func() {
			sm.EndSpanWithError(nil, errors.New("test"))
		})
	})
}

func TestAddSpanEvent(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()

	t.Run("adds event to current span", func(t *testing.T) {
		ctx := context.Background()
		ctx, span := sm.StartGenerationSpan(ctx, "canvas-1", "src", "sd-xl")

		sm.AddSpanEvent(ctx, "snapshot_saved",
			attribute.String("canvas_id", "canvas-1"),
			attribute.Int64("size_bytes", 1024),
		)

		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)

		s := spans[0]
		require.NotEmpty(t, s.Events)

		var found bool
		for _, event := range s.Events {
			if event.Name == "snapshot_saved" {
				found = true
				var canvasID string
				var sizeBytes int64
				for _, attr := range event.Attributes {
					switch attr.Key {
					case "canvas_id":
						canvasID = attr.Value.AsString()
					case "size_bytes":
						sizeBytes = attr.Value.AsInt64()
					}
				}
				assert.Equal(t, "canvas-1", canvasID)
				assert.Equal(t, int64(1024), sizeBytes)
			}
		}
		assert.True(t, found, "Expected to find snapshot_saved event")
	})

	t.Run("no panic with no current span", func(t *testing.T) {
		ctx := context.Background()
		assert.NotPanics(t, func() {
			sm.AddSpanEvent(ctx, "test_event")
		})
	})
}
