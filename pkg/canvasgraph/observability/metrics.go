package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records canvasgraph metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordGeneration records a generation request with its duration and outcome.
	RecordGeneration(ctx context.Context, model string, duration time.Duration, err error)

	// RecordOffload records an asset upload attempt.
	RecordOffload(ctx context.Context, success bool, payloadBytes int64, duration time.Duration)

	// RecordSnapshotSave records a persisted snapshot.
	RecordSnapshotSave(ctx context.Context, sizeBytes int64, compressed bool)

	// RecordHistoryDepth records the undo history length after a mutation.
	RecordHistoryDepth(ctx context.Context, depth int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	generations     metric.Int64Counter
	generationTime  metric.Float64Histogram
	offloads        metric.Int64Counter
	offloadBytes    metric.Int64Histogram
	snapshotBytes   metric.Int64Histogram
	historyDepth    metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the instruments on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("canvasgraph")

	generations, err := meter.Int64Counter("canvasgraph.generation.requests",
		metric.WithDescription("Number of generation requests"),
	)
	if err != nil {
		return nil, err
	}

	generationTime, err := meter.Float64Histogram("canvasgraph.generation.latency_ms",
		metric.WithDescription("Generation request latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	offloads, err := meter.Int64Counter("canvasgraph.offload.uploads",
		metric.WithDescription("Number of asset upload attempts"),
	)
	if err != nil {
		return nil, err
	}

	offloadBytes, err := meter.Int64Histogram("canvasgraph.offload.payload_bytes",
		metric.WithDescription("Uploaded inline payload size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	snapshotBytes, err := meter.Int64Histogram("canvasgraph.snapshot.size_bytes",
		metric.WithDescription("Persisted snapshot size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	historyDepth, err := meter.Int64Histogram("canvasgraph.history.depth",
		metric.WithDescription("Undo history depth after a recorded mutation"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		generations:    generations,
		generationTime: generationTime,
		offloads:       offloads,
		offloadBytes:   offloadBytes,
		snapshotBytes:  snapshotBytes,
		historyDepth:   historyDepth,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder backed by the global OTel
// meter provider. Configure the provider before calling this function.
// Falls back to NoopMetrics if instrument creation fails.
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		return NoopMetrics{}
	}
	return m
}

// RecordGeneration implements MetricsRecorder.
func (m *otelMetrics) RecordGeneration(ctx context.Context, model string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.Bool("success", err == nil),
	)
	m.generations.Add(ctx, 1, attrs)
	m.generationTime.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordOffload implements MetricsRecorder.
func (m *otelMetrics) RecordOffload(ctx context.Context, success bool, payloadBytes int64, duration time.Duration) {
	m.offloads.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
	if success {
		m.offloadBytes.Record(ctx, payloadBytes)
	}
}

// RecordSnapshotSave implements MetricsRecorder.
func (m *otelMetrics) RecordSnapshotSave(ctx context.Context, sizeBytes int64, compressed bool) {
	m.snapshotBytes.Record(ctx, sizeBytes, metric.WithAttributes(
		attribute.Bool("compressed", compressed),
	))
}

// RecordHistoryDepth implements MetricsRecorder.
func (m *otelMetrics) RecordHistoryDepth(ctx context.Context, depth int) {
	m.historyDepth.Record(ctx, int64(depth))
}
