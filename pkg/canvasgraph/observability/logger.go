// Package observability provides structured logging, metrics, and tracing
// for the canvasgraph engine.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
// Logging helpers tolerate a nil logger so call sites never need to guard.
package observability

import (
	"log/slog"
)

// EnrichLogger adds canvas context to a logger.
// Returns a new logger carrying canvas_id and node_id fields.
func EnrichLogger(logger *slog.Logger, canvasID, nodeID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("canvas_id", canvasID),
		slog.String("node_id", nodeID),
	)
}

// LogGenerationStart logs the start of a generation request.
func LogGenerationStart(logger *slog.Logger, sourceNodeID, model, resolution string) {
	if logger == nil {
		return
	}
	logger.Info("generation starting",
		slog.String("source_node_id", sourceNodeID),
		slog.String("model", model),
		slog.String("resolution", resolution),
	)
}

// LogGenerationComplete logs a successful generation.
func LogGenerationComplete(logger *slog.Logger, nodeID string, durationMs float64, offloaded bool) {
	if logger == nil {
		return
	}
	logger.Info("generation completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
		slog.Bool("offload_scheduled", offloaded),
	)
}

// LogGenerationError logs a failed generation after skeleton rollback.
func LogGenerationError(logger *slog.Logger, sourceNodeID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("generation failed",
		slog.String("source_node_id", sourceNodeID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogCreditDenied logs a credit gate denial.
func LogCreditDenied(logger *slog.Logger, model, resolution, reason string) {
	if logger == nil {
		return
	}
	logger.Warn("credit check denied",
		slog.String("model", model),
		slog.String("resolution", resolution),
		slog.String("reason", reason),
	)
}

// LogCreditRefreshError logs a failed best-effort credit refresh.
func LogCreditRefreshError(logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	logger.Warn("credit refresh failed",
		slog.String("error", err.Error()),
	)
}

// LogOffloadScheduled logs an upload entering the debounce window.
func LogOffloadScheduled(logger *slog.Logger, nodeID string, immediate bool, payloadBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("offload scheduled",
		slog.String("node_id", nodeID),
		slog.Bool("immediate", immediate),
		slog.Int("payload_bytes", payloadBytes),
	)
}

// LogOffloadComplete logs a payload migrated to a durable URL.
func LogOffloadComplete(logger *slog.Logger, nodeID, url string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("offload completed",
		slog.String("node_id", nodeID),
		slog.String("url", url),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogOffloadError logs an upload failure (non-fatal, payload retained).
func LogOffloadError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("offload failed, inline payload retained",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogSnapshotSaved logs a persisted snapshot.
func LogSnapshotSaved(logger *slog.Logger, canvasID string, sizeBytes int, compressed bool) {
	if logger == nil {
		return
	}
	logger.Debug("snapshot saved",
		slog.String("canvas_id", canvasID),
		slog.Int("size_bytes", sizeBytes),
		slog.Bool("compressed", compressed),
	)
}

// LogSnapshotError logs a persistence failure (non-fatal, best-effort).
func LogSnapshotError(logger *slog.Logger, canvasID string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("snapshot persistence failed",
		slog.String("canvas_id", canvasID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// LogSnapshotDiscarded logs a stale or corrupted stored snapshot being dropped.
func LogSnapshotDiscarded(logger *slog.Logger, canvasID, reason string) {
	if logger == nil {
		return
	}
	logger.Info("stored snapshot discarded",
		slog.String("canvas_id", canvasID),
		slog.String("reason", reason),
	)
}
