package canvasgraph

import (
	"log/slog"
	"time"

	"github.com/artifactlab/canvasgraph/pkg/canvasgraph/config"
	"github.com/artifactlab/canvasgraph/pkg/canvasgraph/observability"
)

// canvasConfig holds resolved configuration for a canvas session.
type canvasConfig struct {
	historyCapacity  int
	debounceDelay    time.Duration
	settleDelay      time.Duration
	snapshotMaxBytes int
	snapshotMaxAge   time.Duration
	compression      bool

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	newID   func() string
}

// defaultCanvasConfig returns the default session configuration.
func defaultCanvasConfig() canvasConfig {
	return canvasConfig{
		historyCapacity:  DefaultHistoryCapacity,
		debounceDelay:    DefaultDebounceDelay,
		settleDelay:      DefaultSettleDelay,
		snapshotMaxBytes: DefaultMaxSnapshotBytes,
		snapshotMaxAge:   DefaultMaxSnapshotAge,
		metrics:          observability.NoopMetrics{},
		spans:            observability.NoopSpanManager{},
	}
}

// Option configures a canvas session.
type Option func(*canvasConfig)

// WithHistoryCapacity sets the undo history depth.
// Default: 50
func WithHistoryCapacity(n int) Option {
	return func(c *canvasConfig) {
		if n > 0 {
			c.historyCapacity = n
		}
	}
}

// WithDebounceDelay sets the quiet period for debounced offloads.
// Default: 4s
func WithDebounceDelay(d time.Duration) Option {
	return func(c *canvasConfig) {
		if d > 0 {
			c.debounceDelay = d
		}
	}
}

// WithSettleDelay sets how long inline payloads are retained after a
// successful offload before being reclaimed.
// Default: 1s
func WithSettleDelay(d time.Duration) Option {
	return func(c *canvasConfig) {
		if d > 0 {
			c.settleDelay = d
		}
	}
}

// WithSnapshotMaxBytes sets the hard cap on persisted snapshot size.
// Default: 4MB
func WithSnapshotMaxBytes(n int) Option {
	return func(c *canvasConfig) {
		if n > 0 {
			c.snapshotMaxBytes = n
		}
	}
}

// WithSnapshotMaxAge sets the staleness threshold for restored
// snapshots.
// Default: 7 days
func WithSnapshotMaxAge(d time.Duration) Option {
	return func(c *canvasConfig) {
		if d > 0 {
			c.snapshotMaxAge = d
		}
	}
}

// WithCompression enables gzip compression-on-demand for snapshots
// that exceed the size cap raw.
func WithCompression(enabled bool) Option {
	return func(c *canvasConfig) {
		c.compression = enabled
	}
}

// WithLogger attaches a structured logger to the session.
func WithLogger(logger *slog.Logger) Option {
	return func(c *canvasConfig) {
		c.logger = logger
	}
}

// WithMetrics enables OTel metrics for the session.
func WithMetrics(enabled bool) Option {
	return func(c *canvasConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithTracing enables OTel spans for generation and upload calls.
func WithTracing(enabled bool) Option {
	return func(c *canvasConfig) {
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithIDGenerator overrides node/edge id generation.
// Useful for deterministic tests.
func WithIDGenerator(fn func() string) Option {
	return func(c *canvasConfig) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// OptionsFromConfig maps a loaded config file onto session options.
//
// Recognized keys: history_capacity, offload_debounce, offload_settle,
// snapshot_max_bytes, snapshot_max_age, compression.
func OptionsFromConfig(cfg config.Config) []Option {
	return []Option{
		WithHistoryCapacity(cfg.Int("history_capacity", DefaultHistoryCapacity)),
		WithDebounceDelay(cfg.Duration("offload_debounce", DefaultDebounceDelay)),
		WithSettleDelay(cfg.Duration("offload_settle", DefaultSettleDelay)),
		WithSnapshotMaxBytes(int(cfg.Int64("snapshot_max_bytes", DefaultMaxSnapshotBytes))),
		WithSnapshotMaxAge(cfg.Duration("snapshot_max_age", DefaultMaxSnapshotAge)),
		WithCompression(cfg.Bool("compression", false)),
	}
}
