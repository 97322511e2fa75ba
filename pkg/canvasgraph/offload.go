package canvasgraph

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/artifactlab/canvasgraph/pkg/canvasgraph/event"
	"github.com/artifactlab/canvasgraph/pkg/canvasgraph/observability"
)

// UploadMode selects when a scheduled upload fires.
type UploadMode int

const (
	// UploadDebounced delays the upload until a quiet period has elapsed,
	// collapsing rapid re-triggers (live shader-parameter tweaking) into
	// one upload of the final settled payload.
	UploadDebounced UploadMode = iota

	// UploadImmediate starts the upload without delay. Used for one-shot
	// generation results and upscales, where re-triggering is not a risk.
	UploadImmediate
)

// Offload timing defaults.
const (
	// DefaultDebounceDelay is the quiet period for debounced uploads.
	DefaultDebounceDelay = 4 * time.Second

	// DefaultSettleDelay is how long the inline payload is kept after a
	// successful upload, letting in-progress UI reads complete before
	// the memory is reclaimed.
	DefaultSettleDelay = time.Second
)

// UploadCallback is invoked when a scheduled upload finishes.
// url is empty on failure.
type UploadCallback func(nodeID, url string, err error)

// OffloaderOptions configure an AssetOffloader.
// Zero values select defaults.
type OffloaderOptions struct {
	// Debounce is the quiet period for UploadDebounced scheduling.
	Debounce time.Duration

	// Settle is the delay before clearing the inline payload after a
	// successful upload.
	Settle time.Duration

	Logger  *slog.Logger
	Metrics observability.MetricsRecorder
	Spans   observability.SpanManager
	Bus     *event.Bus
}

// uploadEntry is one pending or in-flight upload. At most one live
// entry exists per node id; rescheduling replaces the entry.
type uploadEntry struct {
	nodeID       string
	payload      string
	canvasID     string
	opts         UploadOptions
	onComplete   UploadCallback
	timer        *time.Timer // nil once the upload is in flight
	pendingSince time.Time
}

// AssetOffloader migrates inline node payloads to durable URLs.
//
// Uploads are keyed by node id with last-writer-wins semantics:
// scheduling over a pending timer cancels it and replaces the payload,
// so only the final settled state of a rapidly-edited node is uploaded.
// Construct one offloader per canvas session, not process-wide.
type AssetOffloader struct {
	graph   *GraphStore
	storage AssetStorage

	debounce time.Duration
	settle   time.Duration
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	bus      *event.Bus

	mu      sync.Mutex
	pending map[string]*uploadEntry
}

// NewAssetOffloader creates an offloader writing results back through
// the given graph store.
func NewAssetOffloader(graph *GraphStore, storage AssetStorage, opts OffloaderOptions) *AssetOffloader {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounceDelay
	}
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettleDelay
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NoopMetrics{}
	}
	if opts.Spans == nil {
		opts.Spans = observability.NoopSpanManager{}
	}
	return &AssetOffloader{
		graph:    graph,
		storage:  storage,
		debounce: opts.Debounce,
		settle:   opts.Settle,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		spans:    opts.Spans,
		bus:      opts.Bus,
		pending:  make(map[string]*uploadEntry),
	}
}

// ScheduleUpload queues the node's inline payload for migration to a
// durable URL. A pending entry for the same node is cancelled and
// replaced. onComplete may be nil.
func (o *AssetOffloader) ScheduleUpload(nodeID, inlinePayload, canvasID string, mode UploadMode, uploadOpts UploadOptions, onComplete UploadCallback) {
	entry := &uploadEntry{
		nodeID:       nodeID,
		payload:      inlinePayload,
		canvasID:     canvasID,
		opts:         uploadOpts,
		onComplete:   onComplete,
		pendingSince: time.Now(),
	}

	o.mu.Lock()
	if prev, ok := o.pending[nodeID]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	o.pending[nodeID] = entry

	if mode == UploadImmediate {
		o.mu.Unlock()
		observability.LogOffloadScheduled(o.logger, nodeID, true, len(inlinePayload))
		go o.fire(entry)
		return
	}

	entry.timer = time.AfterFunc(o.debounce, func() {
		o.fire(entry)
	})
	o.mu.Unlock()
	observability.LogOffloadScheduled(o.logger, nodeID, false, len(inlinePayload))
}

// Cancel drops the node's pending (not yet fired) upload so a
// superseded payload is never written over newer node state. In-flight
// uploads are not interrupted. Reports whether an entry was dropped.
func (o *AssetOffloader) Cancel(nodeID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.pending[nodeID]
	if !ok || entry.timer == nil {
		return false
	}
	entry.timer.Stop()
	delete(o.pending, nodeID)
	return true
}

// Flush forces a pending (not yet fired) upload for the node to run
// now, synchronously. Reports whether an upload ran.
func (o *AssetOffloader) Flush(nodeID string) bool {
	o.mu.Lock()
	entry, ok := o.pending[nodeID]
	if !ok || entry.timer == nil {
		o.mu.Unlock()
		return false
	}
	entry.timer.Stop()
	o.mu.Unlock()

	o.fire(entry)
	return true
}

// FlushAll cancels every pending timer and runs the uploads
// immediately, synchronously. Call before the session may terminate or
// before a manual save, so debouncing uploads are not lost.
func (o *AssetOffloader) FlushAll() {
	o.mu.Lock()
	waiting := make([]*uploadEntry, 0, len(o.pending))
	for _, entry := range o.pending {
		if entry.timer != nil {
			entry.timer.Stop()
			waiting = append(waiting, entry)
		}
	}
	o.mu.Unlock()

	for _, entry := range waiting {
		o.fire(entry)
	}
}

// PendingCount returns the number of live upload entries (timer or
// in-flight).
func (o *AssetOffloader) PendingCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// fire executes one upload if the entry is still current. A replaced
// entry aborts silently: the replacement owns the node now.
func (o *AssetOffloader) fire(entry *uploadEntry) {
	o.mu.Lock()
	if o.pending[entry.nodeID] != entry {
		o.mu.Unlock()
		return
	}
	entry.timer = nil // in flight
	o.mu.Unlock()

	ctx := context.Background()
	start := time.Now()
	spanCtx, span := o.spans.StartUploadSpan(ctx, entry.nodeID, len(entry.payload))
	url, err := o.storage.UploadAsset(spanCtx, entry.payload, entry.canvasID, entry.nodeID, entry.opts)
	o.spans.EndSpanWithError(span, err)
	duration := time.Since(start)

	o.mu.Lock()
	if o.pending[entry.nodeID] == entry {
		delete(o.pending, entry.nodeID)
	}
	o.mu.Unlock()

	if err != nil {
		offErr := &OffloadError{NodeID: entry.nodeID, Err: err}
		observability.LogOffloadError(o.logger, entry.nodeID, offErr)
		o.metrics.RecordOffload(ctx, false, 0, duration)
		o.publish(event.TypeOffloadFailed, entry, offErr.Error())
		if entry.onComplete != nil {
			entry.onComplete(entry.nodeID, "", offErr)
		}
		return
	}

	o.graph.PatchNode(entry.nodeID, NodePatch{ResultURL: &url})
	observability.LogOffloadComplete(o.logger, entry.nodeID, url, float64(duration.Milliseconds()))
	o.metrics.RecordOffload(ctx, true, int64(len(entry.payload)), duration)
	o.publish(event.TypeOffloadComplete, entry, url)
	if entry.onComplete != nil {
		entry.onComplete(entry.nodeID, url, nil)
	}

	// Reclaim the inline payload once UI reads have settled, unless a
	// newer regeneration has changed the node's URL in the meantime.
	nodeID := entry.nodeID
	time.AfterFunc(o.settle, func() {
		node, ok := o.graph.Node(nodeID)
		if !ok || node.Data.ResultURL != url || node.Data.ResultPayload == "" {
			return
		}
		empty := ""
		o.graph.PatchNode(nodeID, NodePatch{ResultPayload: &empty})
	})
}

// publish emits a lifecycle event if a bus is attached.
func (o *AssetOffloader) publish(t event.Type, entry *uploadEntry, message string) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(event.New(t, entry.canvasID, entry.nodeID, message))
}
