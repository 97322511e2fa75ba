package canvasgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/artifactlab/canvasgraph/pkg/canvasgraph/observability"
	"github.com/artifactlab/canvasgraph/pkg/canvasgraph/registry"
	"github.com/artifactlab/canvasgraph/pkg/canvasgraph/store"
)

// Persistence limits.
const (
	// DefaultMaxSnapshotBytes is the hard cap on a serialized snapshot.
	// Saves that exceed it fail closed rather than degrade.
	DefaultMaxSnapshotBytes = 4 << 20

	// DefaultMaxSnapshotAge is how old a stored snapshot may be before
	// load discards it as stale.
	DefaultMaxSnapshotAge = 7 * 24 * time.Hour
)

// snapshotVersion is the stored snapshot format version.
// Increment on breaking changes to StoredSnapshot.
const snapshotVersion = 1

// snapshotKeyPrefix namespaces canvas snapshots in the key/value store.
const snapshotKeyPrefix = "canvas/"

// StoredSnapshot is the persisted form of a canvas graph.
type StoredSnapshot struct {
	Version  int               `json:"version"`
	CanvasID string            `json:"canvas_id"`
	Nodes    []Node            `json:"nodes"`
	Edges    []Edge            `json:"edges"`
	Meta     map[string]string `json:"meta,omitempty"`
	SavedAt  time.Time         `json:"saved_at"`
}

// NodeValidator checks one restored node for structural validity.
type NodeValidator func(n Node) error

// PersistOptions configure a PersistenceLayer.
// Zero values select defaults.
type PersistOptions struct {
	// MaxBytes is the hard size cap for a serialized snapshot.
	MaxBytes int

	// MaxAge is the staleness threshold for loaded snapshots.
	MaxAge time.Duration

	// Compression enables gzip when a snapshot exceeds MaxBytes raw;
	// the compressed form must still fit under the cap.
	Compression bool

	Logger  *slog.Logger
	Metrics observability.MetricsRecorder
}

// PersistenceLayer serializes size-capped snapshots of the graph to a
// local key/value store, surviving reloads. Persistence is best-effort:
// a failed save leaves the previous stored value untouched and the
// in-memory graph stays authoritative for the session.
type PersistenceLayer struct {
	kv         store.Store
	maxBytes   int
	maxAge     time.Duration
	compress   bool
	logger     *slog.Logger
	metrics    observability.MetricsRecorder
	validators *registry.Registry[NodeKind, NodeValidator]
}

// NewPersistenceLayer creates a persistence layer over the given store.
func NewPersistenceLayer(kv store.Store, opts PersistOptions) *PersistenceLayer {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxSnapshotBytes
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxSnapshotAge
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NoopMetrics{}
	}
	return &PersistenceLayer{
		kv:         kv,
		maxBytes:   opts.MaxBytes,
		maxAge:     opts.MaxAge,
		compress:   opts.Compression,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		validators: defaultValidators(),
	}
}

// Save serializes the graph under the canvas key. Inline payloads that
// already have a durable URL are stripped first, the same rule the
// offloader applies after upload, in case offload hasn't run yet.
//
// Returns false (and writes nothing) when the snapshot exceeds the
// size cap even after compression-on-demand, or the store rejects the
// write.
func (p *PersistenceLayer) Save(ctx context.Context, canvasID string, nodes []Node, edges []Edge, meta map[string]string) bool {
	snap := StoredSnapshot{
		Version:  snapshotVersion,
		CanvasID: canvasID,
		Nodes:    StripRedundantPayloads(ProjectNodes(nodes)),
		Edges:    cloneEdges(edges),
		Meta:     meta,
		SavedAt:  time.Now().UTC(),
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		observability.LogSnapshotError(p.logger, canvasID, "serialize",
			&PersistError{CanvasID: canvasID, Op: "serialize", Err: err})
		return false
	}

	data := raw
	compressed := false
	if len(data) > p.maxBytes && p.compress {
		packed, err := gzipBytes(raw)
		if err == nil && len(packed) <= p.maxBytes {
			data = packed
			compressed = true
		}
	}
	if len(data) > p.maxBytes {
		observability.LogSnapshotError(p.logger, canvasID, "save",
			&PersistError{CanvasID: canvasID, Op: "save", Err: fmt.Errorf("%w: %d bytes", ErrSnapshotTooLarge, len(data))})
		return false
	}

	if err := p.kv.Set(snapshotKeyPrefix+canvasID, data); err != nil {
		observability.LogSnapshotError(p.logger, canvasID, "save",
			&PersistError{CanvasID: canvasID, Op: "save", Err: err})
		return false
	}

	p.metrics.RecordSnapshotSave(ctx, int64(len(data)), compressed)
	observability.LogSnapshotSaved(p.logger, canvasID, len(data), compressed)
	return true
}

// Load restores the stored snapshot for a canvas. Corrupted or stale
// entries are deleted and reported as absent, never as an error: the
// user just starts from an empty canvas.
func (p *PersistenceLayer) Load(ctx context.Context, canvasID string) (*StoredSnapshot, bool) {
	_ = ctx

	data, err := p.kv.Get(snapshotKeyPrefix + canvasID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			observability.LogSnapshotError(p.logger, canvasID, "load",
				&PersistError{CanvasID: canvasID, Op: "load", Err: err})
		}
		return nil, false
	}

	if isGzip(data) {
		unpacked, err := gunzipBytes(data)
		if err != nil {
			p.discard(canvasID, "corrupted compressed snapshot")
			return nil, false
		}
		data = unpacked
	}

	var snap StoredSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		p.discard(canvasID, "unparseable snapshot")
		return nil, false
	}
	if err := p.validate(&snap, canvasID); err != nil {
		p.discard(canvasID, err.Error())
		return nil, false
	}
	if time.Since(snap.SavedAt) > p.maxAge {
		p.discard(canvasID, "stale snapshot")
		return nil, false
	}

	return &snap, true
}

// Clear removes the stored snapshot for a canvas.
func (p *PersistenceLayer) Clear(canvasID string) {
	if err := p.kv.Delete(snapshotKeyPrefix + canvasID); err != nil {
		observability.LogSnapshotError(p.logger, canvasID, "clear",
			&PersistError{CanvasID: canvasID, Op: "clear", Err: err})
	}
}

// discard drops an unusable stored snapshot.
func (p *PersistenceLayer) discard(canvasID, reason string) {
	observability.LogSnapshotDiscarded(p.logger, canvasID, reason)
	_ = p.kv.Delete(snapshotKeyPrefix + canvasID)
}

// validate checks a restored snapshot's structure: version, id
// uniqueness, known node kinds with kind-specific checks, and edge
// references.
func (p *PersistenceLayer) validate(snap *StoredSnapshot, canvasID string) error {
	if snap.Version != snapshotVersion {
		return fmt.Errorf("%w: version %d", ErrSnapshotCorrupted, snap.Version)
	}
	if snap.CanvasID != canvasID {
		return fmt.Errorf("%w: canvas id mismatch", ErrSnapshotCorrupted)
	}
	if snap.SavedAt.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrSnapshotCorrupted)
	}

	seen := make(map[string]bool, len(snap.Nodes))
	for _, n := range snap.Nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: node with empty id", ErrSnapshotCorrupted)
		}
		if seen[n.ID] {
			return fmt.Errorf("%w: duplicate node id %s", ErrSnapshotCorrupted, n.ID)
		}
		seen[n.ID] = true

		validator, ok := p.validators.Get(n.Kind)
		if !ok {
			return fmt.Errorf("%w: unknown node kind %q", ErrSnapshotCorrupted, n.Kind)
		}
		if err := validator(n); err != nil {
			return fmt.Errorf("%w: node %s: %v", ErrSnapshotCorrupted, n.ID, err)
		}
	}

	edgeIDs := make(map[string]bool, len(snap.Edges))
	for _, e := range snap.Edges {
		if e.ID == "" || e.Source == "" || e.Target == "" {
			return fmt.Errorf("%w: malformed edge", ErrSnapshotCorrupted)
		}
		if edgeIDs[e.ID] {
			return fmt.Errorf("%w: duplicate edge id %s", ErrSnapshotCorrupted, e.ID)
		}
		edgeIDs[e.ID] = true
		if !seen[e.Source] || !seen[e.Target] {
			return fmt.Errorf("%w: edge %s references missing node", ErrSnapshotCorrupted, e.ID)
		}
	}
	return nil
}

// StripRedundantPayloads clears any inline payload whose node already
// carries a durable URL. The inline copy is redundant once offload has
// completed; dropping it keeps snapshots under the size cap.
func StripRedundantPayloads(nodes []Node) []Node {
	for i := range nodes {
		if nodes[i].Data.ResultURL != "" && nodes[i].Data.ResultPayload != "" {
			nodes[i].Data.ResultPayload = ""
		}
	}
	return nodes
}

// defaultValidators builds the per-kind structural validators.
func defaultValidators() *registry.Registry[NodeKind, NodeValidator] {
	r := registry.New[NodeKind, NodeValidator]()

	assetFields := func(n Node) error {
		if n.Data.ResultURL != "" && ClassifyAsset(n.Data.ResultURL) != AssetURL {
			return errors.New("result_url is not a URL")
		}
		if n.Data.ResultPayload != "" && ClassifyAsset(n.Data.ResultPayload) == AssetInvalid {
			return errors.New("result_payload is not a valid inline asset")
		}
		return nil
	}

	r.Register(KindInput, assetFields)
	r.Register(KindGenerator, assetFields)
	r.Register(KindMerge, assetFields)
	r.Register(KindOutput, assetFields)
	r.Register(KindUpscale, assetFields)
	r.Register(KindInpaint, assetFields)
	r.Register(KindVideo, assetFields)
	r.Register(KindEffect, func(n Node) error {
		if err := assetFields(n); err != nil {
			return err
		}
		for k, v := range n.Data.EffectSettings {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("effect setting %q is not finite", k)
			}
		}
		return nil
	})

	return r
}

// isGzip detects the gzip magic bytes.
func isGzip(data []byte) bool {
	return len(data) > 2 && data[0] == 0x1f && data[1] == 0x8b
}

// gzipBytes compresses data at the default level.
func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// gunzipBytes decompresses gzip data.
func gunzipBytes(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
