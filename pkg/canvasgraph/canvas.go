package canvasgraph

import (
	"context"

	"github.com/google/uuid"

	"github.com/artifactlab/canvasgraph/pkg/canvasgraph/event"
	"github.com/artifactlab/canvasgraph/pkg/canvasgraph/store"
)

// Services are the external collaborators a canvas session depends on.
// Storage and Snapshots may be nil: offloading and persistence are then
// disabled and the session runs purely in memory.
type Services struct {
	Generation GenerationService
	Credits    CreditService
	Storage    AssetStorage
	Snapshots  store.Store
}

// Canvas is one editing session over a node graph. It owns the graph
// store, undo history, asset offloader, and persistence layer, and is
// the entry point for user actions.
//
// All mutations flow through the graph store's patch API, so
// interleaved completions from concurrent generations never corrupt
// the graph.
type Canvas struct {
	id          string
	graph       *GraphStore
	history     *HistoryManager
	offloader   *AssetOffloader
	persistence *PersistenceLayer
	coordinator *GenerationCoordinator
	bus         *event.Bus
	cfg         canvasConfig
}

// NewCanvas creates a session for the given canvas id.
func NewCanvas(id string, svc Services, opts ...Option) *Canvas {
	cfg := defaultCanvasConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.newID == nil {
		cfg.newID = uuid.NewString
	}

	c := &Canvas{
		id:      id,
		graph:   NewGraphStore(),
		history: NewHistoryManager(cfg.historyCapacity),
		bus:     event.NewBus(),
		cfg:     cfg,
	}

	if svc.Storage != nil {
		c.offloader = NewAssetOffloader(c.graph, svc.Storage, OffloaderOptions{
			Debounce: cfg.debounceDelay,
			Settle:   cfg.settleDelay,
			Logger:   cfg.logger,
			Metrics:  cfg.metrics,
			Spans:    cfg.spans,
			Bus:      c.bus,
		})
	}
	if svc.Snapshots != nil {
		c.persistence = NewPersistenceLayer(svc.Snapshots, PersistOptions{
			MaxBytes:    cfg.snapshotMaxBytes,
			MaxAge:      cfg.snapshotMaxAge,
			Compression: cfg.compression,
			Logger:      cfg.logger,
			Metrics:     cfg.metrics,
		})
	}
	if svc.Generation != nil && svc.Credits != nil {
		c.coordinator = NewGenerationCoordinator(id, c.graph, svc.Generation, svc.Credits,
			c.history, c.offloader, CoordinatorOptions{
				Logger:  cfg.logger,
				Metrics: cfg.metrics,
				Spans:   cfg.spans,
				Bus:     c.bus,
				NewID:   cfg.newID,
			})
	}

	// The empty canvas is the first undo target.
	c.history.Record(nil, nil)
	return c
}

// ID returns the canvas id.
func (c *Canvas) ID() string {
	return c.id
}

// Graph exposes the canonical graph store.
func (c *Canvas) Graph() *GraphStore {
	return c.graph
}

// Events exposes the session's lifecycle event bus.
func (c *Canvas) Events() *event.Bus {
	return c.bus
}

// Offloader exposes the session's asset offloader, or nil when no
// asset storage was configured.
func (c *Canvas) Offloader() *AssetOffloader {
	return c.offloader
}

// AddInput adds an image input node. The asset may be a URL or any
// accepted inline encoding; malformed encodings are rejected.
func (c *Canvas) AddInput(asset string, pos Position) (Node, error) {
	node := Node{
		ID:       c.cfg.newID(),
		Kind:     KindInput,
		Position: pos,
	}
	switch ClassifyAsset(asset) {
	case AssetURL:
		node.Data.ResultURL = asset
	case AssetDataURI, AssetInline:
		normalized, err := NormalizeInline(asset)
		if err != nil {
			return Node{}, err
		}
		node.Data.ResultPayload = normalized
	default:
		return Node{}, ErrMalformedAsset
	}

	c.graph.AddNode(node)
	c.record()
	return node, nil
}

// AddMerge adds a merge node combining the given sources, with an edge
// from each source. Unknown source ids fail with ErrSourceNotFound.
func (c *Canvas) AddMerge(sourceIDs []string, pos Position) (Node, error) {
	nodes := c.graph.Nodes()
	for _, id := range sourceIDs {
		if !HasNode(nodes, id) {
			return Node{}, ErrSourceNotFound
		}
	}

	node := Node{
		ID:       c.cfg.newID(),
		Kind:     KindMerge,
		Position: pos,
	}
	c.graph.AddNode(node)
	for _, id := range sourceIDs {
		c.graph.AddEdge(Edge{ID: c.cfg.newID(), Source: id, Target: node.ID})
	}
	c.record()
	return node, nil
}

// Generate runs one generation request against the source node. It
// blocks for the duration of the external call; run it on its own
// goroutine to keep the session interactive. See
// GenerationCoordinator.Generate for semantics.
func (c *Canvas) Generate(ctx context.Context, params GenerateParams) (string, error) {
	return c.coordinator.Generate(ctx, params)
}

// AddEffect applies an opaque effect to the source node's asset and
// adds an effect node holding the result. The result upload is
// debounced: follow-up TweakEffect calls within the window collapse
// into one upload of the settled state.
func (c *Canvas) AddEffect(sourceNodeID string, fn EffectFunc, settings map[string]float64, pos Position) (string, error) {
	source, ok := c.graph.Node(sourceNodeID)
	if !ok {
		return "", ErrSourceNotFound
	}

	result, err := applyEffectTo(source, fn, settings)
	if err != nil {
		return "", err
	}

	node := Node{
		ID:       c.cfg.newID(),
		Kind:     KindEffect,
		Position: pos,
		Data: NodeData{
			SourceNodeID:   sourceNodeID,
			EffectSettings: settings,
		},
	}
	setResult(&node.Data, result)

	c.graph.AddNode(node)
	c.graph.AddEdge(Edge{ID: c.cfg.newID(), Source: sourceNodeID, Target: node.ID})
	c.record()

	c.scheduleEffectOffload(node.ID, node.Data.ResultPayload)
	return node.ID, nil
}

// TweakEffect re-applies the effect on an existing effect node with
// updated settings, recomputing from the node's source. Each tweak
// reschedules the debounced upload, so only the final settled result
// is offloaded.
func (c *Canvas) TweakEffect(effectNodeID string, fn EffectFunc, settings map[string]float64) error {
	node, ok := c.graph.Node(effectNodeID)
	if !ok || node.Kind != KindEffect {
		return ErrSourceNotFound
	}
	source, ok := c.graph.Node(node.Data.SourceNodeID)
	if !ok {
		return ErrSourceNotFound
	}

	result, err := applyEffectTo(source, fn, settings)
	if err != nil {
		return err
	}

	patch := NodePatch{EffectSettings: settings}
	clearURL := ""
	if ClassifyAsset(result) == AssetURL {
		patch.ResultURL = &result
		patch.ResultPayload = &clearURL
		// The result is already durable; a debounced upload armed by an
		// earlier tweak would overwrite this URL with one for the
		// superseded payload.
		if c.offloader != nil {
			c.offloader.Cancel(effectNodeID)
		}
	} else {
		normalized, err := NormalizeInline(result)
		if err != nil {
			return err
		}
		patch.ResultPayload = &normalized
		patch.ResultURL = &clearURL
	}
	c.graph.PatchNode(effectNodeID, patch)
	c.record()

	if patch.ResultPayload != nil && *patch.ResultPayload != "" {
		c.scheduleEffectOffload(effectNodeID, *patch.ResultPayload)
	}
	return nil
}

// RemoveNode deletes a node, cascading removal of its incident edges.
func (c *Canvas) RemoveNode(id string) {
	c.graph.RemoveNode(id)
	c.record()
}

// Undo steps the graph back one history entry.
// Reports false when there is nothing to undo.
func (c *Canvas) Undo() bool {
	snap, ok := c.history.Undo()
	if !ok {
		return false
	}
	c.graph.Replace(snap.Nodes, snap.Edges)
	return true
}

// Redo steps the graph forward one history entry.
// Reports false when there is nothing to redo.
func (c *Canvas) Redo() bool {
	snap, ok := c.history.Redo()
	if !ok {
		return false
	}
	c.graph.Replace(snap.Nodes, snap.Edges)
	return true
}

// Save flushes pending offloads and persists the current graph.
// Returns false when persistence is disabled or the save failed;
// persistence is best-effort either way.
func (c *Canvas) Save(ctx context.Context, meta map[string]string) bool {
	if c.offloader != nil {
		c.offloader.FlushAll()
	}
	if c.persistence == nil {
		return false
	}
	ok := c.persistence.Save(ctx, c.id, c.graph.Nodes(), c.graph.Edges(), meta)
	if ok {
		c.bus.Publish(event.New(event.TypeSnapshotSaved, c.id, "", ""))
	}
	return ok
}

// Restore replaces the graph with the persisted snapshot, if a valid
// fresh one exists. Reports false when there is nothing to restore.
func (c *Canvas) Restore(ctx context.Context) bool {
	if c.persistence == nil {
		return false
	}
	snap, ok := c.persistence.Load(ctx, c.id)
	if !ok {
		return false
	}
	c.graph.Replace(snap.Nodes, snap.Edges)
	c.record()
	c.bus.Publish(event.New(event.TypeSnapshotRestored, c.id, "", ""))
	return true
}

// ClearSaved removes the persisted snapshot for this canvas.
func (c *Canvas) ClearSaved() {
	if c.persistence != nil {
		c.persistence.Clear(c.id)
	}
}

// Close flushes pending offloads, performs a final best-effort save,
// and shuts down the event bus. The session must not be used after.
func (c *Canvas) Close(ctx context.Context) {
	if c.offloader != nil {
		c.offloader.FlushAll()
	}
	if c.persistence != nil {
		c.persistence.Save(ctx, c.id, c.graph.Nodes(), c.graph.Edges(), nil)
	}
	c.bus.Close()
}

// record snapshots the current graph into history.
func (c *Canvas) record() {
	c.history.Record(c.graph.Nodes(), c.graph.Edges())
	c.cfg.metrics.RecordHistoryDepth(context.Background(), c.history.Len())
}

// scheduleEffectOffload queues a debounced upload of an effect result.
func (c *Canvas) scheduleEffectOffload(nodeID, payload string) {
	if c.offloader == nil || payload == "" {
		return
	}
	c.offloader.ScheduleUpload(nodeID, payload, c.id, UploadDebounced, UploadOptions{}, nil)
}

// applyEffectTo runs the effect function against a node's asset,
// preferring the inline payload over the URL.
func applyEffectTo(source Node, fn EffectFunc, settings map[string]float64) (string, error) {
	asset := source.Data.ResultPayload
	if asset == "" {
		asset = source.Data.ResultURL
	}
	if asset == "" {
		return "", ErrMalformedAsset
	}
	return fn(asset, settings)
}

// setResult stores a classified effect/generation result on node data.
func setResult(d *NodeData, result string) {
	if ClassifyAsset(result) == AssetURL {
		d.ResultURL = result
		return
	}
	if normalized, err := NormalizeInline(result); err == nil {
		d.ResultPayload = normalized
	}
}
