package canvasgraph

import (
	"sync"
)

// NodeKind identifies the shape of a node's data.
type NodeKind string

// Node kinds supported on the canvas.
const (
	KindInput     NodeKind = "input"
	KindGenerator NodeKind = "generator"
	KindMerge     NodeKind = "merge"
	KindEffect    NodeKind = "effect"
	KindOutput    NodeKind = "output"
	KindUpscale   NodeKind = "upscale"
	KindInpaint   NodeKind = "inpaint"
	KindVideo     NodeKind = "video"
)

// KnownKind reports whether k is one of the supported node kinds.
func KnownKind(k NodeKind) bool {
	switch k {
	case KindInput, KindGenerator, KindMerge, KindEffect, KindOutput, KindUpscale,
		KindInpaint, KindVideo:
		return true
	}
	return false
}

// Position is a node's location on the infinite canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData holds the per-kind payload of a node.
//
// Generator-family nodes (generator, output, upscale, effect) use
// IsLoading, SourceNodeID, ResultPayload, and ResultURL. At most one of
// ResultPayload/ResultURL is meaningfully populated once a generation
// completes and offload succeeds; both coexist only during the offload
// window.
type NodeData struct {
	Label      string `json:"label,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
	Model      string `json:"model,omitempty"`
	Resolution string `json:"resolution,omitempty"`

	// IsLoading marks a skeleton node whose generation is in flight.
	IsLoading bool `json:"is_loading,omitempty"`

	// SourceNodeID is the node this result was generated from.
	SourceNodeID string `json:"source_node_id,omitempty"`

	// ResultPayload is the inline-encoded asset (mime;base64).
	ResultPayload string `json:"result_payload,omitempty"`

	// ResultURL is the durable remote asset URL after offload.
	ResultURL string `json:"result_url,omitempty"`

	// EffectSettings are the live-tunable parameters of an effect node.
	EffectSettings map[string]float64 `json:"effect_settings,omitempty"`

	// Extra carries UI-owned auxiliary data. Values that are not plain
	// data are dropped when the node is snapshotted.
	Extra map[string]any `json:"extra,omitempty"`

	// OnResult is an optional UI callback fired when a result lands.
	// Never serialized; stripped from snapshots.
	OnResult func(nodeID string) `json:"-"`
}

// Node is one vertex of the canvas graph.
type Node struct {
	ID       string   `json:"id"`
	Kind     NodeKind `json:"kind"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// Edge connects two nodes by id. Edges carry no ownership: deleting a
// node cascades removal of its incident edges.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
}

// NodePatch is a partial update shallow-merged into a node's data.
// Nil pointer fields leave the current value unchanged; a pointer to
// the zero value clears the field. Map fields merge key-by-key.
type NodePatch struct {
	Label         *string
	Prompt        *string
	Model         *string
	Resolution    *string
	IsLoading     *bool
	SourceNodeID  *string
	ResultPayload *string
	ResultURL     *string
	Position      *Position

	EffectSettings map[string]float64
	Extra          map[string]any
}

// GraphStore holds the canonical node and edge collections for one
// canvas. All mutations go through its methods; internal slices are
// replaced copy-on-write so returned collections can be diffed by
// callers for change detection.
//
// Patch and remove operations on an unknown id are no-ops, not errors:
// late-arriving async callbacks may race a user-initiated deletion.
type GraphStore struct {
	mu    sync.RWMutex
	nodes []Node
	edges []Edge
}

// NewGraphStore creates an empty graph store.
func NewGraphStore() *GraphStore {
	return &GraphStore{}
}

// AddNode appends a node and returns the new node collection.
func (s *GraphStore) AddNode(n Node) []Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]Node, len(s.nodes), len(s.nodes)+1)
	copy(next, s.nodes)
	next = append(next, cloneNode(n))
	s.nodes = next
	return cloneNodes(s.nodes)
}

// RemoveNode deletes a node and cascades removal of its incident edges.
// Unknown ids are a no-op. Returns the new node and edge collections.
func (s *GraphStore) RemoveNode(id string) ([]Node, []Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes := make([]Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		if n.ID != id {
			nodes = append(nodes, n)
		}
	}
	s.nodes = nodes
	s.edges = edgesWithout(s.edges, id)
	return cloneNodes(s.nodes), cloneEdges(s.edges)
}

// PatchNode shallow-merges a partial update into the node's data and
// returns the new node collection. The node itself is never replaced.
// Unknown ids are a no-op.
func (s *GraphStore) PatchNode(id string, p NodePatch) []Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]Node, len(s.nodes))
	copy(next, s.nodes)
	for i := range next {
		if next[i].ID != id {
			continue
		}
		patched := cloneNode(next[i])
		applyPatch(&patched, p)
		next[i] = patched
		break
	}
	s.nodes = next
	return cloneNodes(s.nodes)
}

// AddEdge appends an edge and returns the new edge collection.
func (s *GraphStore) AddEdge(e Edge) []Edge {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]Edge, len(s.edges), len(s.edges)+1)
	copy(next, s.edges)
	next = append(next, e)
	s.edges = next
	return cloneEdges(s.edges)
}

// RemoveEdge deletes a single edge by id. Unknown ids are a no-op.
func (s *GraphStore) RemoveEdge(id string) []Edge {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]Edge, 0, len(s.edges))
	for _, e := range s.edges {
		if e.ID != id {
			next = append(next, e)
		}
	}
	s.edges = next
	return cloneEdges(s.edges)
}

// RemoveEdgesTouching deletes every edge whose source or target is id
// and returns the new edge collection.
func (s *GraphStore) RemoveEdgesTouching(id string) []Edge {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.edges = edgesWithout(s.edges, id)
	return cloneEdges(s.edges)
}

// Node returns a copy of the node with the given id.
func (s *GraphStore) Node(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.nodes {
		if n.ID == id {
			return cloneNode(n), true
		}
	}
	return Node{}, false
}

// Nodes returns a copy of the node collection.
func (s *GraphStore) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneNodes(s.nodes)
}

// Edges returns a copy of the edge collection.
func (s *GraphStore) Edges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEdges(s.edges)
}

// Counts returns the number of nodes and edges.
func (s *GraphStore) Counts() (nodes, edges int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes), len(s.edges)
}

// Replace swaps in entirely new collections, used when applying an
// undo/redo snapshot or a restored save.
func (s *GraphStore) Replace(nodes []Node, edges []Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = cloneNodes(nodes)
	s.edges = cloneEdges(edges)
}

// edgesWithout filters out edges touching the given node id.
func edgesWithout(edges []Edge, nodeID string) []Edge {
	next := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if e.Source != nodeID && e.Target != nodeID {
			next = append(next, e)
		}
	}
	return next
}

// applyPatch shallow-merges p into n.Data (and position).
func applyPatch(n *Node, p NodePatch) {
	if p.Label != nil {
		n.Data.Label = *p.Label
	}
	if p.Prompt != nil {
		n.Data.Prompt = *p.Prompt
	}
	if p.Model != nil {
		n.Data.Model = *p.Model
	}
	if p.Resolution != nil {
		n.Data.Resolution = *p.Resolution
	}
	if p.IsLoading != nil {
		n.Data.IsLoading = *p.IsLoading
	}
	if p.SourceNodeID != nil {
		n.Data.SourceNodeID = *p.SourceNodeID
	}
	if p.ResultPayload != nil {
		n.Data.ResultPayload = *p.ResultPayload
	}
	if p.ResultURL != nil {
		n.Data.ResultURL = *p.ResultURL
	}
	if p.Position != nil {
		n.Position = *p.Position
	}
	if len(p.EffectSettings) > 0 {
		if n.Data.EffectSettings == nil {
			n.Data.EffectSettings = make(map[string]float64, len(p.EffectSettings))
		}
		for k, v := range p.EffectSettings {
			n.Data.EffectSettings[k] = v
		}
	}
	if len(p.Extra) > 0 {
		if n.Data.Extra == nil {
			n.Data.Extra = make(map[string]any, len(p.Extra))
		}
		for k, v := range p.Extra {
			n.Data.Extra[k] = v
		}
	}
}
