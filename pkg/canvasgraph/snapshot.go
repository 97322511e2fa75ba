package canvasgraph

import (
	"time"
)

// Snapshot is a fully-cloned, storage/undo-safe copy of the graph at
// one instant. Node and edge ids are unique within a snapshot;
// insertion order carries no meaning.
type Snapshot struct {
	Nodes     []Node    `json:"nodes"`
	Edges     []Edge    `json:"edges"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSnapshot builds a snapshot from the given collections, applying
// the serializable projection: function-valued fields are stripped and
// non-plain auxiliary data is dropped rather than failing the clone.
func NewSnapshot(nodes []Node, edges []Edge) Snapshot {
	return Snapshot{
		Nodes:     ProjectNodes(nodes),
		Edges:     cloneEdges(edges),
		Timestamp: time.Now().UTC(),
	}
}

// maxProjectionDepth bounds recursion into auxiliary data so cyclic
// structures cannot hang the projection.
const maxProjectionDepth = 32

// ProjectNodes deep-clones nodes into plain data suitable for undo
// history and persistence. Callback closures, nested functions, and
// other non-serializable values are dropped.
func ProjectNodes(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = projectNode(n)
	}
	return out
}

// projectNode produces the serializable projection of one node.
func projectNode(n Node) Node {
	p := n
	p.Data.OnResult = nil
	if n.Data.EffectSettings != nil {
		settings := make(map[string]float64, len(n.Data.EffectSettings))
		for k, v := range n.Data.EffectSettings {
			settings[k] = v
		}
		p.Data.EffectSettings = settings
	}
	if n.Data.Extra != nil {
		if extra, ok := projectValue(n.Data.Extra, 0); ok {
			p.Data.Extra = extra.(map[string]any)
		} else {
			p.Data.Extra = nil
		}
	}
	return p
}

// projectValue recursively copies plain data, reporting false for
// values that cannot be represented (functions, channels, or anything
// nested past the depth bound).
func projectValue(v any, depth int) (any, bool) {
	if depth > maxProjectionDepth {
		return nil, false
	}
	switch val := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val, true
	case time.Time:
		return val, true
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if projected, ok := projectValue(item, depth+1); ok {
				out[k] = projected
			}
		}
		return out, true
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			if projected, ok := projectValue(item, depth+1); ok {
				out = append(out, projected)
			}
		}
		return out, true
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out, true
	case []float64:
		out := make([]float64, len(val))
		copy(out, val)
		return out, true
	default:
		// Functions, channels, pointers, arbitrary structs: not plain data.
		return nil, false
	}
}

// cloneNode copies a node for copy-on-write storage. Unlike the
// serializable projection it keeps callback fields, since the live
// store still needs them; maps are copied so patches never alias.
func cloneNode(n Node) Node {
	c := n
	if n.Data.EffectSettings != nil {
		settings := make(map[string]float64, len(n.Data.EffectSettings))
		for k, v := range n.Data.EffectSettings {
			settings[k] = v
		}
		c.Data.EffectSettings = settings
	}
	if n.Data.Extra != nil {
		extra := make(map[string]any, len(n.Data.Extra))
		for k, v := range n.Data.Extra {
			extra[k] = v
		}
		c.Data.Extra = extra
	}
	return c
}

// cloneNodes copies a node slice for copy-on-write storage.
func cloneNodes(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = cloneNode(n)
	}
	return out
}

// cloneEdges copies an edge slice. Edges are plain values.
func cloneEdges(edges []Edge) []Edge {
	out := make([]Edge, len(edges))
	copy(out, edges)
	return out
}
