package canvasgraph

// Read-only traversal helpers over node/edge collections. Adjacency is
// by id, not position: callers never index into the slices directly.

// HasNode reports whether a node with the given id exists.
func HasNode(nodes []Node, id string) bool {
	for _, n := range nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// FindNode returns the node with the given id.
func FindNode(nodes []Node, id string) (Node, bool) {
	for _, n := range nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// NodesByKind returns all nodes of the given kind.
func NodesByKind(nodes []Node, kind NodeKind) []Node {
	var out []Node
	for _, n := range nodes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// EdgesTouching returns all edges whose source or target is id.
func EdgesTouching(edges []Edge, id string) []Edge {
	var out []Edge
	for _, e := range edges {
		if e.Source == id || e.Target == id {
			out = append(out, e)
		}
	}
	return out
}

// Downstream returns the ids of nodes directly reachable from id.
func Downstream(edges []Edge, id string) []string {
	var out []string
	for _, e := range edges {
		if e.Source == id {
			out = append(out, e.Target)
		}
	}
	return out
}

// Upstream returns the ids of nodes with an edge into id.
func Upstream(edges []Edge, id string) []string {
	var out []string
	for _, e := range edges {
		if e.Target == id {
			out = append(out, e.Source)
		}
	}
	return out
}

// LoadingNodes returns all nodes whose generation is still in flight.
func LoadingNodes(nodes []Node) []Node {
	var out []Node
	for _, n := range nodes {
		if n.Data.IsLoading {
			out = append(out, n)
		}
	}
	return out
}
