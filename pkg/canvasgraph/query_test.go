package canvasgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queryFixture() ([]Node, []Edge) {
	nodes := []Node{
		{ID: "in", Kind: KindInput},
		{ID: "gen1", Kind: KindOutput, Data: NodeData{IsLoading: true}},
		{ID: "gen2", Kind: KindOutput},
		{ID: "fx", Kind: KindEffect},
	}
	edges := []Edge{
		{ID: "e1", Source: "in", Target: "gen1"},
		{ID: "e2", Source: "in", Target: "gen2"},
		{ID: "e3", Source: "gen2", Target: "fx"},
	}
	return nodes, edges
}

func TestHasAndFindNode(t *testing.T) {
	nodes, _ := queryFixture()

	assert.True(t, HasNode(nodes, "fx"))
	assert.False(t, HasNode(nodes, "missing"))

	n, ok := FindNode(nodes, "gen1")
	require.True(t, ok)
	assert.Equal(t, KindOutput, n.Kind)

	_, ok = FindNode(nodes, "missing")
	assert.False(t, ok)
}

func TestNodesByKind(t *testing.T) {
	nodes, _ := queryFixture()

	outputs := NodesByKind(nodes, KindOutput)
	assert.Len(t, outputs, 2)
	assert.Empty(t, NodesByKind(nodes, KindMerge))
}

func TestEdgesTouching(t *testing.T) {
	_, edges := queryFixture()

	touching := EdgesTouching(edges, "gen2")
	require.Len(t, touching, 2)
	assert.Empty(t, EdgesTouching(edges, "missing"))
}

func TestDownstreamUpstream(t *testing.T) {
	_, edges := queryFixture()

	assert.ElementsMatch(t, []string{"gen1", "gen2"}, Downstream(edges, "in"))
	assert.ElementsMatch(t, []string{"gen2"}, Upstream(edges, "fx"))
	assert.Empty(t, Downstream(edges, "fx"))
	assert.Empty(t, Upstream(edges, "in"))
}

func TestLoadingNodes(t *testing.T) {
	nodes, _ := queryFixture()

	loading := LoadingNodes(nodes)
	require.Len(t, loading, 1)
	assert.Equal(t, "gen1", loading[0].ID)
}
