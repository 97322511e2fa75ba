package canvasgraph

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artifactlab/canvasgraph/pkg/canvasgraph/store"
)

func persistFixtureNodes() ([]Node, []Edge) {
	nodes := []Node{
		{ID: "in", Kind: KindInput, Position: Position{X: 1, Y: 2}, Data: NodeData{ResultURL: "https://cdn.test/base.png"}},
		{ID: "out", Kind: KindOutput, Data: NodeData{
			SourceNodeID: "in",
			ResultURL:    "https://cdn.test/out.png",
			OnResult:     func(string) {},
		}},
	}
	edges := []Edge{{ID: "e1", Source: "in", Target: "out"}}
	return nodes, edges
}

func TestPersistSaveLoadRoundtrip(t *testing.T) {
	kv := store.NewMemoryStore()
	p := NewPersistenceLayer(kv, PersistOptions{})
	nodes, edges := persistFixtureNodes()

	require.True(t, p.Save(context.Background(), "c1", nodes, edges, map[string]string{"title": "fox study"}))

	snap, ok := p.Load(context.Background(), "c1")
	require.True(t, ok)
	assert.Equal(t, "c1", snap.CanvasID)
	assert.Len(t, snap.Nodes, 2)
	assert.Len(t, snap.Edges, 1)
	assert.Equal(t, "fox study", snap.Meta["title"])
	assert.WithinDuration(t, time.Now(), snap.SavedAt, time.Minute)

	restored, ok := FindNode(snap.Nodes, "out")
	require.True(t, ok)
	assert.Nil(t, restored.Data.OnResult, "callbacks never survive serialization")
}

func TestPersistLoadMissingCanvas(t *testing.T) {
	p := NewPersistenceLayer(store.NewMemoryStore(), PersistOptions{})

	_, ok := p.Load(context.Background(), "nope")
	assert.False(t, ok)
}

func TestPersistStripsRedundantPayloads(t *testing.T) {
	kv := store.NewMemoryStore()
	p := NewPersistenceLayer(kv, PersistOptions{})

	nodes := []Node{
		{ID: "done", Kind: KindOutput, Data: NodeData{
			ResultURL:     "https://cdn.test/done.png",
			ResultPayload: "image/png;" + longBase64,
		}},
		{ID: "pending", Kind: KindOutput, Data: NodeData{
			ResultPayload: "image/png;" + longBase64,
		}},
	}
	require.True(t, p.Save(context.Background(), "c1", nodes, nil, nil))

	snap, ok := p.Load(context.Background(), "c1")
	require.True(t, ok)

	done, _ := FindNode(snap.Nodes, "done")
	assert.Empty(t, done.Data.ResultPayload, "inline copy is redundant once a URL exists")
	assert.Equal(t, "https://cdn.test/done.png", done.Data.ResultURL)

	pending, _ := FindNode(snap.Nodes, "pending")
	assert.Equal(t, "image/png;"+longBase64, pending.Data.ResultPayload, "payload without a URL is the only copy")
}

func TestPersistSaveFailsClosedOverSizeCap(t *testing.T) {
	kv := store.NewMemoryStore()
	p := NewPersistenceLayer(kv, PersistOptions{MaxBytes: 512})

	small := []Node{{ID: "a", Kind: KindInput}}
	require.True(t, p.Save(context.Background(), "c1", small, nil, nil))

	big := []Node{{ID: "a", Kind: KindInput, Data: NodeData{
		ResultPayload: "image/png;" + strings.Repeat("A", 4096),
	}}}
	assert.False(t, p.Save(context.Background(), "c1", big, nil, nil))

	// The previous stored value is untouched by the failed save.
	snap, ok := p.Load(context.Background(), "c1")
	require.True(t, ok)
	require.Len(t, snap.Nodes, 1)
	assert.Empty(t, snap.Nodes[0].Data.ResultPayload)
}

func TestPersistCompressionOnDemand(t *testing.T) {
	kv := store.NewMemoryStore()
	p := NewPersistenceLayer(kv, PersistOptions{MaxBytes: 1024, Compression: true})

	nodes := []Node{{ID: "a", Kind: KindOutput, Data: NodeData{
		ResultPayload: "image/png;" + strings.Repeat("A", 8192),
	}}}
	require.True(t, p.Save(context.Background(), "c1", nodes, nil, nil), "compressible snapshot fits after gzip")

	raw, err := kv.Get("canvas/c1")
	require.NoError(t, err)
	assert.True(t, isGzip(raw))
	assert.LessOrEqual(t, len(raw), 1024)

	snap, ok := p.Load(context.Background(), "c1")
	require.True(t, ok)
	assert.Equal(t, "image/png;"+strings.Repeat("A", 8192), snap.Nodes[0].Data.ResultPayload)
}

func TestPersistStaleSnapshotDiscarded(t *testing.T) {
	kv := store.NewMemoryStore()
	p := NewPersistenceLayer(kv, PersistOptions{})

	snap := StoredSnapshot{
		Version:  snapshotVersion,
		CanvasID: "c1",
		Nodes:    []Node{{ID: "a", Kind: KindInput}},
		SavedAt:  time.Now().UTC().Add(-8 * 24 * time.Hour),
	}
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, kv.Set("canvas/c1", data))

	_, ok := p.Load(context.Background(), "c1")
	assert.False(t, ok)

	_, err = kv.Get("canvas/c1")
	assert.ErrorIs(t, err, store.ErrNotFound, "stale entry deleted on load")
}

func TestPersistFreshSnapshotWithinMaxAge(t *testing.T) {
	kv := store.NewMemoryStore()
	p := NewPersistenceLayer(kv, PersistOptions{})

	snap := StoredSnapshot{
		Version:  snapshotVersion,
		CanvasID: "c1",
		Nodes:    []Node{{ID: "a", Kind: KindInput}},
		SavedAt:  time.Now().UTC().Add(-6 * 24 * time.Hour),
	}
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, kv.Set("canvas/c1", data))

	_, ok := p.Load(context.Background(), "c1")
	assert.True(t, ok)
}

func TestPersistCorruptedSnapshotsDiscarded(t *testing.T) {
	makeSnap := func(mutate func(*StoredSnapshot)) []byte {
		snap := StoredSnapshot{
			Version:  snapshotVersion,
			CanvasID: "c1",
			Nodes: []Node{
				{ID: "a", Kind: KindInput},
				{ID: "b", Kind: KindOutput},
			},
			Edges:   []Edge{{ID: "e1", Source: "a", Target: "b"}},
			SavedAt: time.Now().UTC(),
		}
		mutate(&snap)
		data, err := json.Marshal(snap)
		require.NoError(t, err)
		return data
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"not json", []byte("{{{")},
		{"wrong version", makeSnap(func(s *StoredSnapshot) { s.Version = 99 })},
		{"canvas id mismatch", makeSnap(func(s *StoredSnapshot) { s.CanvasID = "other" })},
		{"missing timestamp", makeSnap(func(s *StoredSnapshot) { s.SavedAt = time.Time{} })},
		{"empty node id", makeSnap(func(s *StoredSnapshot) { s.Nodes[0].ID = "" })},
		{"duplicate node id", makeSnap(func(s *StoredSnapshot) { s.Nodes[1].ID = "a" })},
		{"unknown node kind", makeSnap(func(s *StoredSnapshot) { s.Nodes[0].Kind = "hologram" })},
		{"edge to missing node", makeSnap(func(s *StoredSnapshot) { s.Edges[0].Target = "ghost" })},
		{"malformed edge", makeSnap(func(s *StoredSnapshot) { s.Edges[0].Source = "" })},
		{"duplicate edge id", makeSnap(func(s *StoredSnapshot) {
			s.Edges = append(s.Edges, Edge{ID: "e1", Source: "b", Target: "a"})
		})},
		{"bad result url", makeSnap(func(s *StoredSnapshot) { s.Nodes[0].Data.ResultURL = "???" })},
		{"garbage gzip header", []byte{0x1f, 0x8b, 0x00, 0x01, 0x02}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := store.NewMemoryStore()
			p := NewPersistenceLayer(kv, PersistOptions{})
			require.NoError(t, kv.Set("canvas/c1", tt.data))

			_, ok := p.Load(context.Background(), "c1")
			assert.False(t, ok)

			_, err := kv.Get("canvas/c1")
			assert.ErrorIs(t, err, store.ErrNotFound, "unusable entry deleted")
		})
	}
}

func TestPersistEffectSettingsMustBeFinite(t *testing.T) {
	validators := defaultValidators()
	check, ok := validators.Get(KindEffect)
	require.True(t, ok)

	assert.NoError(t, check(Node{ID: "fx", Kind: KindEffect, Data: NodeData{
		EffectSettings: map[string]float64{"blur": 2.5},
	}}))
	assert.Error(t, check(Node{ID: "fx", Kind: KindEffect, Data: NodeData{
		EffectSettings: map[string]float64{"blur": math.NaN()},
	}}))
	assert.Error(t, check(Node{ID: "fx", Kind: KindEffect, Data: NodeData{
		EffectSettings: map[string]float64{"blur": math.Inf(1)},
	}}))
}

func TestPersistClear(t *testing.T) {
	kv := store.NewMemoryStore()
	p := NewPersistenceLayer(kv, PersistOptions{})
	nodes, edges := persistFixtureNodes()

	require.True(t, p.Save(context.Background(), "c1", nodes, edges, nil))
	p.Clear("c1")

	_, ok := p.Load(context.Background(), "c1")
	assert.False(t, ok)
}

func TestPersistCanvasesAreIsolated(t *testing.T) {
	kv := store.NewMemoryStore()
	p := NewPersistenceLayer(kv, PersistOptions{})

	require.True(t, p.Save(context.Background(), "c1", []Node{{ID: "a", Kind: KindInput}}, nil, nil))
	require.True(t, p.Save(context.Background(), "c2", []Node{{ID: "b", Kind: KindInput}}, nil, nil))

	snap1, ok := p.Load(context.Background(), "c1")
	require.True(t, ok)
	snap2, ok := p.Load(context.Background(), "c2")
	require.True(t, ok)

	assert.Equal(t, "a", snap1.Nodes[0].ID)
	assert.Equal(t, "b", snap2.Nodes[0].ID)
}

func TestStripRedundantPayloads(t *testing.T) {
	nodes := []Node{
		{ID: "both", Data: NodeData{ResultURL: "https://x/a.png", ResultPayload: "image/png;abc"}},
		{ID: "url-only", Data: NodeData{ResultURL: "https://x/b.png"}},
		{ID: "payload-only", Data: NodeData{ResultPayload: "image/png;def"}},
	}

	out := StripRedundantPayloads(nodes)

	assert.Empty(t, out[0].Data.ResultPayload)
	assert.Equal(t, "https://x/b.png", out[1].Data.ResultURL)
	assert.Equal(t, "image/png;def", out[2].Data.ResultPayload)
}
