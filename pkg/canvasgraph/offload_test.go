package canvasgraph

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artifactlab/canvasgraph/pkg/canvasgraph/event"
)

type uploadRecord struct {
	payload  string
	canvasID string
	nodeID   string
	opts     UploadOptions
}

// fakeStorage records uploads and mints deterministic URLs.
type fakeStorage struct {
	mu      sync.Mutex
	uploads []uploadRecord
	err     error
}

func (f *fakeStorage) UploadAsset(_ context.Context, payload, canvasID, nodeID string, opts UploadOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.uploads = append(f.uploads, uploadRecord{payload: payload, canvasID: canvasID, nodeID: nodeID, opts: opts})
	return "https://cdn.test/" + canvasID + "/" + nodeID + ".png", nil
}

func (f *fakeStorage) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func (f *fakeStorage) last() uploadRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads[len(f.uploads)-1]
}

func newOffloadFixture(t *testing.T, opts OffloaderOptions) (*GraphStore, *fakeStorage, *AssetOffloader) {
	t.Helper()
	graph := NewGraphStore()
	graph.AddNode(Node{ID: "n1", Kind: KindEffect, Data: NodeData{ResultPayload: "image/png;" + longBase64}})
	storage := &fakeStorage{}
	return graph, storage, NewAssetOffloader(graph, storage, opts)
}

func TestOffloadDebouncedCollapsesRapidUpdates(t *testing.T) {
	graph, storage, o := newOffloadFixture(t, OffloaderOptions{
		Debounce: 40 * time.Millisecond,
		Settle:   10 * time.Millisecond,
	})

	o.ScheduleUpload("n1", "image/png;"+longBase64, "c1", UploadDebounced, UploadOptions{}, nil)
	time.Sleep(15 * time.Millisecond)
	final := "image/png;" + longBase64[:88]
	o.ScheduleUpload("n1", final, "c1", UploadDebounced, UploadOptions{}, nil)

	require.Eventually(t, func() bool { return storage.count() == 1 }, time.Second, 5*time.Millisecond)
	// Quiet period restarts on reschedule; only the last payload uploads.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, storage.count())
	assert.Equal(t, final, storage.last().payload)

	node, ok := graph.Node("n1")
	require.True(t, ok)
	assert.Equal(t, "https://cdn.test/c1/n1.png", node.Data.ResultURL)
}

func TestOffloadCancelDropsPendingUpload(t *testing.T) {
	_, storage, o := newOffloadFixture(t, OffloaderOptions{
		Debounce: 20 * time.Millisecond,
		Settle:   10 * time.Millisecond,
	})

	o.ScheduleUpload("n1", "image/png;"+longBase64, "c1", UploadDebounced, UploadOptions{}, nil)
	assert.True(t, o.Cancel("n1"))
	assert.Equal(t, 0, o.PendingCount())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, storage.count(), "cancelled timer never fires")

	assert.False(t, o.Cancel("n1"), "nothing left to cancel")
	assert.False(t, o.Cancel("ghost"))
}

func TestOffloadImmediate(t *testing.T) {
	graph, storage, o := newOffloadFixture(t, OffloaderOptions{
		Debounce: time.Hour, // would never fire on its own
		Settle:   10 * time.Millisecond,
	})

	done := make(chan error, 1)
	o.ScheduleUpload("n1", "image/png;"+longBase64, "c1", UploadImmediate, UploadOptions{SkipCompression: true},
		func(nodeID, url string, err error) { done <- err })

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("upload did not complete")
	}

	assert.Equal(t, 1, storage.count())
	assert.True(t, storage.last().opts.SkipCompression)

	node, _ := graph.Node("n1")
	assert.NotEmpty(t, node.Data.ResultURL)
}

func TestOffloadClearsPayloadAfterSettle(t *testing.T) {
	graph, _, o := newOffloadFixture(t, OffloaderOptions{
		Debounce: 5 * time.Millisecond,
		Settle:   10 * time.Millisecond,
	})

	o.ScheduleUpload("n1", "image/png;"+longBase64, "c1", UploadDebounced, UploadOptions{}, nil)

	require.Eventually(t, func() bool {
		node, ok := graph.Node("n1")
		return ok && node.Data.ResultURL != "" && node.Data.ResultPayload == ""
	}, time.Second, 5*time.Millisecond, "payload reclaimed once the settle window passes")
}

func TestOffloadSettleSkipsWhenURLChanged(t *testing.T) {
	graph, _, o := newOffloadFixture(t, OffloaderOptions{
		Debounce: time.Hour,
		Settle:   50 * time.Millisecond,
	})

	done := make(chan struct{})
	o.ScheduleUpload("n1", "image/png;"+longBase64, "c1", UploadImmediate, UploadOptions{},
		func(string, string, error) { close(done) })
	<-done

	// A regeneration lands a different URL before the settle window ends:
	// the stale cleanup must leave the new payload alone.
	newer := "https://cdn.test/c1/regenerated.png"
	graph.PatchNode("n1", NodePatch{ResultURL: &newer})

	time.Sleep(120 * time.Millisecond)
	node, _ := graph.Node("n1")
	assert.Equal(t, "image/png;"+longBase64, node.Data.ResultPayload, "payload kept, cleanup belonged to a stale upload")
}

func TestOffloadFailureRetainsPayload(t *testing.T) {
	graph, storage, o := newOffloadFixture(t, OffloaderOptions{
		Debounce: time.Hour,
		Settle:   10 * time.Millisecond,
	})
	storage.err = errors.New("bucket unavailable")

	done := make(chan error, 1)
	o.ScheduleUpload("n1", "image/png;"+longBase64, "c1", UploadImmediate, UploadOptions{},
		func(nodeID, url string, err error) { done <- err })

	err := <-done
	var offErr *OffloadError
	require.ErrorAs(t, err, &offErr)
	assert.Equal(t, "n1", offErr.NodeID)

	node, _ := graph.Node("n1")
	assert.Empty(t, node.Data.ResultURL)
	assert.Equal(t, "image/png;"+longBase64, node.Data.ResultPayload, "inline payload stays as the fallback")
}

func TestOffloadPublishesLifecycleEvents(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	var mu sync.Mutex
	var seen []event.Type
	bus.Subscribe([]event.Type{event.TypeOffloadComplete, event.TypeOffloadFailed}, func(e event.Event) {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
	})

	graph := NewGraphStore()
	graph.AddNode(Node{ID: "n1", Kind: KindOutput})
	storage := &fakeStorage{}
	o := NewAssetOffloader(graph, storage, OffloaderOptions{
		Debounce: time.Hour,
		Settle:   10 * time.Millisecond,
		Bus:      bus,
	})

	done := make(chan struct{})
	o.ScheduleUpload("n1", "image/png;"+longBase64, "c1", UploadImmediate, UploadOptions{},
		func(string, string, error) { close(done) })
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.Equal(t, event.TypeOffloadComplete, seen[0])
}

func TestOffloadFlush(t *testing.T) {
	graph, storage, o := newOffloadFixture(t, OffloaderOptions{
		Debounce: time.Hour,
		Settle:   10 * time.Millisecond,
	})

	o.ScheduleUpload("n1", "image/png;"+longBase64, "c1", UploadDebounced, UploadOptions{}, nil)
	assert.Equal(t, 1, o.PendingCount())

	require.True(t, o.Flush("n1"))
	assert.Equal(t, 1, storage.count(), "flush runs the upload synchronously")
	assert.Equal(t, 0, o.PendingCount())

	assert.False(t, o.Flush("n1"), "nothing left to flush")
	assert.False(t, o.Flush("unknown"))

	node, _ := graph.Node("n1")
	assert.NotEmpty(t, node.Data.ResultURL)
}

func TestOffloadFlushAll(t *testing.T) {
	graph := NewGraphStore()
	graph.AddNode(Node{ID: "n1", Kind: KindEffect})
	graph.AddNode(Node{ID: "n2", Kind: KindEffect})
	storage := &fakeStorage{}
	o := NewAssetOffloader(graph, storage, OffloaderOptions{
		Debounce: time.Hour,
		Settle:   10 * time.Millisecond,
	})

	o.ScheduleUpload("n1", "image/png;"+longBase64, "c1", UploadDebounced, UploadOptions{}, nil)
	o.ScheduleUpload("n2", "image/png;"+longBase64, "c1", UploadDebounced, UploadOptions{}, nil)

	o.FlushAll()

	assert.Equal(t, 2, storage.count())
	assert.Equal(t, 0, o.PendingCount())
}
