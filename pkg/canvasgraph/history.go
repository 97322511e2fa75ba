package canvasgraph

import (
	"sync"
)

// DefaultHistoryCapacity is the default undo history depth.
const DefaultHistoryCapacity = 50

// HistoryManager keeps a bounded sequence of deep-cloned graph
// snapshots with a cursor, implementing linear undo/redo: recording a
// new entry discards any redo branch, and pushing past capacity evicts
// the oldest entry.
//
// Snapshots pass through the serializable projection, so callback
// closures on nodes are stripped before cloning.
type HistoryManager struct {
	mu       sync.Mutex
	entries  []Snapshot
	cursor   int // index of the current entry, -1 when empty
	capacity int
}

// NewHistoryManager creates a history with the given capacity.
// Capacities below 1 fall back to DefaultHistoryCapacity.
func NewHistoryManager(capacity int) *HistoryManager {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	return &HistoryManager{cursor: -1, capacity: capacity}
}

// Record snapshots the given collections as the new current state.
// Entries after the cursor (the redo branch) are discarded first.
func (h *HistoryManager) Record(nodes []Node, edges []Edge) {
	snap := NewSnapshot(nodes, edges)

	h.mu.Lock()
	defer h.mu.Unlock()

	// Discard the redo branch
	h.entries = h.entries[:h.cursor+1]
	h.entries = append(h.entries, snap)
	h.cursor++

	// Evict the oldest entry past capacity
	if len(h.entries) > h.capacity {
		overflow := len(h.entries) - h.capacity
		h.entries = append([]Snapshot(nil), h.entries[overflow:]...)
		h.cursor -= overflow
	}
}

// Undo steps the cursor back and returns that snapshot.
// Reports false at the start of history, leaving the cursor in place.
func (h *HistoryManager) Undo() (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cursor <= 0 {
		return Snapshot{}, false
	}
	h.cursor--
	return h.snapshotAt(h.cursor), true
}

// Redo steps the cursor forward and returns that snapshot.
// Reports false at the end of history, leaving the cursor in place.
func (h *HistoryManager) Redo() (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cursor >= len(h.entries)-1 {
		return Snapshot{}, false
	}
	h.cursor++
	return h.snapshotAt(h.cursor), true
}

// Current returns the snapshot at the cursor.
func (h *HistoryManager) Current() (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cursor < 0 {
		return Snapshot{}, false
	}
	return h.snapshotAt(h.cursor), true
}

// Len returns the number of retained entries.
func (h *HistoryManager) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// CanUndo reports whether an undo step is available.
func (h *HistoryManager) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor > 0
}

// CanRedo reports whether a redo step is available.
func (h *HistoryManager) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor < len(h.entries)-1
}

// snapshotAt returns a defensive copy of the entry at i so callers can
// never mutate retained history.
func (h *HistoryManager) snapshotAt(i int) Snapshot {
	entry := h.entries[i]
	return Snapshot{
		Nodes:     ProjectNodes(entry.Nodes),
		Edges:     cloneEdges(entry.Edges),
		Timestamp: entry.Timestamp,
	}
}
