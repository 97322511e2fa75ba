// Package event provides in-memory pub/sub for canvas lifecycle events.
//
// The engine publishes events as generations, offloads, and snapshots
// progress; a UI layer subscribes to surface user-visible messages and
// refresh views. Delivery is synchronous and in publish order, matching
// the engine's single-logical-thread execution model.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies an event kind.
type Type string

// Canvas lifecycle event types.
const (
	TypeGenerationStarted  Type = "generation.started"
	TypeGenerationComplete Type = "generation.completed"
	TypeGenerationFailed   Type = "generation.failed"
	TypeCreditDenied       Type = "credit.denied"
	TypeOffloadComplete    Type = "offload.completed"
	TypeOffloadFailed      Type = "offload.failed"
	TypeSnapshotSaved      Type = "snapshot.saved"
	TypeSnapshotRestored   Type = "snapshot.restored"
)

// Event is one canvas lifecycle occurrence.
// Events are immutable once published.
type Event struct {
	// ID is the unique event identifier.
	ID string

	// Type is the event kind.
	Type Type

	// CanvasID identifies the canvas the event belongs to.
	CanvasID string

	// NodeID identifies the node the event concerns, if any.
	NodeID string

	// Message is a human-readable description. For failure events this
	// is the user-displayable error message.
	Message string

	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// New creates an event with a generated ID and the current time.
func New(t Type, canvasID, nodeID, message string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		CanvasID:  canvasID,
		NodeID:    nodeID,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}
