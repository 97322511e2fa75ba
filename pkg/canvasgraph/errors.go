package canvasgraph

import (
	"errors"
	"fmt"
)

// Sentinel errors for generation requests.
var (
	// ErrCreditDenied indicates the credit gate refused the operation.
	ErrCreditDenied = errors.New("insufficient credits")

	// ErrMalformedAsset indicates an input payload failed inline-encoding
	// validation before the generation call.
	ErrMalformedAsset = errors.New("malformed asset encoding")

	// ErrSourceNotFound indicates the requested source node doesn't exist.
	ErrSourceNotFound = errors.New("source node not found")
)

// Sentinel errors for persistence.
var (
	// ErrSnapshotTooLarge indicates a serialized snapshot exceeded the
	// hard size cap even after compression.
	ErrSnapshotTooLarge = errors.New("snapshot exceeds size cap")

	// ErrSnapshotStale indicates a stored snapshot aged past the maximum.
	ErrSnapshotStale = errors.New("stored snapshot is stale")

	// ErrSnapshotCorrupted indicates a stored snapshot failed structural
	// validation.
	ErrSnapshotCorrupted = errors.New("stored snapshot is corrupted")
)

// GenerationError wraps a failure of one generation request with the
// stage it failed at. These errors are user-visible; Message() returns
// the displayable text.
type GenerationError struct {
	// SourceNodeID is the node the generation was requested from.
	SourceNodeID string
	// Stage is where the request failed ("credit_check", "validate", "invoke").
	Stage string
	// Reason is the user-displayable message, if the boundary provided one.
	Reason string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation from %s: %s: %v", e.SourceNodeID, e.Stage, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Message returns the text to surface to the user.
func (e *GenerationError) Message() string {
	if e.Reason != "" {
		return e.Reason
	}
	return e.Err.Error()
}

// OffloadError wraps an asset upload failure. The inline payload is
// retained as the durable fallback, so these are logged, not surfaced.
type OffloadError struct {
	// NodeID is the node whose payload failed to upload.
	NodeID string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *OffloadError) Error() string {
	return fmt.Sprintf("offload %s: %v", e.NodeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OffloadError) Unwrap() error {
	return e.Err
}

// PersistError wraps a snapshot save/load failure. Persistence is
// best-effort: these are logged and the in-memory graph stays
// authoritative for the session.
type PersistError struct {
	// CanvasID identifies the canvas whose snapshot failed.
	CanvasID string
	// Op is the operation that failed ("save", "load", "serialize").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s for canvas %s: %v", e.Op, e.CanvasID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *PersistError) Unwrap() error {
	return e.Err
}

// Severity classifies how a failure propagates to the user.
type Severity int

const (
	// SeverityUserFacing failures abort the user's action and surface a
	// message: credit denial, input validation, generation failure.
	SeverityUserFacing Severity = iota

	// SeverityLogged failures degrade gracefully and are logged only:
	// offload and persistence problems where a fallback exists.
	SeverityLogged

	// SeveritySilent failures are discarded entirely: a stale or
	// corrupted stored snapshot is just "nothing to restore".
	SeveritySilent
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityUserFacing:
		return "user_facing"
	case SeverityLogged:
		return "logged"
	case SeveritySilent:
		return "silent"
	default:
		return "unknown"
	}
}

// Classify maps an engine error onto its propagation severity.
// Unknown errors default to user-facing so nothing fails invisibly.
func Classify(err error) Severity {
	switch {
	case err == nil:
		return SeveritySilent
	case errors.Is(err, ErrSnapshotStale), errors.Is(err, ErrSnapshotCorrupted):
		return SeveritySilent
	default:
	}

	var offloadErr *OffloadError
	if errors.As(err, &offloadErr) {
		return SeverityLogged
	}
	var persistErr *PersistError
	if errors.As(err, &persistErr) {
		return SeverityLogged
	}
	if errors.Is(err, ErrSnapshotTooLarge) {
		return SeverityLogged
	}
	return SeverityUserFacing
}
