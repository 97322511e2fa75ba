package canvasgraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerationErrorWrapping(t *testing.T) {
	err := &GenerationError{
		SourceNodeID: "src",
		Stage:        "credit_check",
		Reason:       "not enough credits for this generation",
		Err:          ErrCreditDenied,
	}

	assert.True(t, errors.Is(err, ErrCreditDenied))
	assert.Equal(t, "not enough credits for this generation", err.Message())
	assert.Contains(t, err.Error(), "src")
	assert.Contains(t, err.Error(), "credit_check")

	var genErr *GenerationError
	assert.True(t, errors.As(error(err), &genErr))
}

func TestGenerationErrorMessageFallsBackToCause(t *testing.T) {
	err := &GenerationError{SourceNodeID: "src", Stage: "invoke", Err: errors.New("upstream timeout")}
	assert.Equal(t, "upstream timeout", err.Message())
}

func TestOffloadErrorWrapping(t *testing.T) {
	cause := errors.New("connection reset")
	err := &OffloadError{NodeID: "n1", Err: cause}

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "n1")
}

func TestPersistErrorWrapping(t *testing.T) {
	err := &PersistError{CanvasID: "c1", Op: "save", Err: ErrSnapshotTooLarge}

	assert.True(t, errors.Is(err, ErrSnapshotTooLarge))
	assert.Contains(t, err.Error(), "save")
	assert.Contains(t, err.Error(), "c1")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Severity
	}{
		{"nil", nil, SeveritySilent},
		{"stale snapshot", ErrSnapshotStale, SeveritySilent},
		{"corrupted snapshot", ErrSnapshotCorrupted, SeveritySilent},
		{"wrapped corruption", &PersistError{Op: "load", Err: ErrSnapshotCorrupted}, SeveritySilent},
		{"offload failure", &OffloadError{NodeID: "n", Err: errors.New("x")}, SeverityLogged},
		{"persist failure", &PersistError{Op: "save", Err: errors.New("x")}, SeverityLogged},
		{"oversize snapshot", ErrSnapshotTooLarge, SeverityLogged},
		{"credit denial", &GenerationError{Stage: "credit_check", Err: ErrCreditDenied}, SeverityUserFacing},
		{"malformed input", ErrMalformedAsset, SeverityUserFacing},
		{"unknown", errors.New("mystery"), SeverityUserFacing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "user_facing", SeverityUserFacing.String())
	assert.Equal(t, "logged", SeverityLogged.String())
	assert.Equal(t, "silent", SeveritySilent.String())
	assert.Equal(t, "unknown", Severity(99).String())
}
