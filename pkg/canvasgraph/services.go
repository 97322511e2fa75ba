package canvasgraph

import (
	"context"
)

// GenerationRequest is the normalized input to the generation service.
type GenerationRequest struct {
	// Prompt is the text prompt, if any.
	Prompt string
	// BaseAsset is the canonical inline encoding of the source image,
	// or a URL the service can fetch. Empty for text-only generation.
	BaseAsset string
	// Model selects the generation model.
	Model string
	// Resolution selects the output resolution (e.g. "1024x1024").
	Resolution string
}

// GenerationResult is what the generation service returns. Exactly one
// of AssetURL/AssetInline is expected to be populated.
type GenerationResult struct {
	// AssetURL is a directly-renderable URL for the generated asset.
	AssetURL string
	// AssetInline is an inline-encoded asset payload.
	AssetInline string
}

// GenerationService is the external AI generation boundary. A rejection
// carries a user-displayable message. The service owns its own
// timeout/retry policy; the engine imposes none.
type GenerationService interface {
	Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error)
}

// CreditService is the external account/credit boundary.
type CreditService interface {
	// CheckCredits reports whether the account can afford the operation.
	CheckCredits(ctx context.Context, model, resolution string) (bool, error)

	// RefreshStatus re-syncs account state after a spend. Best-effort:
	// callers swallow failures.
	RefreshStatus(ctx context.Context) error
}

// UploadOptions tune a single asset upload.
type UploadOptions struct {
	// SkipCompression uploads the payload as-is, for assets that are
	// already compressed (e.g. one-shot generation results).
	SkipCompression bool
}

// AssetStorage is the external durable asset storage boundary.
// UploadAsset is assumed idempotent, so a manual retry is safe.
type AssetStorage interface {
	UploadAsset(ctx context.Context, inlinePayload, canvasID, nodeID string, opts UploadOptions) (url string, err error)
}

// EffectFunc applies an opaque pixel effect to an asset and returns the
// transformed asset in the same encoding. The engine treats it as a
// black box.
type EffectFunc func(asset string, settings map[string]float64) (string, error)
