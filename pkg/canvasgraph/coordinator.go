package canvasgraph

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/artifactlab/canvasgraph/pkg/canvasgraph/event"
	"github.com/artifactlab/canvasgraph/pkg/canvasgraph/observability"
)

// CreditOp describes a billed operation for the credit gate.
type CreditOp struct {
	Model      string
	Resolution string
}

// CreditDecision is the outcome of a credit check.
type CreditDecision struct {
	Allowed bool
	// Reason is the user-displayable denial message.
	Reason string
}

// CreditGate validates that the active account can afford a requested
// operation before any work starts. It is a pure boundary call with no
// retry: a failure or denial is terminal for that attempt.
type CreditGate struct {
	credits CreditService
	logger  *slog.Logger
}

// NewCreditGate creates a gate over the external credit service.
func NewCreditGate(credits CreditService, logger *slog.Logger) *CreditGate {
	return &CreditGate{credits: credits, logger: logger}
}

// Check asks the credit service whether the operation is affordable.
// Service errors deny the operation rather than propagate.
func (g *CreditGate) Check(ctx context.Context, op CreditOp) CreditDecision {
	allowed, err := g.credits.CheckCredits(ctx, op.Model, op.Resolution)
	if err != nil {
		observability.LogCreditDenied(g.logger, op.Model, op.Resolution, err.Error())
		return CreditDecision{Allowed: false, Reason: "could not verify credits, please try again"}
	}
	if !allowed {
		observability.LogCreditDenied(g.logger, op.Model, op.Resolution, "insufficient balance")
		return CreditDecision{Allowed: false, Reason: "not enough credits for this generation"}
	}
	return CreditDecision{Allowed: true}
}

// requestState tracks one generation request through its lifecycle.
type requestState int

const (
	stateIdle requestState = iota
	stateCreditChecking
	stateSkeletonInserted
	stateInvoking
	stateSucceeded
	stateFailed
)

// String returns the state name.
func (s requestState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateCreditChecking:
		return "credit_checking"
	case stateSkeletonInserted:
		return "skeleton_inserted"
	case stateInvoking:
		return "invoking"
	case stateSucceeded:
		return "succeeded"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// GenerateParams describe one user-triggered generation request.
type GenerateParams struct {
	// SourceNodeID is the node the generation is based on.
	SourceNodeID string
	// Prompt is the text prompt, if any.
	Prompt string
	// Model selects the generation model.
	Model string
	// Resolution selects the output resolution.
	Resolution string
	// Position places the new output node on the canvas. Zero means
	// "next to the source".
	Position Position
	// OnResult is an optional UI callback attached to the result node.
	OnResult func(nodeID string)
}

// CoordinatorOptions configure a GenerationCoordinator.
type CoordinatorOptions struct {
	Logger  *slog.Logger
	Metrics observability.MetricsRecorder
	Spans   observability.SpanManager
	Bus     *event.Bus

	// NewID generates node/edge ids. Defaults to uuid.NewString.
	NewID func() string
}

// GenerationCoordinator orchestrates generation requests for one
// canvas: it gates them on credits, inserts a skeleton node for
// immediate feedback, invokes the external generation call, and writes
// back the result or rolls the skeleton back on failure.
//
// Concurrent requests are independent, even against the same source
// node: multiple distinct outputs from one source is a valid use case,
// so the coordinator performs no deduplication.
type GenerationCoordinator struct {
	canvasID  string
	graph     *GraphStore
	gate      *CreditGate
	gen       GenerationService
	credits   CreditService
	history   *HistoryManager
	offloader *AssetOffloader

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	bus     *event.Bus
	newID   func() string
}

// NewGenerationCoordinator wires a coordinator over the canvas
// collaborators. offloader may be nil when no durable storage exists
// for the session.
func NewGenerationCoordinator(
	canvasID string,
	graph *GraphStore,
	gen GenerationService,
	credits CreditService,
	history *HistoryManager,
	offloader *AssetOffloader,
	opts CoordinatorOptions,
) *GenerationCoordinator {
	if opts.Metrics == nil {
		opts.Metrics = observability.NoopMetrics{}
	}
	if opts.Spans == nil {
		opts.Spans = observability.NoopSpanManager{}
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &GenerationCoordinator{
		canvasID:  canvasID,
		graph:     graph,
		gate:      NewCreditGate(credits, opts.Logger),
		gen:       gen,
		credits:   credits,
		history:   history,
		offloader: offloader,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		spans:     opts.Spans,
		bus:       opts.Bus,
		newID:     opts.NewID,
	}
}

// Generate runs one generation request to a terminal state and returns
// the id of the result node. The call blocks for the duration of the
// external generation call; run it on its own goroutine to keep the
// session interactive.
//
// On failure the skeleton node and its edge are removed and the
// returned *GenerationError carries the user-displayable message.
func (c *GenerationCoordinator) Generate(ctx context.Context, params GenerateParams) (string, error) {
	state := stateIdle
	start := time.Now()

	spanCtx, span := c.spans.StartGenerationSpan(ctx, c.canvasID, params.SourceNodeID, params.Model)
	var runErr error
	defer func() { c.spans.EndSpanWithError(span, runErr) }()

	observability.LogGenerationStart(c.logger, params.SourceNodeID, params.Model, params.Resolution)

	source, ok := c.graph.Node(params.SourceNodeID)
	if !ok {
		runErr = c.fail(params, state, &GenerationError{
			SourceNodeID: params.SourceNodeID,
			Stage:        "validate",
			Reason:       "the source image no longer exists",
			Err:          ErrSourceNotFound,
		}, start)
		return "", runErr
	}

	// Credit gate: denial aborts with zero graph mutation.
	state = stateCreditChecking
	decision := c.gate.Check(spanCtx, CreditOp{Model: params.Model, Resolution: params.Resolution})
	if !decision.Allowed {
		runErr = c.fail(params, state, &GenerationError{
			SourceNodeID: params.SourceNodeID,
			Stage:        "credit_check",
			Reason:       decision.Reason,
			Err:          ErrCreditDenied,
		}, start)
		return "", runErr
	}

	// Normalize the base asset to the canonical inline encoding before
	// the expensive call. URLs pass through untouched.
	baseAsset, err := c.normalizeBase(source)
	if err != nil {
		runErr = c.fail(params, state, &GenerationError{
			SourceNodeID: params.SourceNodeID,
			Stage:        "validate",
			Reason:       "the source image data is malformed",
			Err:          err,
		}, start)
		return "", runErr
	}

	// Capture the consistent pre-attempt state before the skeleton goes
	// in; it is committed to history only once the request succeeds, so
	// a rolled-back attempt leaves no duplicate undo entry.
	preNodes, preEdges := c.graph.Nodes(), c.graph.Edges()
	skeleton, edge := c.insertSkeleton(params)
	state = stateSkeletonInserted
	c.publish(event.TypeGenerationStarted, skeleton.ID, "")

	state = stateInvoking
	result, err := c.gen.Generate(spanCtx, GenerationRequest{
		Prompt:     params.Prompt,
		BaseAsset:  baseAsset,
		Model:      params.Model,
		Resolution: params.Resolution,
	})
	if err != nil {
		// Roll back: no error node is left behind, and no history entry
		// reflects the skeleton-only state.
		c.graph.RemoveNode(skeleton.ID)
		c.graph.RemoveEdge(edge.ID)
		runErr = c.fail(params, state, &GenerationError{
			SourceNodeID: params.SourceNodeID,
			Stage:        "invoke",
			Reason:       err.Error(),
			Err:          err,
		}, start)
		return "", runErr
	}

	payload, isURL, err := c.classifyResult(result)
	if err != nil {
		c.graph.RemoveNode(skeleton.ID)
		c.graph.RemoveEdge(edge.ID)
		runErr = c.fail(params, state, &GenerationError{
			SourceNodeID: params.SourceNodeID,
			Stage:        "invoke",
			Reason:       "the model returned an unusable image",
			Err:          err,
		}, start)
		return "", runErr
	}

	loading := false
	patch := NodePatch{IsLoading: &loading}
	if isURL {
		patch.ResultURL = &payload
	} else {
		patch.ResultPayload = &payload
	}
	c.graph.PatchNode(skeleton.ID, patch)
	state = stateSucceeded

	c.history.Record(preNodes, preEdges)
	c.history.Record(c.graph.Nodes(), c.graph.Edges())
	c.metrics.RecordHistoryDepth(ctx, c.history.Len())

	offloaded := false
	if !isURL && c.offloader != nil && c.canvasID != "" {
		// One-shot results carry no re-trigger risk; upload immediately.
		c.offloader.ScheduleUpload(skeleton.ID, payload, c.canvasID,
			UploadImmediate, UploadOptions{SkipCompression: true}, nil)
		offloaded = true
	}

	duration := time.Since(start)
	c.metrics.RecordGeneration(ctx, params.Model, duration, nil)
	observability.LogGenerationComplete(c.logger, skeleton.ID, float64(duration.Milliseconds()), offloaded)
	c.publish(event.TypeGenerationComplete, skeleton.ID, "")

	if params.OnResult != nil {
		params.OnResult(skeleton.ID)
	}

	// Best-effort account re-sync after a spend; failures are swallowed.
	if err := c.credits.RefreshStatus(ctx); err != nil {
		observability.LogCreditRefreshError(c.logger, err)
	}

	return skeleton.ID, nil
}

// insertSkeleton adds the placeholder output node and its connecting
// edge, returning both.
func (c *GenerationCoordinator) insertSkeleton(params GenerateParams) (Node, Edge) {
	pos := params.Position
	if pos == (Position{}) {
		if source, ok := c.graph.Node(params.SourceNodeID); ok {
			pos = Position{X: source.Position.X + 320, Y: source.Position.Y}
		}
	}

	skeleton := Node{
		ID:       c.newID(),
		Kind:     KindOutput,
		Position: pos,
		Data: NodeData{
			Prompt:       params.Prompt,
			Model:        params.Model,
			Resolution:   params.Resolution,
			IsLoading:    true,
			SourceNodeID: params.SourceNodeID,
			OnResult:     params.OnResult,
		},
	}
	edge := Edge{
		ID:     c.newID(),
		Source: params.SourceNodeID,
		Target: skeleton.ID,
	}

	c.graph.AddNode(skeleton)
	c.graph.AddEdge(edge)
	return skeleton, edge
}

// normalizeBase extracts the source node's asset in a form the
// generation service accepts: a URL as-is, or the canonical inline
// encoding. A source with no asset yields an empty base (text-only
// generation).
func (c *GenerationCoordinator) normalizeBase(source Node) (string, error) {
	asset := source.Data.ResultURL
	if asset == "" {
		asset = source.Data.ResultPayload
	}
	if asset == "" {
		return "", nil
	}
	if ClassifyAsset(asset) == AssetURL {
		return asset, nil
	}
	return NormalizeInline(asset)
}

// classifyResult picks the payload out of a generation result and
// reports whether it is a directly-usable URL.
func (c *GenerationCoordinator) classifyResult(result GenerationResult) (payload string, isURL bool, err error) {
	if result.AssetURL != "" {
		return result.AssetURL, true, nil
	}
	switch ClassifyAsset(result.AssetInline) {
	case AssetURL:
		return result.AssetInline, true, nil
	case AssetDataURI, AssetInline:
		normalized, err := NormalizeInline(result.AssetInline)
		if err != nil {
			return "", false, err
		}
		return normalized, false, nil
	default:
		return "", false, ErrMalformedAsset
	}
}

// fail records a terminal failure: metrics, log, event, and the error
// itself. Graph rollback has already happened at the call site.
func (c *GenerationCoordinator) fail(params GenerateParams, state requestState, genErr *GenerationError, start time.Time) error {
	duration := time.Since(start)
	c.metrics.RecordGeneration(context.Background(), params.Model, duration, genErr)
	observability.LogGenerationError(c.logger, params.SourceNodeID, genErr, float64(duration.Milliseconds()))
	if c.logger != nil {
		c.logger.Debug("generation reached failed state",
			slog.String("from_state", state.String()),
			slog.String("stage", genErr.Stage),
		)
	}

	t := event.TypeGenerationFailed
	if genErr.Stage == "credit_check" {
		t = event.TypeCreditDenied
	}
	c.publish(t, params.SourceNodeID, genErr.Message())
	return genErr
}

// publish emits a lifecycle event if a bus is attached.
func (c *GenerationCoordinator) publish(t event.Type, nodeID, message string) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(event.New(t, c.canvasID, nodeID, message))
}
