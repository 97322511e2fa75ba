// Package canvasgraph implements the node-graph generation and
// persistence engine behind an infinite-canvas image editor.
//
// Users compose a directed graph of visual nodes (image inputs,
// AI-generation operators, merges, effects) and trigger asynchronous
// generation jobs per node. The engine:
//
//   - inserts placeholder "skeleton" nodes so in-flight work is visible
//     immediately, and rolls them back on failure
//   - gates billed generation calls behind a metered credit check
//   - migrates large inline image payloads to durable remote URLs
//     without blocking edits, debouncing rapid re-triggers
//   - keeps a bounded undo/redo history of deep-cloned graph snapshots
//   - persists a size-capped snapshot of the graph to local storage
//     that survives reloads
//
// The Canvas type ties these pieces together for one editing session:
//
//	canvas := canvasgraph.NewCanvas("my-canvas", canvasgraph.Services{
//	    Generation: genClient,
//	    Credits:    creditClient,
//	    Storage:    assetClient,
//	    Snapshots:  kv,
//	})
//	nodeID, err := canvas.Generate(ctx, canvasgraph.GenerateParams{
//	    SourceNodeID: inputID,
//	    Prompt:       "a lighthouse at dusk",
//	    Model:        "sd-xl",
//	    Resolution:   "1024x1024",
//	})
//
// External collaborators (the generation model, the credit service,
// asset storage, local durable storage) are interfaces; see services.go.
package canvasgraph
