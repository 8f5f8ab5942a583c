// Package flow is the Floweave workflow execution engine: it interprets
// a stored graph of typed nodes, resolves execution order under
// branching and iteration, dispatches node work to executors, propagates
// data along edges, and streams progress events to the caller.
//
// A workflow is a Graph of Nodes (start, end, model, retrieval, agent,
// http_request, condition, loop) connected by directed Edges. Build one
// with NewGraph/AddNode/AddEdge or decode a canvas definition with
// ParseDefinition, then execute it:
//
//	engine := flow.New(
//		flow.WithChatModel(chat),
//		flow.WithRetriever(index),
//	)
//	events, err := engine.Execute(ctx, g, map[string]any{"question": "..."})
//	if err != nil { ... } // structural validation failed
//	for ev := range events {
//		// node_started, node_stream_delta, node_completed, ...
//	}
//
// Or block for the outcome:
//
//	result, err := engine.Run(ctx, g, input)
//
// Execution is batched and deterministic in structure: the scheduler
// repeatedly computes the set of ready nodes, dispatches them in
// parallel under the concurrency limit, and merges results in edge
// declaration order. Condition nodes kill their untaken branch; Loop
// nodes re-execute their body region up to a bounded iteration count.
// Transient failures of external-facing nodes retry with exponential
// backoff; everything else fails the run with the originating node
// attached.
//
// Node config values reference earlier outputs with {{ref}} templates:
// {{input}} for the run payload, {{nodeID}} for a node's whole output,
// {{nodeID.path.to.field}} for a path into it.
package flow
