package flow

import (
	"context"
	"encoding/json"
)

// Inputs carries the data available to a node when it executes: the
// primary value flowing along its activating edge, plus the outputs of
// every satisfied upstream node keyed by node ID.
type Inputs struct {
	// Node is the graph node being executed.
	Node *Node

	// Primary is the output of the activating edge's source node. For
	// the Start node it is the run input.
	Primary any

	// Values holds the outputs of all satisfied predecessors.
	Values map[string]any

	ec *ExecutionContext
}

// Resolve renders {{ref}} placeholders in v against the run's bindings.
// A string that is a single whole placeholder keeps the referenced
// value's native type.
func (in Inputs) Resolve(v any) (any, error) {
	return resolveValue(v, in.ec)
}

// ResolveString renders a template that must produce a string.
func (in Inputs) ResolveString(s string) (string, error) {
	return resolveString(s, in.ec)
}

// Executor runs one node type. Implementations receive the node's
// resolved inputs and a RunHandle for capabilities and progress
// reporting, and return the node's output value.
//
// Output values must be JSON-shaped (maps keyed by string, slices,
// strings, numbers, bools) so downstream {{ref.path}} templates can walk
// them. jsonShape converts arbitrary structs.
//
// Errors should be *NodeError (or wrap a type with a Retryable method)
// so the scheduler can tell transient failures from fatal ones.
type Executor interface {
	Execute(ctx context.Context, in Inputs, h *RunHandle) (any, error)
}

// defaultExecutors builds the registry for the built-in node-type
// vocabulary. Loop nodes are absent: iteration control lives in the
// scheduler, not in an executor.
func defaultExecutors() map[NodeType]Executor {
	return map[NodeType]Executor{
		NodeStart:       &startExecutor{},
		NodeEnd:         &endExecutor{},
		NodeModel:       &modelExecutor{},
		NodeRetrieval:   &retrievalExecutor{},
		NodeAgent:       &agentExecutor{},
		NodeHTTPRequest: &httpExecutor{},
		NodeCondition:   &conditionExecutor{},
	}
}

// jsonShape round-trips a value through JSON so that executor outputs
// built from structs become the map/slice shape template paths can walk.
func jsonShape(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// wrapNodeErr converts a capability failure into a NodeError, keeping
// retryability declared by the underlying error.
func wrapNodeErr(code, msg string, err error) *NodeError {
	if IsRetryable(err) {
		return transientErr(code, msg, err)
	}
	return fatalErr(code, msg, err)
}
