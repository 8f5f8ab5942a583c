package flow

import (
	"crypto/rand"
	"encoding/hex"
	"sync/atomic"
)

// ExecutionContext is the mutable per-run state: variable bindings keyed
// by node ID, the visited set, loop iteration counters, and the
// cancellation flag.
//
// One context is created per run and discarded when the run reaches a
// terminal state. All mutation happens on the scheduler goroutine between
// dispatch batches — executor goroutines report results back instead of
// writing here — so no locking is needed apart from the cancellation flag,
// which the caller may flip from any goroutine.
type ExecutionContext struct {
	runID string
	input any

	// variables holds the output of each completed node; order records
	// completion order.
	variables map[string]any
	order     []string

	// visited marks nodes already executed in the current run. Loop
	// bodies clear their members' entries at each iteration.
	visited map[string]bool

	// loopCounters tracks the current iteration count per Loop node.
	loopCounters map[string]int

	// loopResults accumulates each iteration's result per Loop node, so
	// the loop's final aggregate can expose every iteration even though
	// body variables are shadowed by later iterations.
	loopResults map[string][]any

	cancelled atomic.Bool
}

func newExecutionContext(input any) *ExecutionContext {
	return &ExecutionContext{
		runID:        newRunID(),
		input:        input,
		variables:    make(map[string]any),
		visited:      make(map[string]bool),
		loopCounters: make(map[string]int),
		loopResults:  make(map[string][]any),
	}
}

// newRunID generates a short random run identifier.
func newRunID() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return "run-" + hex.EncodeToString(b)
}

// RunID returns the run's unique identifier.
func (ec *ExecutionContext) RunID() string { return ec.runID }

// Input returns the run input payload.
func (ec *ExecutionContext) Input() any { return ec.input }

// Cancel requests cooperative cancellation. The scheduler observes the
// flag before dispatching each batch; in-flight executors observe it
// through their RunHandle.
func (ec *ExecutionContext) Cancel() { ec.cancelled.Store(true) }

// Cancelled reports whether cancellation has been requested.
func (ec *ExecutionContext) Cancelled() bool { return ec.cancelled.Load() }

// Variable returns the output of a completed node.
func (ec *ExecutionContext) Variable(nodeID string) (any, bool) {
	v, ok := ec.variables[nodeID]
	return v, ok
}

// Variables returns a copy of all bindings.
func (ec *ExecutionContext) Variables() map[string]any {
	out := make(map[string]any, len(ec.variables))
	for k, v := range ec.variables {
		out[k] = v
	}
	return out
}

// CompletionOrder returns node IDs in the order their values resolved.
// A node re-executed inside a loop body appears once per completion.
func (ec *ExecutionContext) CompletionOrder() []string {
	out := make([]string, len(ec.order))
	copy(out, ec.order)
	return out
}

func (ec *ExecutionContext) setResult(nodeID string, v any) {
	ec.variables[nodeID] = v
	ec.order = append(ec.order, nodeID)
	ec.visited[nodeID] = true
}

func (ec *ExecutionContext) isVisited(nodeID string) bool { return ec.visited[nodeID] }

// resetBody clears the visited marks of a loop body so the region
// re-executes on the next iteration. Prior bindings stay readable until
// the re-executed node shadows them.
func (ec *ExecutionContext) resetBody(body map[string]bool) {
	for id := range body {
		delete(ec.visited, id)
	}
}
