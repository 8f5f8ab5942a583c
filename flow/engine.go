package flow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tessellate-ai/floweave/flow/emit"
	"github.com/tessellate-ai/floweave/flow/model"
	"github.com/tessellate-ai/floweave/flow/retrieval"
	"github.com/tessellate-ai/floweave/flow/tool"
)

// Engine executes workflow graphs. An Engine is immutable after New and
// safe for concurrent runs; all per-run state lives in the run's
// ExecutionContext.
type Engine struct {
	concurrency int
	nodeTimeout time.Duration
	runDeadline time.Duration
	retry       RetryPolicy

	chat       model.ChatModel
	retriever  retrieval.Retriever
	httpClient *http.Client
	tools      map[string]tool.Tool

	emitter emit.Emitter
	metrics *Metrics
	usage   *UsageTracker

	executors map[NodeType]Executor
}

// New creates an Engine with the given options. Defaults: concurrency
// limit 4, node timeout 30s, no run deadline, DefaultRetryPolicy, no
// capabilities configured.
func New(opts ...Option) *Engine {
	e := &Engine{
		concurrency: 4,
		nodeTimeout: 30 * time.Second,
		retry:       DefaultRetryPolicy(),
		tools:       make(map[string]tool.Tool),
		executors:   defaultExecutors(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate checks a graph for structural well-formedness without
// executing it. See the package-level Validate for the check list.
func (e *Engine) Validate(g *Graph) error {
	return Validate(g)
}

// Execute validates the graph and starts a run, returning its event
// stream. The channel carries every progress event in order and is
// closed after exactly one terminal event (run_completed, run_failed, or
// run_cancelled).
//
// A validation failure returns the *GraphError directly and no run
// starts. Node failures during execution surface on the stream, not as
// an Execute error.
//
// Cancel the run through ctx; in-flight nodes see the cancellation and
// no further nodes start.
func (e *Engine) Execute(ctx context.Context, g *Graph, input any) (<-chan emit.Event, error) {
	an, err := analyze(g)
	if err != nil {
		return nil, err
	}

	events := make(chan emit.Event, 64)
	r := &run{
		engine: e,
		graph:  g,
		an:     an,
		ec:     newExecutionContext(input),
		events: events,
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if e.runDeadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.runDeadline)
	}

	go func() {
		if cancel != nil {
			defer cancel()
		}
		defer close(events)
		// Mirror context cancellation onto the run's flag so executors
		// doing non-context work can poll RunHandle.Cancelled.
		stop := context.AfterFunc(runCtx, r.ec.Cancel)
		defer stop()
		r.loop(runCtx)
	}()

	return events, nil
}

// RunResult is the drained outcome of a run.
type RunResult struct {
	RunID  string
	Status RunStatus

	// Output is the resolved End node's value on a completed run.
	Output any

	// Trace is the full ordered event stream.
	Trace []emit.Event

	// Err is the terminal error on a failed or cancelled run.
	Err error
}

// Run executes the graph and blocks until the run reaches a terminal
// state, collecting the event stream into a RunResult.
//
// The returned error is non-nil when validation fails, when the run
// fails (the node error), or when it is cancelled (context.Canceled).
// The RunResult is returned alongside the error in the latter two cases
// so callers can still inspect the trace.
func (e *Engine) Run(ctx context.Context, g *Graph, input any) (*RunResult, error) {
	events, err := e.Execute(ctx, g, input)
	if err != nil {
		return nil, err
	}

	result := &RunResult{Status: RunRunning}
	for ev := range events {
		result.Trace = append(result.Trace, ev)
		result.RunID = ev.RunID

		switch ev.Type {
		case emit.RunCompleted:
			result.Status = RunCompleted
			result.Output = ev.Output
		case emit.RunFailed:
			result.Status = RunFailed
			result.Err = fmt.Errorf("run failed at node %q: %s", ev.NodeID, ev.Err)
			if ev.NodeID == "" {
				result.Err = errors.New(ev.Err)
			}
		case emit.RunCancelled:
			result.Status = RunCancelled
			result.Err = context.Canceled
		}
	}

	return result, result.Err
}
