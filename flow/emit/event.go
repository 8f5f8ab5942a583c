// Package emit defines the run-reporter surface of the engine: the typed
// RunEvent stream a caller consumes, plus pluggable Emitter backends that
// mirror the stream into logs, memory, or OpenTelemetry spans.
package emit

import "time"

// Type classifies a run event.
type Type string

const (
	// NodeStarted is emitted when a node is dispatched to its executor.
	NodeStarted Type = "node_started"

	// NodeStreamDelta carries a partial-output fragment (e.g. a model
	// token chunk) emitted by a node before its final value.
	NodeStreamDelta Type = "node_stream_delta"

	// NodeCompleted carries a node's final output.
	NodeCompleted Type = "node_completed"

	// NodeFailed carries a node's terminal error, after retries.
	NodeFailed Type = "node_failed"

	// RunCompleted is the terminal event of a successful run and
	// carries the final output.
	RunCompleted Type = "run_completed"

	// RunFailed is the terminal event of a failed run and carries the
	// originating node ID and error detail.
	RunFailed Type = "run_failed"

	// RunCancelled is the terminal event of a cancelled run.
	// Cancellation is expected termination, not a failure.
	RunCancelled Type = "run_cancelled"
)

// Event is one entry of a run's progress stream.
//
// Every event carries the run ID, a per-run monotonic sequence number, and
// a timestamp. Node-scoped events carry NodeID; delta events carry Delta;
// completion events carry Output; failure events carry Err.
type Event struct {
	Type  Type      `json:"type"`
	RunID string    `json:"runId"`
	Seq   int64     `json:"seq"`
	Time  time.Time `json:"time"`

	NodeID string `json:"nodeId,omitempty"`
	Delta  string `json:"delta,omitempty"`
	Output any    `json:"output,omitempty"`
	Err    string `json:"error,omitempty"`
}

// Terminal reports whether the event ends its run. Exactly one terminal
// event closes every run's stream.
func (e Event) Terminal() bool {
	switch e.Type {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}
