package flow

import (
	"errors"
	"fmt"
)

// GraphErrorCode classifies structural validation failures. Structural
// errors are always pre-execution and always fatal to the run attempt: a
// graph that fails validation never executes a single node.
type GraphErrorCode string

const (
	// CodeMissingStart: zero or more than one Start node.
	CodeMissingStart GraphErrorCode = "MISSING_START"

	// CodeUnreachableEnd: no End node is reachable from Start.
	CodeUnreachableEnd GraphErrorCode = "UNREACHABLE_END"

	// CodeDanglingEdge: an edge references a nonexistent node ID.
	CodeDanglingEdge GraphErrorCode = "DANGLING_EDGE"

	// CodeUnresolvedBranch: a Condition node's outgoing edges do not
	// cover both the "true" and "false" handles.
	CodeUnresolvedBranch GraphErrorCode = "UNRESOLVED_BRANCH"

	// CodeCyclicWithoutLoop: a cycle exists that does not pass through
	// exactly one Loop node. Cycles are legal only as Loop bodies.
	CodeCyclicWithoutLoop GraphErrorCode = "CYCLIC_WITHOUT_LOOP"

	// CodeInvalidConfig: a node's config does not satisfy its type's
	// schema, or a Loop node's region is not well-formed.
	CodeInvalidConfig GraphErrorCode = "INVALID_CONFIG"
)

// GraphError reports a structural problem found during validation.
type GraphError struct {
	Code GraphErrorCode

	// NodeID or EdgeID locates the offending element when applicable.
	NodeID string
	EdgeID string

	Message string
}

func (e *GraphError) Error() string {
	where := ""
	switch {
	case e.NodeID != "":
		where = " node=" + e.NodeID
	case e.EdgeID != "":
		where = " edge=" + e.EdgeID
	}
	return fmt.Sprintf("%s:%s %s", e.Code, where, e.Message)
}

// graphErr is shorthand for building validation errors.
func graphErr(code GraphErrorCode, nodeID, msg string) *GraphError {
	return &GraphError{Code: code, NodeID: nodeID, Message: msg}
}

// NodeError reports a failure inside a node executor.
//
// Transient errors (network timeouts, rate limits) are retried by the
// scheduler up to the run's retry policy bound before escalating to a
// fatal failure. Deterministic failures (invalid config, a bad operand in
// a Condition) are fatal immediately and never retried.
type NodeError struct {
	NodeID  string
	Code    string
	Message string

	// Transient marks the error as retryable.
	Transient bool

	// Cause is the underlying error, if any.
	Cause error
}

func (e *NodeError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.NodeID != "" {
		return fmt.Sprintf("node %s: %s (%s)", e.NodeID, msg, e.Code)
	}
	return fmt.Sprintf("%s (%s)", msg, e.Code)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *NodeError) Unwrap() error { return e.Cause }

// Retryable reports whether the scheduler may retry the failed node.
func (e *NodeError) Retryable() bool { return e.Transient }

// transientErr builds a retryable NodeError.
func transientErr(code, msg string, cause error) *NodeError {
	return &NodeError{Code: code, Message: msg, Transient: true, Cause: cause}
}

// fatalErr builds a non-retryable NodeError.
func fatalErr(code, msg string, cause error) *NodeError {
	return &NodeError{Code: code, Message: msg, Cause: cause}
}

// retryable is implemented by errors that know whether a retry can help.
// NodeError implements it; capability packages may too.
type retryable interface {
	Retryable() bool
}

// IsRetryable reports whether err (or anything it wraps) declares itself
// retryable. Context cancellation and deadline errors are never retryable
// at this level; the scheduler handles them as cancellation or timeout.
func IsRetryable(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// RunStatus is the lifecycle state of a single run.
// Pending → Running → {Completed, Failed, Cancelled}; terminal states are
// final.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// ErrNoProgress is returned when the scheduler finds no runnable node
// before any End node resolves. This indicates a graph whose live paths
// dead-end, which validation cannot always rule out (e.g. both Condition
// branches feeding disjoint subtrees with no End).
var ErrNoProgress = errors.New("no runnable nodes before reaching an End node")
