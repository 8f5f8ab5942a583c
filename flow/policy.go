package flow

import (
	"errors"
	"math/rand"
	"time"
)

// RetryPolicy bounds automatic retries of transient node failures.
//
// Only node types that talk to external systems (model, retrieval,
// http_request) are retried, and only for errors that declare themselves
// retryable. Deterministic node types (condition, loop) never retry: the
// same inputs would fail the same way.
type RetryPolicy struct {
	// MaxAttempts is the total number of execution attempts, including
	// the first. Must be >= 1; 1 means no retries.
	MaxAttempts int

	// BaseDelay seeds the exponential backoff between attempts:
	// min(BaseDelay * 2^retry, MaxDelay) + jitter(0, BaseDelay).
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
}

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// DefaultRetryPolicy returns the engine default: three attempts with
// 200ms base delay capped at 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// Validate checks the policy's constraints.
func (rp RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// backoff computes the delay before retry number `retry` (zero-based)
// using exponential backoff with jitter. Jitter spreads concurrent
// retries so parallel branches hitting the same rate limit don't
// synchronize.
func (rp RetryPolicy) backoff(retry int) time.Duration {
	base := rp.BaseDelay
	if base <= 0 {
		return 0
	}

	delay := base * (1 << retry)
	if rp.MaxDelay > 0 && delay > rp.MaxDelay {
		delay = rp.MaxDelay
	}

	// Jitter timing is not security-sensitive.
	jitter := time.Duration(rand.Int63n(int64(base))) // #nosec G404
	return delay + jitter
}

// retryableNodeTypes are the node types whose transient failures the
// scheduler retries.
var retryableNodeTypes = map[NodeType]bool{
	NodeModel:       true,
	NodeRetrieval:   true,
	NodeHTTPRequest: true,
}
