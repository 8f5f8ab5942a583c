package flow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// executeWithTimeout runs one executor attempt under the node timeout.
//
// A timeout surfaces as a transient NODE_TIMEOUT error so the retry
// policy applies; cancellation of the parent context passes through
// untouched so the scheduler can distinguish it from a slow node.
func executeWithTimeout(ctx context.Context, exec Executor, in Inputs, h *RunHandle, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		return exec.Execute(ctx, in, h)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.Execute(attemptCtx, in, h)
	if err == nil {
		return out, nil
	}

	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, transientErr("NODE_TIMEOUT",
			fmt.Sprintf("node exceeded timeout of %v", timeout), err)
	}
	return nil, err
}
