package flow

import "context"

// startExecutor passes the run input through unchanged. Every run begins
// here; downstream nodes reference the payload as {{input}} or by the
// start node's ID.
type startExecutor struct{}

func (s *startExecutor) Execute(ctx context.Context, in Inputs, h *RunHandle) (any, error) {
	return in.ec.Input(), nil
}
