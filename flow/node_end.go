package flow

import "context"

// endExecutor terminates a run. Its output, the value flowing along its
// activating edge, becomes the run's final result. An optional "output"
// config template overrides that with an explicitly shaped value.
type endExecutor struct{}

func (e *endExecutor) Execute(ctx context.Context, in Inputs, h *RunHandle) (any, error) {
	if v, present := in.Node.Config["output"]; present {
		resolved, err := in.Resolve(v)
		if err != nil {
			return nil, fatalErr("TEMPLATE", "resolve output template", err)
		}
		return resolved, nil
	}
	return in.Primary, nil
}
