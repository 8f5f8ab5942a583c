package flow

import "fmt"

// Loop nodes have no executor: the scheduler advances them synchronously
// between dispatch batches. This file holds the continuation decision.
//
// Config:
//   - max_iterations: positive integer, required; the hard cap
//   - collection: optional template resolving to a list to iterate over
//   - while: optional condition config re-evaluated before each iteration
//
// With a collection, the loop visits each element (capped); with a while
// predicate, it iterates until the predicate is false (capped); with
// neither, it runs exactly max_iterations times. While the loop is
// active its node ID is bound to {"item": ..., "index": N}; after exit it
// is bound to {"iterations": [...], "count": N}.

// loopDecision is the outcome of asking a Loop node whether to run
// another iteration.
type loopDecision struct {
	// cont reports whether the body should run again.
	cont bool

	// binding is the {item, index} value bound under the loop's ID for
	// the upcoming iteration. Only meaningful when cont is true.
	binding map[string]any
}

// decideLoop evaluates a Loop node's continuation for the given
// zero-based iteration.
func decideLoop(n *Node, ec *ExecutionContext, iteration int) (loopDecision, error) {
	maxIterations, _ := n.Config.Int("max_iterations")
	if iteration >= maxIterations {
		return loopDecision{}, nil
	}

	binding := map[string]any{"index": iteration}

	if raw, present := n.Config["collection"]; present {
		resolved, err := resolveValue(raw, ec)
		if err != nil {
			return loopDecision{}, fatalErr("TEMPLATE", "resolve loop collection", err)
		}
		items, ok := resolved.([]any)
		if !ok {
			return loopDecision{}, fatalErr("LOOP_EVAL",
				fmt.Sprintf("loop collection must resolve to a list, got %T", resolved), nil)
		}
		if iteration >= len(items) {
			return loopDecision{}, nil
		}
		binding["item"] = items[iteration]
	}

	if raw, present := n.Config["while"]; present {
		cfg, ok := raw.(map[string]any)
		if !ok {
			return loopDecision{}, fatalErr("INVALID_CONFIG", "while must be a condition config", nil)
		}
		// The predicate must see this iteration's binding, so bind
		// before evaluating; the caller rebinds on continue anyway.
		ec.variables[n.ID] = binding
		cont, err := evalCondition(Config(cfg), ec)
		if err != nil {
			return loopDecision{}, err
		}
		if !cont {
			return loopDecision{}, nil
		}
	}

	return loopDecision{cont: true, binding: binding}, nil
}
