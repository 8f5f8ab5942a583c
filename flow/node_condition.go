package flow

import (
	"context"
	"fmt"
	"strings"
)

// conditionExecutor evaluates a comparison and picks a branch.
//
// Config:
//   - left: template operand, required
//   - operator: ==, !=, >, >=, <, <=, contains, empty, not_empty
//   - right: template operand (absent for empty/not_empty)
//
// Output: {"branch": "true"} or {"branch": "false"}. The scheduler arms
// the matching outgoing handle and marks the other dead.
//
// Evaluation is pure and synchronous; a bad operand (non-numeric value
// under a numeric operator) is a fatal error, never retried.
type conditionExecutor struct{}

func (c *conditionExecutor) Execute(ctx context.Context, in Inputs, h *RunHandle) (any, error) {
	result, err := evalCondition(in.Node.Config, in.ec)
	if err != nil {
		return nil, err
	}
	branch := HandleFalse
	if result {
		branch = HandleTrue
	}
	return map[string]any{"branch": branch}, nil
}

// evalCondition resolves the operands and applies the operator. Shared
// with Loop "while" predicates.
func evalCondition(cfg Config, ec *ExecutionContext) (bool, error) {
	op, _ := cfg.String("operator")

	left, err := resolveValue(cfg["left"], ec)
	if err != nil {
		return false, fatalErr("TEMPLATE", "resolve left operand", err)
	}

	switch op {
	case "empty":
		return isEmpty(left), nil
	case "not_empty":
		return !isEmpty(left), nil
	}

	right, err := resolveValue(cfg["right"], ec)
	if err != nil {
		return false, fatalErr("TEMPLATE", "resolve right operand", err)
	}

	result, err := compare(left, op, right)
	if err != nil {
		return false, fatalErr("CONDITION_EVAL", err.Error(), nil)
	}
	return result, nil
}

func compare(left any, op string, right any) (bool, error) {
	switch op {
	case "==":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	case ">", ">=", "<", "<=":
		l, lok := asNumber(left)
		r, rok := asNumber(right)
		if !lok || !rok {
			return false, fmt.Errorf("operator %q requires numeric operands, got %T and %T", op, left, right)
		}
		switch op {
		case ">":
			return l > r, nil
		case ">=":
			return l >= r, nil
		case "<":
			return l < r, nil
		default:
			return l <= r, nil
		}
	case "contains":
		return contains(left, right)
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

// looseEqual compares operands with numeric coercion, so "==" treats
// int 3 and float64 3 from a JSON decode as equal. Everything else
// compares on stringified form.
func looseEqual(left, right any) bool {
	if l, lok := asNumber(left); lok {
		if r, rok := asNumber(right); rok {
			return l == r
		}
	}
	return stringify(left) == stringify(right)
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

// contains handles substring match on strings, membership on slices, and
// key presence on maps.
func contains(left any, right any) (bool, error) {
	switch l := left.(type) {
	case string:
		return strings.Contains(l, stringify(right)), nil
	case []any:
		for _, item := range l {
			if looseEqual(item, right) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		_, ok := l[stringify(right)]
		return ok, nil
	default:
		return false, fmt.Errorf("operator \"contains\" requires a string, list, or map on the left, got %T", left)
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
