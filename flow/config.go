package flow

import "fmt"

// Config is a node's type-specific configuration map, decoded from the
// stored graph definition. Values are plain JSON types: string, float64,
// bool, []any, map[string]any.
type Config map[string]any

// String returns the string value under key.
func (c Config) String(key string) (string, bool) {
	v, ok := c[key].(string)
	return v, ok
}

// Int returns the integer value under key. JSON numbers decode as
// float64; both forms are accepted.
func (c Config) Int(key string) (int, bool) {
	switch v := c[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Bool returns the boolean value under key.
func (c Config) Bool(key string) (bool, bool) {
	v, ok := c[key].(bool)
	return v, ok
}

// Strings returns the string-slice value under key.
func (c Config) Strings(key string) ([]string, bool) {
	switch v := c[key].(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// Map returns the nested map value under key.
func (c Config) Map(key string) (map[string]any, bool) {
	v, ok := c[key].(map[string]any)
	return v, ok
}

// conditionOperators are the comparison operators a Condition node (and a
// Loop node's "while" predicate) may use.
var conditionOperators = map[string]bool{
	"==": true, "!=": true,
	">": true, ">=": true, "<": true, "<=": true,
	"contains": true, "empty": true, "not_empty": true,
}

// validateNodeConfig checks a node's config against its type's schema.
// Runs during graph validation so that config mistakes fail fast, before
// any node executes.
func validateNodeConfig(n *Node) *GraphError {
	switch n.Type {
	case NodeStart, NodeEnd:
		return nil

	case NodeModel:
		if s, ok := n.Config.String("prompt"); !ok || s == "" {
			return graphErr(CodeInvalidConfig, n.ID, "model node requires a non-empty prompt")
		}
		return nil

	case NodeRetrieval:
		if s, ok := n.Config.String("query"); !ok || s == "" {
			return graphErr(CodeInvalidConfig, n.ID, "retrieval node requires a non-empty query")
		}
		if k, ok := n.Config.Int("top_k"); ok && k <= 0 {
			return graphErr(CodeInvalidConfig, n.ID, "top_k must be positive")
		}
		return nil

	case NodeAgent:
		if s, ok := n.Config.String("goal"); !ok || s == "" {
			return graphErr(CodeInvalidConfig, n.ID, "agent node requires a non-empty goal")
		}
		if _, present := n.Config["tools"]; present {
			if _, ok := n.Config.Strings("tools"); !ok {
				return graphErr(CodeInvalidConfig, n.ID, "tools must be a list of tool names")
			}
		}
		if it, ok := n.Config.Int("max_iterations"); ok && it <= 0 {
			return graphErr(CodeInvalidConfig, n.ID, "max_iterations must be positive")
		}
		return nil

	case NodeHTTPRequest:
		if s, ok := n.Config.String("url"); !ok || s == "" {
			return graphErr(CodeInvalidConfig, n.ID, "http_request node requires a url")
		}
		if m, ok := n.Config.String("method"); ok {
			switch m {
			case "GET", "POST", "PUT", "PATCH", "DELETE", "HEAD":
			default:
				return graphErr(CodeInvalidConfig, n.ID, fmt.Sprintf("unsupported HTTP method %q", m))
			}
		}
		return nil

	case NodeCondition:
		op, ok := n.Config.String("operator")
		if !ok || !conditionOperators[op] {
			return graphErr(CodeInvalidConfig, n.ID, fmt.Sprintf("condition node requires a valid operator, got %q", op))
		}
		if _, present := n.Config["left"]; !present {
			return graphErr(CodeInvalidConfig, n.ID, "condition node requires a left operand")
		}
		if op != "empty" && op != "not_empty" {
			if _, present := n.Config["right"]; !present {
				return graphErr(CodeInvalidConfig, n.ID, "condition node requires a right operand")
			}
		}
		return nil

	case NodeLoop:
		it, ok := n.Config.Int("max_iterations")
		if !ok || it <= 0 {
			return graphErr(CodeInvalidConfig, n.ID, "loop node requires max_iterations > 0")
		}
		if w, present := n.Config["while"]; present {
			cfg, ok := w.(map[string]any)
			if !ok {
				return graphErr(CodeInvalidConfig, n.ID, "while must be a condition config")
			}
			op, ok := Config(cfg).String("operator")
			if !ok || !conditionOperators[op] {
				return graphErr(CodeInvalidConfig, n.ID, fmt.Sprintf("while requires a valid operator, got %q", op))
			}
		}
		return nil

	default:
		return graphErr(CodeInvalidConfig, n.ID, fmt.Sprintf("unknown node type %q", n.Type))
	}
}
