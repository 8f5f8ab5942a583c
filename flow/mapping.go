package flow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Value references inside node config use `{{ref}}` placeholders:
//
//	{{input}}            the run input payload
//	{{nodeID}}           the whole output of a completed node
//	{{nodeID.path.to.x}} a dotted path into a node's output
//
// A placeholder standing alone resolves to the referenced value with its
// native type; embedded in surrounding text it is stringified. Paths walk
// JSON-shaped values (maps keyed by string, slices indexed by number).

var refPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// resolveValue renders every placeholder in v against the execution
// context. Strings are template-rendered; maps and slices are resolved
// element-wise; other values pass through.
func resolveValue(v any, ec *ExecutionContext) (any, error) {
	switch t := v.(type) {
	case string:
		return resolveTemplate(t, ec)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			r, err := resolveValue(item, ec)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			r, err := resolveValue(item, ec)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// resolveTemplate renders a template string. When the entire string is a
// single placeholder, the referenced value is returned unstringified.
func resolveTemplate(s string, ec *ExecutionContext) (any, error) {
	matches := refPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	// Whole-string single reference keeps its native type.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		ref := s[matches[0][2]:matches[0][3]]
		return lookupRef(ref, ec)
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		v, err := lookupRef(s[m[2]:m[3]], ec)
		if err != nil {
			return nil, err
		}
		b.WriteString(stringify(v))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

// resolveString renders a template that must produce a string.
func resolveString(s string, ec *ExecutionContext) (string, error) {
	v, err := resolveTemplate(s, ec)
	if err != nil {
		return "", err
	}
	return stringify(v), nil
}

// lookupRef resolves a dotted reference against the run input and the
// variable bindings.
func lookupRef(ref string, ec *ExecutionContext) (any, error) {
	segments := strings.Split(ref, ".")
	root := segments[0]

	var cur any
	if root == "input" {
		cur = ec.Input()
	} else {
		v, ok := ec.Variable(root)
		if !ok {
			return nil, fmt.Errorf("reference %q: node %q has not resolved a value", ref, root)
		}
		cur = v
	}

	for _, seg := range segments[1:] {
		next, err := step(cur, seg)
		if err != nil {
			return nil, fmt.Errorf("reference %q: %w", ref, err)
		}
		cur = next
	}
	return cur, nil
}

// step walks one path segment into a JSON-shaped value.
func step(v any, seg string) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		next, ok := t[seg]
		if !ok {
			return nil, fmt.Errorf("key %q not found", seg)
		}
		return next, nil
	case []any:
		i, err := strconv.Atoi(seg)
		if err != nil {
			return nil, fmt.Errorf("list index %q is not a number", seg)
		}
		if i < 0 || i >= len(t) {
			return nil, fmt.Errorf("list index %d out of range (len %d)", i, len(t))
		}
		return t[i], nil
	default:
		return nil, fmt.Errorf("cannot descend into %T with %q", v, seg)
	}
}

// stringify renders a resolved value for embedding in text. Structured
// values render as compact JSON.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
