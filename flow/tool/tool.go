// Package tool defines the side-effect capability Agent nodes invoke
// between model turns.
package tool

import "context"

// Tool is an executable action an agent's model can request by name.
//
// Implementations should validate their input, respect context
// cancellation, and return structured output the model can read back.
//
//	type WeatherTool struct{}
//
//	func (w *WeatherTool) Name() string { return "get_weather" }
//
//	func (w *WeatherTool) Spec() map[string]any {
//		return map[string]any{
//			"type": "object",
//			"properties": map[string]any{
//				"location": map[string]any{"type": "string"},
//			},
//			"required": []string{"location"},
//		}
//	}
//
//	func (w *WeatherTool) Call(ctx context.Context, input map[string]any) (map[string]any, error) {
//		location, ok := input["location"].(string)
//		if !ok {
//			return nil, errors.New("location parameter required")
//		}
//		return map[string]any{"location": location, "temperature": 21.5}, nil
//	}
type Tool interface {
	// Name returns the unique identifier the model uses to request this
	// tool. Lowercase with underscores, like a function name.
	Name() string

	// Description returns a short explanation of what the tool does,
	// surfaced to the model alongside the name.
	Description() string

	// Spec returns a JSON Schema object describing the tool's input
	// parameters. A nil spec means the tool takes no parameters.
	Spec() map[string]any

	// Call executes the tool. Input matches Spec; output is structured
	// data fed back to the model as the tool result.
	Call(ctx context.Context, input map[string]any) (map[string]any, error)
}
