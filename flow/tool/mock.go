package tool

import (
	"context"
	"sync"
)

// MockTool is a scriptable Tool for tests. Handler, when set, computes
// the result; otherwise Output and Err are returned as configured. Calls
// records every invocation's input.
type MockTool struct {
	ToolName string
	Desc     string
	Schema   map[string]any
	Output   map[string]any
	Err      error
	Handler  func(ctx context.Context, input map[string]any) (map[string]any, error)

	mu    sync.Mutex
	Calls []map[string]any
}

// Name returns the configured tool name.
func (m *MockTool) Name() string { return m.ToolName }

// Description returns the configured description.
func (m *MockTool) Description() string { return m.Desc }

// Spec returns the configured schema.
func (m *MockTool) Spec() map[string]any { return m.Schema }

// Call records the input and returns the scripted result.
func (m *MockTool) Call(ctx context.Context, input map[string]any) (map[string]any, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	m.mu.Lock()
	m.Calls = append(m.Calls, input)
	m.mu.Unlock()

	if m.Handler != nil {
		return m.Handler(ctx, input)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Output, nil
}

// CallCount returns how many times Call has been invoked.
func (m *MockTool) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
