package model

import (
	"context"
	"strings"
	"sync"
)

// MockChatModel is a scriptable ChatModel for tests.
//
// Each call to Chat returns the next entry of Responses; once exhausted,
// the last entry repeats. Set Err to make every call fail instead. Calls
// records each invocation so tests can assert on what a node sent.
//
//	mock := &model.MockChatModel{
//		Responses: []model.Output{{Text: "first"}, {Text: "second"}},
//	}
//
// MockChatModel also implements StreamingChatModel: ChatStream splits the
// scripted text on whitespace and emits word-sized deltas, which is enough
// to exercise stream event plumbing.
type MockChatModel struct {
	Responses []Output
	Err       error
	Calls     []MockChatCall

	mu        sync.Mutex
	callIndex int
}

// MockChatCall records a single invocation.
type MockChatCall struct {
	Messages []Message
	Tools    []ToolSpec
}

// Chat returns the next scripted response, or Err when configured. The
// call is recorded either way.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (Output, error) {
	if ctx.Err() != nil {
		return Output{}, ctx.Err()
	}
	return m.next(messages, tools)
}

// ChatStream behaves like Chat but also feeds the response text to
// onDelta one word at a time.
func (m *MockChatModel) ChatStream(ctx context.Context, messages []Message, tools []ToolSpec, onDelta func(delta string)) (Output, error) {
	out, err := m.Chat(ctx, messages, tools)
	if err != nil {
		return Output{}, err
	}
	if onDelta != nil && out.Text != "" {
		words := strings.SplitAfter(out.Text, " ")
		for _, w := range words {
			if w != "" {
				onDelta(w)
			}
		}
	}
	return out, nil
}

func (m *MockChatModel) next(messages []Message, tools []ToolSpec) (Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockChatCall{Messages: messages, Tools: tools})

	if m.Err != nil {
		return Output{}, m.Err
	}
	if len(m.Responses) == 0 {
		return Output{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// Reset clears the call history and rewinds the response sequence.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.callIndex = 0
}

// CallCount returns how many times Chat or ChatStream has been called.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
