// Package model defines the "generate text" capability the engine
// consumes, plus adapters for hosted LLM providers.
//
// The engine never talks to a provider SDK directly: Model and Agent node
// executors call the ChatModel interface, and the host application decides
// which adapter (or mock) backs it.
package model

import (
	"context"
	"errors"
)

// Standard conversation roles, aligned with the conventions of the major
// chat APIs.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single entry of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolSpec describes a tool the model may call. Schema follows JSON
// Schema and describes the tool's input parameters.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ToolCall is a model's request to invoke a tool.
type ToolCall struct {
	Name  string         `json:"name"`
	Input map[string]any `json:"input,omitempty"`
}

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Output is the result of one chat completion: generated text, any tool
// calls, and token usage when the provider reports it.
type Output struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
}

// ChatModel is the abstract text-generation capability.
//
// Implementations must respect context cancellation and deadlines, and
// should translate provider failures into *model.Error so the engine can
// distinguish transient failures (retried with backoff) from permanent
// ones.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (Output, error)
}

// StreamingChatModel is implemented by providers that can surface partial
// text before the final completion. onDelta is invoked for each text
// fragment in order; the returned Output carries the full concatenated
// text.
//
// The engine type-asserts for this interface: a plain ChatModel still
// works everywhere, it just never produces stream-delta events.
type StreamingChatModel interface {
	ChatModel
	ChatStream(ctx context.Context, messages []Message, tools []ToolSpec, onDelta func(delta string)) (Output, error)
}

// Error is a provider failure translated to a common shape.
type Error struct {
	Provider string
	Code     string
	Message  string

	// Transient marks failures worth retrying: network errors, rate
	// limits, 5xx responses.
	Transient bool

	Cause error
}

func (e *Error) Error() string {
	return e.Provider + " " + e.Code + ": " + e.Message
}

// Unwrap returns the underlying provider error.
func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether a retry can plausibly succeed.
func (e *Error) Retryable() bool { return e.Transient }

// ErrNoModel is returned by executors when a graph uses Model or Agent
// nodes but no ChatModel was configured on the engine.
var ErrNoModel = errors.New("no chat model configured")
