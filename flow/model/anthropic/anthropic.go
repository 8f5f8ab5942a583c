// Package anthropic adapts Anthropic's Claude API to the model.ChatModel
// interface.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tessellate-ai/floweave/flow/model"
)

const defaultModel = "claude-sonnet-4-20250514"

// ChatModel implements model.ChatModel and model.StreamingChatModel on
// top of the official anthropic-sdk-go client.
//
// Anthropic expects system prompts as a separate request parameter rather
// than a message role, so system messages are extracted before the call.
//
//	m := anthropic.New(os.Getenv("ANTHROPIC_API_KEY"), "")
//	out, err := m.Chat(ctx, []model.Message{
//		{Role: model.RoleUser, Content: "What is the capital of France?"},
//	}, nil)
type ChatModel struct {
	client    anthropic.Client
	modelName string
	maxTokens int64
}

// New creates a Claude-backed ChatModel. An empty modelName selects a
// reasonable default.
func New(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = defaultModel
	}
	return &ChatModel{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
		maxTokens: 4096,
	}
}

// Chat sends the conversation to the Messages API and returns the
// completion.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.Output, error) {
	if ctx.Err() != nil {
		return model.Output{}, ctx.Err()
	}

	message, err := m.client.Messages.New(ctx, m.params(messages, tools))
	if err != nil {
		return model.Output{}, translateError(err)
	}
	return convertMessage(message), nil
}

// ChatStream sends the conversation with streaming enabled, invoking
// onDelta for each text fragment as it arrives.
func (m *ChatModel) ChatStream(ctx context.Context, messages []model.Message, tools []model.ToolSpec, onDelta func(delta string)) (model.Output, error) {
	if ctx.Err() != nil {
		return model.Output{}, ctx.Err()
	}

	stream := m.client.Messages.NewStreaming(ctx, m.params(messages, tools))
	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return model.Output{}, translateError(err)
		}
		if onDelta != nil {
			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := variant.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
					onDelta(delta.Text)
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return model.Output{}, translateError(err)
	}
	return convertMessage(&message), nil
}

func (m *ChatModel) params(messages []model.Message, tools []model.ToolSpec) anthropic.MessageNewParams {
	system, conversation := splitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: m.maxTokens,
		Messages:  convertMessages(conversation),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}
	return params
}

// splitSystem separates system messages from the conversation. Multiple
// system messages are concatenated.
func splitSystem(messages []model.Message) (string, []model.Message) {
	var system string
	var conversation []model.Message
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}
		conversation = append(conversation, msg)
	}
	return system, conversation
}

func convertMessages(messages []model.Message) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			params = append(params, anthropic.NewAssistantMessage(block))
		} else {
			params = append(params, anthropic.NewUserMessage(block))
		}
	}
	return params
}

func convertTools(tools []model.ToolSpec) []anthropic.ToolUnionParam {
	params := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		tool := anthropic.ToolParam{
			Name:        t.Name,
			InputSchema: anthropic.ToolInputSchemaParam{},
		}
		if t.Description != "" {
			tool.Description = anthropic.String(t.Description)
		}
		if props, ok := t.Schema["properties"]; ok {
			tool.InputSchema.Properties = props
		}
		params[i] = anthropic.ToolUnionParam{OfTool: &tool}
	}
	return params
}

func convertMessage(message *anthropic.Message) model.Output {
	out := model.Output{
		Usage: model.Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
		},
	}
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Text += variant.Text
		case anthropic.ToolUseBlock:
			call := model.ToolCall{Name: variant.Name}
			var input map[string]any
			if err := json.Unmarshal([]byte(variant.JSON.Input.Raw()), &input); err == nil {
				call.Input = input
			}
			out.ToolCalls = append(out.ToolCalls, call)
		}
	}
	return out
}

// translateError maps SDK failures onto *model.Error. Rate limits, 5xx
// responses, and request timeouts are transient; authentication and
// invalid-request failures are not.
func translateError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		transient := apierr.StatusCode == 429 || apierr.StatusCode >= 500
		return &model.Error{
			Provider:  "anthropic",
			Code:      statusCode(apierr.StatusCode),
			Message:   apierr.Error(),
			Transient: transient,
			Cause:     err,
		}
	}

	// No HTTP status means the request never completed: treat network
	// level failures as transient.
	return &model.Error{
		Provider:  "anthropic",
		Code:      "request_failed",
		Message:   err.Error(),
		Transient: true,
		Cause:     err,
	}
}

func statusCode(code int) string {
	switch {
	case code == 401 || code == 403:
		return "authentication_error"
	case code == 429:
		return "rate_limit_error"
	case code >= 500:
		return "server_error"
	default:
		return "invalid_request_error"
	}
}
