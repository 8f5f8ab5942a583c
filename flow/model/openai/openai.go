// Package openai adapts OpenAI's chat completions API to the
// model.ChatModel interface.
package openai

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/tessellate-ai/floweave/flow/model"
)

const defaultModel = "gpt-4o-mini"

// ChatModel implements model.ChatModel and model.StreamingChatModel on
// top of the official openai-go client.
//
//	m := openai.New(os.Getenv("OPENAI_API_KEY"), "gpt-4o")
//	out, err := m.Chat(ctx, messages, nil)
type ChatModel struct {
	client    openai.Client
	modelName string
}

// New creates an OpenAI-backed ChatModel. An empty modelName selects a
// reasonable default.
func New(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = defaultModel
	}
	return &ChatModel{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
	}
}

// Chat sends the conversation to the chat completions API and returns
// the completion.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.Output, error) {
	if ctx.Err() != nil {
		return model.Output{}, ctx.Err()
	}

	completion, err := m.client.Chat.Completions.New(ctx, m.params(messages, tools))
	if err != nil {
		return model.Output{}, translateError(err)
	}
	if len(completion.Choices) == 0 {
		return model.Output{}, &model.Error{
			Provider: "openai",
			Code:     "empty_response",
			Message:  "completion returned no choices",
		}
	}

	choice := completion.Choices[0]
	out := model.Output{
		Text: choice.Message.Content,
		Usage: model.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, convertToolCall(tc.Function.Name, tc.Function.Arguments))
	}
	return out, nil
}

// ChatStream sends the conversation with streaming enabled, invoking
// onDelta for each content fragment as it arrives.
func (m *ChatModel) ChatStream(ctx context.Context, messages []model.Message, tools []model.ToolSpec, onDelta func(delta string)) (model.Output, error) {
	if ctx.Err() != nil {
		return model.Output{}, ctx.Err()
	}

	stream := m.client.Chat.Completions.NewStreaming(ctx, m.params(messages, tools))
	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if onDelta != nil && len(chunk.Choices) > 0 {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				onDelta(delta)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return model.Output{}, translateError(err)
	}
	if len(acc.Choices) == 0 {
		return model.Output{}, &model.Error{
			Provider: "openai",
			Code:     "empty_response",
			Message:  "stream produced no choices",
		}
	}

	choice := acc.Choices[0]
	out := model.Output{
		Text: choice.Message.Content,
		Usage: model.Usage{
			PromptTokens:     int(acc.Usage.PromptTokens),
			CompletionTokens: int(acc.Usage.CompletionTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, convertToolCall(tc.Function.Name, tc.Function.Arguments))
	}
	return out, nil
}

func (m *ChatModel) params(messages []model.Message, tools []model.ToolSpec) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.modelName),
		Messages: convertMessages(messages),
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}
	return params
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			params = append(params, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			params = append(params, openai.AssistantMessage(msg.Content))
		default:
			params = append(params, openai.UserMessage(msg.Content))
		}
	}
	return params
}

func convertTools(tools []model.ToolSpec) []openai.ChatCompletionToolUnionParam {
	params := make([]openai.ChatCompletionToolUnionParam, len(tools))
	for i, t := range tools {
		def := shared.FunctionDefinitionParam{Name: t.Name}
		if t.Description != "" {
			def.Description = openai.String(t.Description)
		}
		if t.Schema != nil {
			def.Parameters = shared.FunctionParameters(t.Schema)
		}
		params[i] = openai.ChatCompletionFunctionTool(def)
	}
	return params
}

func convertToolCall(name, arguments string) model.ToolCall {
	call := model.ToolCall{Name: name}
	if arguments != "" {
		var input map[string]any
		if err := json.Unmarshal([]byte(arguments), &input); err == nil {
			call.Input = input
		}
	}
	return call
}

// translateError maps SDK failures onto *model.Error. Rate limits and
// 5xx responses are transient; authentication and invalid-request
// failures are not.
func translateError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apierr *openai.Error
	if errors.As(err, &apierr) {
		transient := apierr.StatusCode == 429 || apierr.StatusCode >= 500
		return &model.Error{
			Provider:  "openai",
			Code:      statusCode(apierr.StatusCode),
			Message:   apierr.Error(),
			Transient: transient,
			Cause:     err,
		}
	}

	return &model.Error{
		Provider:  "openai",
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
