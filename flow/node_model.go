package flow

import (
	"context"
	"fmt"

	"github.com/tessellate-ai/floweave/flow/model"
)

// modelExecutor calls the engine's chat model with a rendered prompt.
//
// Config:
//   - prompt: template, required
//   - system: template, optional system prompt
//   - history_from: optional reference to a prior node's output holding a
//     message list ([{role, content}, ...]); prepended to the prompt
//   - stream: bool, emit node_stream_delta events when the model supports
//     streaming
//
// Output: {"text": ...}.
type modelExecutor struct{}

func (m *modelExecutor) Execute(ctx context.Context, in Inputs, h *RunHandle) (any, error) {
	chat := h.Chat()
	if chat == nil {
		return nil, fatalErr("MODEL_UNCONFIGURED", "", model.ErrNoModel)
	}

	messages, err := buildMessages(in)
	if err != nil {
		return nil, err
	}

	stream, _ := in.Node.Config.Bool("stream")
	var out model.Output
	if streamer, ok := chat.(model.StreamingChatModel); ok && stream {
		out, err = streamer.ChatStream(ctx, messages, nil, h.EmitDelta)
	} else {
		out, err = chat.Chat(ctx, messages, nil)
	}
	if err != nil {
		return nil, wrapNodeErr("MODEL_CALL", "chat completion failed", err)
	}

	h.RecordUsage(modelName(chat), out.Usage)
	return map[string]any{"text": out.Text}, nil
}

func buildMessages(in Inputs) ([]model.Message, error) {
	var messages []model.Message

	if system, ok := in.Node.Config.String("system"); ok && system != "" {
		rendered, err := in.ResolveString(system)
		if err != nil {
			return nil, fatalErr("TEMPLATE", "resolve system template", err)
		}
		messages = append(messages, model.Message{Role: model.RoleSystem, Content: rendered})
	}

	if ref, ok := in.Node.Config.String("history_from"); ok && ref != "" {
		history, err := in.Resolve(ref)
		if err != nil {
			return nil, fatalErr("TEMPLATE", "resolve history_from reference", err)
		}
		parsed, err := parseHistory(history)
		if err != nil {
			return nil, fatalErr("INVALID_HISTORY", err.Error(), nil)
		}
		messages = append(messages, parsed...)
	}

	prompt, ok := in.Node.Config.String("prompt")
	if !ok {
		return nil, fatalErr("INVALID_CONFIG", "model node requires a prompt", nil)
	}
	rendered, err := in.ResolveString(prompt)
	if err != nil {
		return nil, fatalErr("TEMPLATE", "resolve prompt template", err)
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: rendered})

	return messages, nil
}

// parseHistory converts a JSON-shaped message list into typed messages.
func parseHistory(v any) ([]model.Message, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("history_from must reference a message list, got %T", v)
	}
	messages := make([]model.Message, 0, len(list))
	for i, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("history entry %d is not an object", i)
		}
		role, _ := entry["role"].(string)
		content, _ := entry["content"].(string)
		if role == "" || content == "" {
			return nil, fmt.Errorf("history entry %d requires role and content strings", i)
		}
		messages = append(messages, model.Message{Role: role, Content: content})
	}
	return messages, nil
}

// modelName asks the chat model for a display name when it offers one.
func modelName(chat model.ChatModel) string {
	if named, ok := chat.(interface{ ModelName() string }); ok {
		return named.ModelName()
	}
	return "chat"
}
