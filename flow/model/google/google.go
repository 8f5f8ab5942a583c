// Package google adapts Google's Gemini API to the model.ChatModel
// interface.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/tessellate-ai/floweave/flow/model"
)

const defaultModel = "gemini-2.5-flash"

// ChatModel implements model.ChatModel for Gemini.
//
// Gemini applies safety filters server-side; blocked content surfaces as
// a non-transient *model.Error with code "safety_block".
//
//	m, err := google.New(ctx, os.Getenv("GOOGLE_API_KEY"), "")
//	if err != nil { ... }
//	defer m.Close()
type ChatModel struct {
	client    *genai.Client
	modelName string
}

// New creates a Gemini-backed ChatModel. An empty modelName selects a
// reasonable default. Callers own the returned client and should Close
// it when done.
func New(ctx context.Context, apiKey, modelName string) (*ChatModel, error) {
	if modelName == "" {
		modelName = defaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &ChatModel{client: client, modelName: modelName}, nil
}

// Close releases the underlying client connection.
func (m *ChatModel) Close() error { return m.client.Close() }

// Chat sends the conversation to Gemini and returns the completion.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.Output, error) {
	if ctx.Err() != nil {
		return model.Output{}, ctx.Err()
	}

	gm := m.client.GenerativeModel(m.modelName)
	if system, rest := splitSystem(messages); system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
		messages = rest
	}
	if len(tools) > 0 {
		gm.Tools = convertTools(tools)
	}

	resp, err := gm.GenerateContent(ctx, convertMessages(messages)...)
	if err != nil {
		return model.Output{}, translateError(err)
	}
	return convertResponse(resp)
}

func splitSystem(messages []model.Message) (string, []model.Message) {
	var system string
	var rest []model.Message
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}
		rest = append(rest, msg)
	}
	return system, rest
}

// convertMessages flattens the conversation into text parts. Gemini's
// multi-turn chat API keeps history server-side per session; for
// stateless completion the turns are concatenated.
func convertMessages(messages []model.Message) []genai.Part {
	parts := make([]genai.Part, 0, len(messages))
	for _, msg := range messages {
		if msg.Content != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
	}
	return parts
}

func convertTools(tools []model.ToolSpec) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		declarations[i] = &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  convertSchema(t.Schema),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// convertSchema maps a JSON Schema object onto genai.Schema. Only the
// subset the engine's tools use is covered: an object with typed,
// described properties and a required list.
func convertSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}

	result := &genai.Schema{Type: genai.TypeObject}

	if props, ok := schema["properties"].(map[string]any); ok {
		properties := make(map[string]*genai.Schema, len(props))
		for key, val := range props {
			propMap, ok := val.(map[string]any)
			if !ok {
				continue
			}
			prop := &genai.Schema{}
			if typeStr, ok := propMap["type"].(string); ok {
				prop.Type = convertType(typeStr)
			}
			if desc, ok := propMap["description"].(string); ok {
				prop.Description = desc
			}
			properties[key] = prop
		}
		result.Properties = properties
	}

	switch required := schema["required"].(type) {
	case []string:
		result.Required = required
	case []any:
		for _, v := range required {
			if s, ok := v.(string); ok {
				result.Required = append(result.Required, s)
			}
		}
	}

	return result
}

func convertType(typeStr string) genai.Type {
	switch typeStr {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

func convertResponse(resp *genai.GenerateContentResponse) (model.Output, error) {
	out := model.Output{}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	if len(resp.Candidates) == 0 {
		return out, &model.Error{
			Provider: "google",
			Code:     "empty_response",
			Message:  "no candidates returned",
		}
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return model.Output{}, &model.Error{
			Provider: "google",
			Code:     "safety_block",
			Message:  "content blocked by safety filter",
		}
	}
	if candidate.Content == nil {
		return out, nil
	}

	for _, part := range candidate.Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			out.Text += string(p)
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				Name:  p.Name,
				Input: p.Args,
			})
		}
	}
	return out, nil
}

// translateError maps Gemini failures onto *model.Error. The genai SDK
// does not expose structured status codes, so classification falls back
// to message inspection.
func translateError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	msg := strings.ToLower(err.Error())
	transient := strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "unavailable") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "deadline")

	code := "request_failed"
	if strings.Contains(msg, "api key") || strings.Contains(msg, "permission") {
		code = "authentication_error"
		transient = false
	}

	return &model.Error{
		Provider:  "google",
		Code:      code,
		Message:   err.Error(),
		Transient: transient,
		Cause:     err,
	}
}
