package flow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tessellate-ai/floweave/flow/model"
)

// defaultAgentIterations caps the model/tool loop when the config does
// not set max_iterations.
const defaultAgentIterations = 5

// finalAnswerTool is the implicit stop tool offered to the model on
// every agent turn. Calling it ends the loop with its "answer" argument
// as the agent's text.
const finalAnswerTool = "final_answer"

// agentExecutor runs a bounded model/tool loop toward a goal.
//
// Config:
//   - goal: template, required
//   - tools: list of tool names drawn from the engine's tool set
//   - max_iterations: positive integer, defaults to 5
//
// Each turn sends the transcript to the model. The loop stops when the
// model calls final_answer or replies with plain text and no tool calls.
// Any other tool call is executed and its result appended to the
// transcript. If the iteration cap lands while the model has produced
// text, that text is the answer (degraded success); a cap with no text
// and no stop signal is a fatal AGENT_STOP_AMBIGUOUS error.
//
// Output: {"text": ..., "toolCalls": [{"name", "input", "output"}, ...]}.
type agentExecutor struct{}

func (a *agentExecutor) Execute(ctx context.Context, in Inputs, h *RunHandle) (any, error) {
	chat := h.Chat()
	if chat == nil {
		return nil, fatalErr("MODEL_UNCONFIGURED", "", model.ErrNoModel)
	}

	goal, _ := in.Node.Config.String("goal")
	rendered, err := in.ResolveString(goal)
	if err != nil {
		return nil, fatalErr("TEMPLATE", "resolve goal template", err)
	}

	specs, err := a.toolSpecs(in, h)
	if err != nil {
		return nil, err
	}

	maxIterations := defaultAgentIterations
	if it, ok := in.Node.Config.Int("max_iterations"); ok {
		maxIterations = it
	}

	messages := []model.Message{
		{Role: model.RoleSystem, Content: "Work toward the goal. Use the available tools when they help. " +
			"When you have the answer, call final_answer with it."},
		{Role: model.RoleUser, Content: rendered},
	}

	var transcript []map[string]any
	var lastText string

	for i := 0; i < maxIterations; i++ {
		out, err := chat.Chat(ctx, messages, specs)
		if err != nil {
			return nil, wrapNodeErr("MODEL_CALL", "agent turn failed", err)
		}
		h.RecordUsage(modelName(chat), out.Usage)
		if out.Text != "" {
			lastText = out.Text
		}

		// Plain text with no tool calls is a stop signal.
		if len(out.ToolCalls) == 0 {
			if out.Text == "" {
				return nil, fatalErr("AGENT_STOP_AMBIGUOUS",
					"model produced neither text nor tool calls", nil)
			}
			return agentResult(out.Text, transcript), nil
		}

		for _, call := range out.ToolCalls {
			if call.Name == finalAnswerTool {
				answer, _ := call.Input["answer"].(string)
				if answer == "" {
					answer = lastText
				}
				return agentResult(answer, transcript), nil
			}

			result, err := a.invokeTool(ctx, h, call)
			if err != nil {
				return nil, err
			}
			transcript = append(transcript, map[string]any{
				"name":   call.Name,
				"input":  jsonShape(call.Input),
				"output": jsonShape(result),
			})

			messages = append(messages,
				model.Message{Role: model.RoleAssistant, Content: describeCall(call)},
				model.Message{Role: model.RoleUser, Content: describeResult(call.Name, result)},
			)
		}
	}

	if lastText != "" {
		return agentResult(lastText, transcript), nil
	}
	return nil, fatalErr("AGENT_STOP_AMBIGUOUS",
		fmt.Sprintf("agent hit the iteration cap (%d) without an answer", maxIterations), nil)
}

func (a *agentExecutor) toolSpecs(in Inputs, h *RunHandle) ([]model.ToolSpec, error) {
	names, _ := in.Node.Config.Strings("tools")
	specs := make([]model.ToolSpec, 0, len(names)+1)
	for _, name := range names {
		t, ok := h.Tool(name)
		if !ok {
			return nil, fatalErr("AGENT_TOOL_UNKNOWN",
				fmt.Sprintf("tool %q is not registered on the engine", name), nil)
		}
		specs = append(specs, model.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      t.Spec(),
		})
	}
	specs = append(specs, model.ToolSpec{
		Name:        finalAnswerTool,
		Description: "Finish with the final answer to the goal.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"answer": map[string]any{"type": "string"},
			},
			"required": []string{"answer"},
		},
	})
	return specs, nil
}

func (a *agentExecutor) invokeTool(ctx context.Context, h *RunHandle, call model.ToolCall) (map[string]any, error) {
	t, ok := h.Tool(call.Name)
	if !ok {
		return nil, fatalErr("AGENT_TOOL_UNKNOWN",
			fmt.Sprintf("model requested unknown tool %q", call.Name), nil)
	}
	result, err := t.Call(ctx, call.Input)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, wrapNodeErr("AGENT_TOOL_CALL",
			fmt.Sprintf("tool %q failed", call.Name), err)
	}
	return result, nil
}

func agentResult(text string, transcript []map[string]any) map[string]any {
	calls := make([]any, len(transcript))
	for i, entry := range transcript {
		calls[i] = entry
	}
	return map[string]any{"text": text, "toolCalls": calls}
}

func describeCall(call model.ToolCall) string {
	data, _ := json.Marshal(call.Input)
	return fmt.Sprintf("Calling tool %s with input %s", call.Name, data)
}

func describeResult(name string, result map[string]any) string {
	data, _ := json.Marshal(result)
	return fmt.Sprintf("Tool %s returned: %s", name, data)
}
