package flow

import (
	"net/http"

	"github.com/tessellate-ai/floweave/flow/model"
	"github.com/tessellate-ai/floweave/flow/retrieval"
	"github.com/tessellate-ai/floweave/flow/tool"
)

// RunHandle is the per-dispatch bridge between a node executor and the
// run: it exposes the engine's configured capabilities and lets the
// executor report stream deltas and token usage.
//
// A handle is valid only for the duration of one Execute call.
type RunHandle struct {
	runID  string
	nodeID string

	ec *ExecutionContext

	// emitDelta publishes a node_stream_delta event; set by the
	// scheduler, safe to call from the executor goroutine.
	emitDelta func(nodeID, delta string)

	chat       model.ChatModel
	retriever  retrieval.Retriever
	httpClient *http.Client
	tools      map[string]tool.Tool
	usage      *UsageTracker
}

// RunID returns the run's identifier.
func (h *RunHandle) RunID() string { return h.runID }

// NodeID returns the executing node's identifier.
func (h *RunHandle) NodeID() string { return h.nodeID }

// Cancelled reports whether run cancellation has been requested.
// Executors doing long non-context work should poll this.
func (h *RunHandle) Cancelled() bool { return h.ec.Cancelled() }

// EmitDelta publishes a partial-output fragment on the run's event
// stream. Empty deltas are dropped.
func (h *RunHandle) EmitDelta(text string) {
	if text == "" || h.emitDelta == nil {
		return
	}
	h.emitDelta(h.nodeID, text)
}

// Chat returns the configured chat model, or nil.
func (h *RunHandle) Chat() model.ChatModel { return h.chat }

// Retriever returns the configured retriever, or nil.
func (h *RunHandle) Retriever() retrieval.Retriever { return h.retriever }

// HTTPClient returns the client http_request nodes use. Never nil.
func (h *RunHandle) HTTPClient() *http.Client {
	if h.httpClient == nil {
		return http.DefaultClient
	}
	return h.httpClient
}

// Tool returns the named tool from the engine's tool set.
func (h *RunHandle) Tool(name string) (tool.Tool, bool) {
	t, ok := h.tools[name]
	return t, ok
}

// RecordUsage adds one completion's token counts to the run's usage
// tracker. No-op when usage tracking is not configured.
func (h *RunHandle) RecordUsage(modelName string, u model.Usage) {
	if h.usage == nil {
		return
	}
	h.usage.Record(modelName, h.nodeID, u)
}
