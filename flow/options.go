package flow

import (
	"net/http"
	"time"

	"github.com/tessellate-ai/floweave/flow/emit"
	"github.com/tessellate-ai/floweave/flow/model"
	"github.com/tessellate-ai/floweave/flow/retrieval"
	"github.com/tessellate-ai/floweave/flow/tool"
)

// Option configures an Engine.
//
//	engine := flow.New(
//		flow.WithChatModel(chat),
//		flow.WithConcurrencyLimit(8),
//		flow.WithNodeTimeout(10*time.Second),
//	)
type Option func(*Engine)

// WithConcurrencyLimit caps how many ready nodes execute in parallel
// within one dispatch batch. Default 4. Values below 1 are clamped to 1
// (sequential execution).
func WithConcurrencyLimit(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.concurrency = n
	}
}

// WithNodeTimeout bounds each executor attempt. A timed-out attempt
// counts as a transient failure and follows the retry policy. Default
// 30s; zero disables the per-node timeout.
func WithNodeTimeout(d time.Duration) Option {
	return func(e *Engine) { e.nodeTimeout = d }
}

// WithRunDeadline bounds an entire run's wall-clock time. When exceeded
// the run cancels. Default: no deadline.
func WithRunDeadline(d time.Duration) Option {
	return func(e *Engine) { e.runDeadline = d }
}

// WithRetryPolicy replaces the default retry policy for transient node
// failures. Invalid policies fall back to the default.
func WithRetryPolicy(rp RetryPolicy) Option {
	return func(e *Engine) {
		if rp.Validate() != nil {
			rp = DefaultRetryPolicy()
		}
		e.retry = rp
	}
}

// WithChatModel sets the chat model Model and Agent nodes call.
func WithChatModel(m model.ChatModel) Option {
	return func(e *Engine) { e.chat = m }
}

// WithRetriever sets the retriever Retrieval nodes query.
func WithRetriever(r retrieval.Retriever) Option {
	return func(e *Engine) { e.retriever = r }
}

// WithHTTPClient sets the client HttpRequest nodes use. Default:
// http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.httpClient = c }
}

// WithTools registers the tools Agent nodes may invoke, keyed by
// Tool.Name. Later registrations with the same name win.
func WithTools(tools ...tool.Tool) Option {
	return func(e *Engine) {
		for _, t := range tools {
			e.tools[t.Name()] = t
		}
	}
}

// WithEmitter mirrors every run's event stream into the given emitter in
// addition to the per-run channel. Compose sinks with emit.Multi.
func WithEmitter(em emit.Emitter) Option {
	return func(e *Engine) { e.emitter = em }
}

// WithMetrics enables Prometheus metrics collection.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithUsageTracker enables token-usage accounting for Model and Agent
// nodes.
func WithUsageTracker(u *UsageTracker) Option {
	return func(e *Engine) { e.usage = u }
}

// WithExecutor overrides or adds the executor for a node type. Intended
// for tests and for embedding the engine with custom node behavior.
func WithExecutor(t NodeType, exec Executor) Option {
	return func(e *Engine) { e.executors[t] = exec }
}
