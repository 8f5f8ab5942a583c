package flow

import (
	"context"

	"github.com/tessellate-ai/floweave/flow/retrieval"
)

// defaultTopK is the passage count a Retrieval node returns when the
// config does not set top_k.
const defaultTopK = 4

// retrievalExecutor queries the engine's retriever.
//
// Config:
//   - query: template, required
//   - top_k: positive integer, defaults to 4
//
// Output: {"passages": [{"text", "score", "sourceId"}, ...]} ordered by
// descending score, ties broken on ascending sourceId.
type retrievalExecutor struct{}

func (r *retrievalExecutor) Execute(ctx context.Context, in Inputs, h *RunHandle) (any, error) {
	retriever := h.Retriever()
	if retriever == nil {
		return nil, fatalErr("RETRIEVER_UNCONFIGURED", "", retrieval.ErrNoRetriever)
	}

	query, _ := in.Node.Config.String("query")
	rendered, err := in.ResolveString(query)
	if err != nil {
		return nil, fatalErr("TEMPLATE", "resolve query template", err)
	}

	topK := defaultTopK
	if k, ok := in.Node.Config.Int("top_k"); ok {
		topK = k
	}

	passages, err := retriever.Retrieve(ctx, rendered, topK)
	if err != nil {
		return nil, wrapNodeErr("RETRIEVAL_CALL", "retrieve failed", err)
	}
	if passages == nil {
		passages = []retrieval.Passage{}
	}
	return map[string]any{"passages": jsonShape(passages)}, nil
}
