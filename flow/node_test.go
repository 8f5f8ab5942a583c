package flow

import (
	"context"
	"strings"
	"testing"

	"github.com/tessellate-ai/floweave/flow/model"
	"github.com/tessellate-ai/floweave/flow/retrieval"
)

func TestRun_RetrievalNode(t *testing.T) {
	index := retrieval.NewMemoryIndex()
	index.Add("faq-1", "Refunds are processed within five business days")
	index.Add("faq-2", "Shipping takes two business days inside the EU")
	index.Add("faq-3", "Gift cards never expire")

	mock := &model.MockChatModel{Responses: []model.Output{{Text: "answered"}}}
	engine := New(WithChatModel(mock), WithRetriever(index))
	g := mustGraph(t,
		[]*Node{
			{ID: "start", Type: NodeStart},
			{ID: "search", Type: NodeRetrieval, Config: Config{
				"query": "{{input.question}}",
				"top_k": 2,
			}},
			{ID: "answer", Type: NodeModel, Config: Config{
				"prompt": "Context: {{search.passages}}\nQuestion: {{input.question}}",
			}},
			{ID: "end", Type: NodeEnd},
		},
		[]Edge{
			{Source: "start", Target: "search"},
			{Source: "search", Target: "answer"},
			{Source: "answer", Target: "end"},
		},
	)

	result, err := engine.Run(context.Background(), g, map[string]any{
		"question": "how long do refunds take in business days",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The retrieval output flowed into the model prompt as JSON.
	prompt := mock.Calls[0].Messages[len(mock.Calls[0].Messages)-1].Content
	if !strings.Contains(prompt, "Refunds are processed") {
		t.Errorf("retrieved passage missing from prompt: %q", prompt)
	}
	if !strings.Contains(prompt, "how long do refunds take") {
		t.Errorf("question missing from prompt: %q", prompt)
	}

	out := result.Output.(map[string]any)
	if out["text"] != "answered" {
		t.Errorf("unexpected output: %#v", result.Output)
	}
}

func TestRun_RetrievalWithoutRetrieverFails(t *testing.T) {
	engine := New()
	g := mustGraph(t,
		[]*Node{
			{ID: "start", Type: NodeStart},
			{ID: "search", Type: NodeRetrieval, Config: Config{"query": "q"}},
			{ID: "end", Type: NodeEnd},
		},
		[]Edge{{Source: "start", Target: "search"}, {Source: "search", Target: "end"}},
	)

	_, err := engine.Run(context.Background(), g, nil)
	if err == nil || !strings.Contains(err.Error(), "RETRIEVER_UNCONFIGURED") {
		t.Fatalf("expected RETRIEVER_UNCONFIGURED, got %v", err)
	}
}

func TestRun_ModelWithoutChatModelFails(t *testing.T) {
	engine := New()
	g := linearGraph(t, "hi")

	_, err := engine.Run(context.Background(), g, nil)
	if err == nil || !strings.Contains(err.Error(), "MODEL_UNCONFIGURED") {
		t.Fatalf("expected MODEL_UNCONFIGURED, got %v", err)
	}
}

func TestBuildMessages(t *testing.T) {
	node := func(cfg Config) *Node {
		return &Node{ID: "m", Type: NodeModel, Config: cfg}
	}
	inputsFor := func(n *Node, ec *ExecutionContext) Inputs {
		return Inputs{Node: n, ec: ec}
	}

	t.Run("system and prompt", func(t *testing.T) {
		ec := testContext(map[string]any{"tone": "dry"}, nil)
		in := inputsFor(node(Config{
			"system": "Answer in a {{input.tone}} tone.",
			"prompt": "hello",
		}), ec)

		messages, err := buildMessages(in)
		if err != nil {
			t.Fatalf("buildMessages: %v", err)
		}
		if len(messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(messages))
		}
		if messages[0].Role != model.RoleSystem || messages[0].Content != "Answer in a dry tone." {
			t.Errorf("unexpected system message: %+v", messages[0])
		}
		if messages[1].Role != model.RoleUser {
			t.Errorf("unexpected prompt role: %+v", messages[1])
		}
	})

	t.Run("history prepends typed messages", func(t *testing.T) {
		ec := testContext(nil, map[string]any{
			"prep": map[string]any{
				"messages": []any{
					map[string]any{"role": "user", "content": "earlier question"},
					map[string]any{"role": "assistant", "content": "earlier answer"},
				},
			},
		})
		in := inputsFor(node(Config{
			"history_from": "{{prep.messages}}",
			"prompt":       "follow-up",
		}), ec)

		messages, err := buildMessages(in)
		if err != nil {
			t.Fatalf("buildMessages: %v", err)
		}
		if len(messages) != 3 {
			t.Fatalf("expected 3 messages, got %d", len(messages))
		}
		if messages[0].Content != "earlier question" || messages[1].Role != model.RoleAssistant {
			t.Errorf("history not prepended: %+v", messages)
		}
	})

	t.Run("malformed history fails", func(t *testing.T) {
		ec := testContext(nil, map[string]any{
			"prep": map[string]any{"messages": []any{map[string]any{"role": "user"}}},
		})
		in := inputsFor(node(Config{
			"history_from": "{{prep.messages}}",
			"prompt":       "x",
		}), ec)

		if _, err := buildMessages(in); err == nil {
			t.Fatal("expected error for history entry without content")
		}
	})
}

func TestRun_EndOutputTemplate(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.Output{{Text: "summary text"}}}
	engine := New(WithChatModel(mock))
	g := mustGraph(t,
		[]*Node{
			{ID: "start", Type: NodeStart},
			{ID: "sum", Type: NodeModel, Config: Config{"prompt": "summarize"}},
			{ID: "end", Type: NodeEnd, Config: Config{
				"output": "{{sum.text}}",
			}},
		},
		[]Edge{{Source: "start", Target: "sum"}, {Source: "sum", Target: "end"}},
	)

	result, err := engine.Run(context.Background(), g, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Output != "summary text" {
		t.Errorf("expected shaped output, got %#v", result.Output)
	}
}
