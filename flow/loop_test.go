package flow

import (
	"context"
	"fmt"
	"testing"

	"github.com/tessellate-ai/floweave/flow/emit"
	"github.com/tessellate-ai/floweave/flow/model"
)

// loopGraph builds start -> loop -> body(model) -> loop -> end with the
// given loop config.
func loopGraph(t *testing.T, loopCfg Config) *Graph {
	t.Helper()
	return mustGraph(t,
		[]*Node{
			{ID: "start", Type: NodeStart},
			{ID: "loop", Type: NodeLoop, Config: loopCfg},
			{ID: "step", Type: NodeModel, Config: Config{"prompt": "iteration {{loop.index}}"}},
			{ID: "end", Type: NodeEnd},
		},
		[]Edge{
			{Source: "start", Target: "loop"},
			{Source: "loop", Target: "step", SourceHandle: HandleBody},
			{Source: "step", Target: "loop"},
			{Source: "loop", Target: "end", SourceHandle: HandleDone},
		},
	)
}

func TestRun_LoopFixedIterations(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.Output{
		{Text: "r0"}, {Text: "r1"}, {Text: "r2"},
	}}
	engine := New(WithChatModel(mock))
	g := loopGraph(t, Config{"max_iterations": 3})

	result, err := engine.Run(context.Background(), g, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if mock.CallCount() != 3 {
		t.Fatalf("expected 3 body runs, got %d", mock.CallCount())
	}

	// Each iteration saw its own index binding.
	for i, call := range mock.Calls {
		want := fmt.Sprintf("iteration %d", i)
		got := call.Messages[len(call.Messages)-1].Content
		if got != want {
			t.Errorf("iteration %d prompt: got %q, want %q", i, got, want)
		}
	}

	// Output: the body (last node before End) feeds the End via the loop
	// aggregate bound under the loop's ID.
	var loopDone emit.Event
	stepStarts := 0
	for _, ev := range result.Trace {
		if ev.Type == emit.NodeCompleted && ev.NodeID == "loop" {
			loopDone = ev
		}
		if ev.Type == emit.NodeStarted && ev.NodeID == "step" {
			stepStarts++
		}
	}
	if stepStarts != 3 {
		t.Errorf("expected 3 step starts, got %d", stepStarts)
	}
	agg, ok := loopDone.Output.(map[string]any)
	if !ok {
		t.Fatalf("expected loop aggregate output, got %#v", loopDone.Output)
	}
	if agg["count"] != 3 {
		t.Errorf("expected count 3, got %v", agg["count"])
	}
	iterations, _ := agg["iterations"].([]any)
	if len(iterations) != 3 {
		t.Fatalf("expected 3 iteration results, got %d", len(iterations))
	}
	first, _ := iterations[0].(map[string]any)
	if first["text"] != "r0" {
		t.Errorf("expected first iteration result r0, got %#v", iterations[0])
	}
}

func TestRun_LoopOverCollection(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.Output{{Text: "ok"}}}
	engine := New(WithChatModel(mock))
	g := mustGraph(t,
		[]*Node{
			{ID: "start", Type: NodeStart},
			{ID: "loop", Type: NodeLoop, Config: Config{
				"max_iterations": 10,
				"collection":     "{{input.names}}",
			}},
			{ID: "greet", Type: NodeModel, Config: Config{"prompt": "hello {{loop.item}}"}},
			{ID: "end", Type: NodeEnd},
		},
		[]Edge{
			{Source: "start", Target: "loop"},
			{Source: "loop", Target: "greet", SourceHandle: HandleBody},
			{Source: "greet", Target: "loop"},
			{Source: "loop", Target: "end", SourceHandle: HandleDone},
		},
	)

	_, err := engine.Run(context.Background(), g, map[string]any{
		"names": []any{"ada", "grace"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if mock.CallCount() != 2 {
		t.Fatalf("expected one body run per element, got %d", mock.CallCount())
	}
	prompts := []string{
		mock.Calls[0].Messages[len(mock.Calls[0].Messages)-1].Content,
		mock.Calls[1].Messages[len(mock.Calls[1].Messages)-1].Content,
	}
	if prompts[0] != "hello ada" || prompts[1] != "hello grace" {
		t.Errorf("unexpected prompts: %v", prompts)
	}
}

func TestRun_LoopCollectionCappedByMaxIterations(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.Output{{Text: "ok"}}}
	engine := New(WithChatModel(mock))
	g := mustGraph(t,
		[]*Node{
			{ID: "start", Type: NodeStart},
			{ID: "loop", Type: NodeLoop, Config: Config{
				"max_iterations": 2,
				"collection":     "{{input.items}}",
			}},
			{ID: "step", Type: NodeModel, Config: Config{"prompt": "x"}},
			{ID: "end", Type: NodeEnd},
		},
		[]Edge{
			{Source: "start", Target: "loop"},
			{Source: "loop", Target: "step", SourceHandle: HandleBody},
			{Source: "step", Target: "loop"},
			{Source: "loop", Target: "end", SourceHandle: HandleDone},
		},
	)

	_, err := engine.Run(context.Background(), g, map[string]any{
		"items": []any{1, 2, 3, 4, 5},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if mock.CallCount() != 2 {
		t.Errorf("expected the cap to stop at 2 iterations, got %d", mock.CallCount())
	}
}

func TestRun_LoopWhileFalseAtStart(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.Output{{Text: "never"}}}
	engine := New(WithChatModel(mock))
	g := loopGraph(t, Config{
		"max_iterations": 5,
		"while": map[string]any{
			"left": "{{input.go}}", "operator": "==", "right": true,
		},
	})

	result, err := engine.Run(context.Background(), g, map[string]any{"go": false})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if mock.CallCount() != 0 {
		t.Errorf("body should never run, got %d calls", mock.CallCount())
	}
	for _, ev := range result.Trace {
		if ev.NodeID == "step" {
			t.Fatalf("body node emitted event %s", ev.Type)
		}
	}

	var loopDone emit.Event
	for _, ev := range result.Trace {
		if ev.Type == emit.NodeCompleted && ev.NodeID == "loop" {
			loopDone = ev
		}
	}
	agg, ok := loopDone.Output.(map[string]any)
	if !ok || agg["count"] != 0 {
		t.Errorf("expected empty aggregate, got %#v", loopDone.Output)
	}
}

func TestRun_LoopBodyFailureFailsRun(t *testing.T) {
	mock := &model.MockChatModel{Err: &model.Error{
		Provider: "mock", Code: "invalid_request_error", Message: "boom",
	}}
	engine := New(WithChatModel(mock))
	g := loopGraph(t, Config{"max_iterations": 3})

	result, err := engine.Run(context.Background(), g, nil)
	if err == nil {
		t.Fatal("expected run failure from the loop body")
	}
	if result.Status != RunFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if mock.CallCount() != 1 {
		t.Errorf("expected the first iteration to fail the run, got %d calls", mock.CallCount())
	}
}

func TestRun_LoopBodyBranchEscapes(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.Output{
		{Text: "inner"}, {Text: "wrap-up"},
	}}
	engine := New(WithChatModel(mock))
	// The body condition returns to the loop head on iteration 0 and
	// leaves the region through its false branch on iteration 1. The
	// escape path must stay runnable even though iteration 0 killed it.
	g := mustGraph(t,
		[]*Node{
			{ID: "start", Type: NodeStart},
			{ID: "loop", Type: NodeLoop, Config: Config{"max_iterations": 5}},
			{ID: "check", Type: NodeCondition, Config: Config{
				"left": "{{loop.index}}", "operator": "==", "right": 0,
			}},
			{ID: "work", Type: NodeModel, Config: Config{"prompt": "work"}},
			{ID: "after", Type: NodeModel, Config: Config{"prompt": "wrap up"}},
			{ID: "end", Type: NodeEnd},
		},
		[]Edge{
			{Source: "start", Target: "loop"},
			{Source: "loop", Target: "check", SourceHandle: HandleBody},
			{Source: "check", Target: "work", SourceHandle: HandleTrue},
			{Source: "work", Target: "loop"},
			{Source: "check", Target: "after", SourceHandle: HandleFalse},
			{Source: "after", Target: "end"},
			{Source: "loop", Target: "end", SourceHandle: HandleDone},
		},
	)

	result, err := engine.Run(context.Background(), g, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != RunCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	out, ok := result.Output.(map[string]any)
	if !ok || out["text"] != "wrap-up" {
		t.Errorf("expected the escape path output, got %#v", result.Output)
	}

	starts := map[string]int{}
	for _, ev := range result.Trace {
		if ev.Type == emit.NodeStarted {
			starts[ev.NodeID]++
		}
	}
	if starts["check"] != 2 {
		t.Errorf("check started %d times, expected twice", starts["check"])
	}
	if starts["work"] != 1 {
		t.Errorf("work started %d times, expected once", starts["work"])
	}
	if starts["after"] != 1 {
		t.Errorf("after started %d times, expected once", starts["after"])
	}
}

func TestDecideLoop(t *testing.T) {
	t.Run("fixed count continues under the cap", func(t *testing.T) {
		n := loopNode("l", 2)
		ec := testContext(nil, nil)

		d, err := decideLoop(n, ec, 0)
		if err != nil || !d.cont {
			t.Fatalf("expected continue at iteration 0, got %v %v", d, err)
		}
		if d.binding["index"] != 0 {
			t.Errorf("expected index binding 0, got %v", d.binding["index"])
		}
		d, err = decideLoop(n, ec, 2)
		if err != nil || d.cont {
			t.Fatalf("expected exit at the cap, got %v %v", d, err)
		}
	})

	t.Run("collection binds item", func(t *testing.T) {
		n := &Node{ID: "l", Type: NodeLoop, Config: Config{
			"max_iterations": 10,
			"collection":     "{{input}}",
		}}
		ec := testContext([]any{"a", "b"}, nil)

		d, err := decideLoop(n, ec, 1)
		if err != nil || !d.cont {
			t.Fatalf("expected continue, got %v %v", d, err)
		}
		if d.binding["item"] != "b" {
			t.Errorf("expected item b, got %v", d.binding["item"])
		}
		d, err = decideLoop(n, ec, 2)
		if err != nil || d.cont {
			t.Fatalf("expected exhausted collection to exit, got %v %v", d, err)
		}
	})

	t.Run("non-list collection fails", func(t *testing.T) {
		n := &Node{ID: "l", Type: NodeLoop, Config: Config{
			"max_iterations": 10,
			"collection":     "{{input}}",
		}}
		ec := testContext("not a list", nil)

		if _, err := decideLoop(n, ec, 0); err == nil {
			t.Fatal("expected error for non-list collection")
		}
	})
}
