package flow

import (
	"errors"
	"testing"
)

// mustGraph assembles a graph from shorthand node and edge specs,
// failing the test on builder errors.
func mustGraph(t *testing.T, nodes []*Node, edges []Edge) *Graph {
	t.Helper()
	g := NewGraph("test")
	for _, n := range nodes {
		if err := g.AddNode(n); err != nil {
			t.Fatalf("AddNode(%s): %v", n.ID, err)
		}
	}
	for _, e := range edges {
		if err := g.AddEdge(e); err != nil {
			t.Fatalf("AddEdge(%s->%s): %v", e.Source, e.Target, err)
		}
	}
	return g
}

func modelNode(id string) *Node {
	return &Node{ID: id, Type: NodeModel, Config: Config{"prompt": "say hi"}}
}

func conditionNode(id string) *Node {
	return &Node{ID: id, Type: NodeCondition, Config: Config{
		"left": "{{input}}", "operator": "==", "right": "yes",
	}}
}

func loopNode(id string, maxIterations int) *Node {
	return &Node{ID: id, Type: NodeLoop, Config: Config{"max_iterations": maxIterations}}
}

func TestValidate_Structural(t *testing.T) {
	tests := []struct {
		name  string
		nodes []*Node
		edges []Edge
		code  GraphErrorCode
	}{
		{
			name:  "no start node",
			nodes: []*Node{modelNode("m"), {ID: "end", Type: NodeEnd}},
			edges: []Edge{{Source: "m", Target: "end"}},
			code:  CodeMissingStart,
		},
		{
			name: "two start nodes",
			nodes: []*Node{
				{ID: "s1", Type: NodeStart}, {ID: "s2", Type: NodeStart},
				{ID: "end", Type: NodeEnd},
			},
			edges: []Edge{{Source: "s1", Target: "end"}, {Source: "s2", Target: "end"}},
			code:  CodeMissingStart,
		},
		{
			name:  "dangling edge target",
			nodes: []*Node{{ID: "s", Type: NodeStart}, {ID: "end", Type: NodeEnd}},
			edges: []Edge{{Source: "s", Target: "end"}, {Source: "s", Target: "ghost"}},
			code:  CodeDanglingEdge,
		},
		{
			name: "condition missing false branch",
			nodes: []*Node{
				{ID: "s", Type: NodeStart}, conditionNode("c"),
				modelNode("m"), {ID: "end", Type: NodeEnd},
			},
			edges: []Edge{
				{Source: "s", Target: "c"},
				{Source: "c", Target: "m", SourceHandle: HandleTrue},
				{Source: "m", Target: "end"},
			},
			code: CodeUnresolvedBranch,
		},
		{
			name: "cycle without loop node",
			nodes: []*Node{
				{ID: "s", Type: NodeStart}, modelNode("a"), modelNode("b"),
				{ID: "end", Type: NodeEnd},
			},
			edges: []Edge{
				{Source: "s", Target: "a"},
				{Source: "a", Target: "b"},
				{Source: "b", Target: "a"},
				{Source: "a", Target: "end"},
			},
			code: CodeCyclicWithoutLoop,
		},
		{
			name:  "no reachable end",
			nodes: []*Node{{ID: "s", Type: NodeStart}, modelNode("m")},
			edges: []Edge{{Source: "s", Target: "m"}},
			code:  CodeUnreachableEnd,
		},
		{
			name: "model without prompt",
			nodes: []*Node{
				{ID: "s", Type: NodeStart},
				{ID: "m", Type: NodeModel, Config: Config{}},
				{ID: "end", Type: NodeEnd},
			},
			edges: []Edge{{Source: "s", Target: "m"}, {Source: "m", Target: "end"}},
			code:  CodeInvalidConfig,
		},
		{
			name: "loop without body handle",
			nodes: []*Node{
				{ID: "s", Type: NodeStart}, loopNode("l", 3),
				modelNode("m"), {ID: "end", Type: NodeEnd},
			},
			edges: []Edge{
				{Source: "s", Target: "l"},
				{Source: "l", Target: "m"},
				{Source: "m", Target: "l"},
				{Source: "l", Target: "end", SourceHandle: HandleDone},
			},
			code: CodeInvalidConfig,
		},
		{
			name: "loop body never returns",
			nodes: []*Node{
				{ID: "s", Type: NodeStart}, loopNode("l", 3),
				modelNode("m"), {ID: "end", Type: NodeEnd},
			},
			edges: []Edge{
				{Source: "s", Target: "l"},
				{Source: "l", Target: "m", SourceHandle: HandleBody},
				{Source: "l", Target: "end", SourceHandle: HandleDone},
			},
			code: CodeInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := mustGraph(t, tt.nodes, tt.edges)
			err := Validate(g)
			if err == nil {
				t.Fatalf("expected %s error, got nil", tt.code)
			}
			var ge *GraphError
			if !errors.As(err, &ge) {
				t.Fatalf("expected *GraphError, got %T: %v", err, err)
			}
			if ge.Code != tt.code {
				t.Errorf("expected code %s, got %s (%v)", tt.code, ge.Code, ge)
			}
		})
	}
}

func TestValidate_AcceptsWellFormedGraphs(t *testing.T) {
	t.Run("linear", func(t *testing.T) {
		g := mustGraph(t,
			[]*Node{{ID: "s", Type: NodeStart}, modelNode("m"), {ID: "end", Type: NodeEnd}},
			[]Edge{{Source: "s", Target: "m"}, {Source: "m", Target: "end"}},
		)
		if err := Validate(g); err != nil {
			t.Fatalf("Validate: %v", err)
		}
	})

	t.Run("branch and join", func(t *testing.T) {
		g := mustGraph(t,
			[]*Node{
				{ID: "s", Type: NodeStart}, conditionNode("c"),
				modelNode("a"), modelNode("b"), {ID: "end", Type: NodeEnd},
			},
			[]Edge{
				{Source: "s", Target: "c"},
				{Source: "c", Target: "a", SourceHandle: HandleTrue},
				{Source: "c", Target: "b", SourceHandle: HandleFalse},
				{Source: "a", Target: "end"},
				{Source: "b", Target: "end"},
			},
		)
		if err := Validate(g); err != nil {
			t.Fatalf("Validate: %v", err)
		}
	})

	t.Run("loop with body region", func(t *testing.T) {
		g := mustGraph(t,
			[]*Node{
				{ID: "s", Type: NodeStart}, loopNode("l", 3),
				modelNode("body"), {ID: "end", Type: NodeEnd},
			},
			[]Edge{
				{Source: "s", Target: "l"},
				{Source: "l", Target: "body", SourceHandle: HandleBody},
				{Source: "body", Target: "l"},
				{Source: "l", Target: "end", SourceHandle: HandleDone},
			},
		)
		if err := Validate(g); err != nil {
			t.Fatalf("Validate: %v", err)
		}

		an, err := analyze(g)
		if err != nil {
			t.Fatalf("analyze: %v", err)
		}
		region := an.regions["l"]
		if region == nil {
			t.Fatal("expected a loop region for l")
		}
		if !region.body["body"] {
			t.Errorf("expected node body in loop region, got %v", region.body)
		}
		if !region.backSources["body"] {
			t.Errorf("expected body as back source, got %v", region.backSources)
		}
	})

	t.Run("overlapping loop bodies rejected", func(t *testing.T) {
		g := mustGraph(t,
			[]*Node{
				{ID: "s", Type: NodeStart},
				loopNode("l1", 2), loopNode("l2", 2),
				modelNode("shared"), {ID: "end", Type: NodeEnd},
			},
			[]Edge{
				{Source: "s", Target: "l1"},
				{Source: "s", Target: "l2"},
				{Source: "l1", Target: "shared", SourceHandle: HandleBody},
				{Source: "l2", Target: "shared", SourceHandle: HandleBody},
				{Source: "shared", Target: "l1"},
				{Source: "shared", Target: "l2"},
				{Source: "l1", Target: "end", SourceHandle: HandleDone},
				{Source: "l2", Target: "end", SourceHandle: HandleDone},
			},
		)
		err := Validate(g)
		var ge *GraphError
		if !errors.As(err, &ge) || ge.Code != CodeCyclicWithoutLoop {
			t.Fatalf("expected CYCLIC_WITHOUT_LOOP, got %v", err)
		}
	})
}
