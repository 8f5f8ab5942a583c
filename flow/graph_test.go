package flow

import (
	"errors"
	"testing"
)

func TestParseDefinition(t *testing.T) {
	t.Run("decodes a stored definition and drops canvas extras", func(t *testing.T) {
		data := []byte(`{
			"name": "support-triage",
			"nodes": [
				{"id": "start", "type": "start", "position": {"x": 10, "y": 20}},
				{"id": "classify", "type": "model", "label": "Classify",
				 "config": {"prompt": "Classify: {{input.ticket}}"},
				 "style": {"color": "#fff"}},
				{"id": "end", "type": "end"}
			],
			"edges": [
				{"id": "e-1", "source": "start", "target": "classify", "animated": true},
				{"source": "classify", "target": "end"}
			]
		}`)

		g, err := ParseDefinition(data)
		if err != nil {
			t.Fatalf("ParseDefinition: %v", err)
		}
		if g.Name != "support-triage" {
			t.Errorf("unexpected name %q", g.Name)
		}
		if len(g.Nodes()) != 3 || len(g.Edges()) != 2 {
			t.Fatalf("expected 3 nodes and 2 edges, got %d/%d", len(g.Nodes()), len(g.Edges()))
		}

		n, ok := g.Node("classify")
		if !ok {
			t.Fatal("classify node missing")
		}
		if n.Label != "Classify" {
			t.Errorf("unexpected label %q", n.Label)
		}
		if prompt, _ := n.Config.String("prompt"); prompt != "Classify: {{input.ticket}}" {
			t.Errorf("unexpected prompt %q", prompt)
		}

		edges := g.Edges()
		if edges[0].ID != "e-1" {
			t.Errorf("explicit edge ID lost: %q", edges[0].ID)
		}
		if edges[1].ID == "" {
			t.Error("expected an auto-assigned edge ID")
		}
	})

	t.Run("validates after decode", func(t *testing.T) {
		data := []byte(`{
			"name": "broken",
			"nodes": [{"id": "m", "type": "model", "config": {"prompt": "x"}}],
			"edges": []
		}`)
		_, err := ParseDefinition(data)
		var ge *GraphError
		if !errors.As(err, &ge) || ge.Code != CodeMissingStart {
			t.Fatalf("expected MISSING_START, got %v", err)
		}
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		if _, err := ParseDefinition([]byte(`{"nodes": [`)); err == nil {
			t.Fatal("expected decode error")
		}
	})

	t.Run("rejects duplicate node IDs", func(t *testing.T) {
		data := []byte(`{
			"name": "dup",
			"nodes": [
				{"id": "start", "type": "start"},
				{"id": "start", "type": "end"}
			],
			"edges": []
		}`)
		if _, err := ParseDefinition(data); err == nil {
			t.Fatal("expected duplicate node ID error")
		}
	})
}

func TestGraphBuilder(t *testing.T) {
	t.Run("rejects empty node ID", func(t *testing.T) {
		g := NewGraph("t")
		if err := g.AddNode(&Node{Type: NodeStart}); err == nil {
			t.Fatal("expected error for empty node ID")
		}
	})

	t.Run("auto-assigns edge IDs in declaration order", func(t *testing.T) {
		g := NewGraph("t")
		_ = g.AddEdge(Edge{Source: "a", Target: "b"})
		_ = g.AddEdge(Edge{Source: "b", Target: "c"})
		edges := g.Edges()
		if edges[0].ID != "e0" || edges[1].ID != "e1" {
			t.Errorf("unexpected edge IDs: %q, %q", edges[0].ID, edges[1].ID)
		}
	})

	t.Run("outEdge finds by handle", func(t *testing.T) {
		g := NewGraph("t")
		_ = g.AddEdge(Edge{Source: "c", Target: "x", SourceHandle: HandleTrue})
		_ = g.AddEdge(Edge{Source: "c", Target: "y", SourceHandle: HandleFalse})

		e, _, ok := g.outEdge("c", HandleFalse)
		if !ok || e.Target != "y" {
			t.Errorf("outEdge(false) = %+v, %v", e, ok)
		}
		if _, _, ok := g.outEdge("c", HandleBody); ok {
			t.Error("expected no body edge")
		}
	})
}
