package flow

import (
	"encoding/json"
	"fmt"
)

// NodeType identifies the behavior of a node in a workflow graph.
//
// The engine ships a fixed node-type vocabulary; each type has a dedicated
// executor and a config schema validated at graph-load time.
type NodeType string

const (
	// NodeStart is the entry point of a graph. Exactly one per graph.
	// Its output is the run input payload, passed through unchanged.
	NodeStart NodeType = "start"

	// NodeEnd terminates a run. Its output (the value of its resolved
	// predecessor) becomes the final run result.
	NodeEnd NodeType = "end"

	// NodeModel calls the configured chat model with a rendered prompt
	// and produces {"text": ...}. May stream deltas before completing.
	NodeModel NodeType = "model"

	// NodeRetrieval queries the configured retriever and produces
	// {"passages": [...]} ordered by descending score.
	NodeRetrieval NodeType = "retrieval"

	// NodeAgent runs a bounded model/tool loop toward a goal and
	// produces {"text": ..., "toolCalls": [...]}.
	NodeAgent NodeType = "agent"

	// NodeHTTPRequest performs an outbound HTTP call and produces
	// {"status": ..., "headers": ..., "body": ...}.
	NodeHTTPRequest NodeType = "http_request"

	// NodeCondition evaluates a comparison and produces
	// {"branch": "true"} or {"branch": "false"}. Pure and synchronous.
	NodeCondition NodeType = "condition"

	// NodeLoop guards a cyclic body region. Iteration control lives in
	// the scheduler; the node's output after exit is
	// {"iterations": [...], "count": N}.
	NodeLoop NodeType = "loop"
)

// Branch handles recognized on outgoing edges of control-flow nodes.
const (
	// HandleTrue and HandleFalse tag the two outgoing paths of a
	// Condition node.
	HandleTrue  = "true"
	HandleFalse = "false"

	// HandleBody tags the edge from a Loop node into its body region.
	HandleBody = "body"

	// HandleDone tags the edge a Loop node arms after its final
	// iteration.
	HandleDone = "done"
)

// Node is a typed unit of work in a workflow graph.
//
// Config is the node's type-specific configuration map, validated against
// the type's schema by Validate. Canvas metadata (position, styling) never
// appears here; ParseDefinition drops it at decode time.
type Node struct {
	ID     string
	Type   NodeType
	Label  string
	Config Config
}

// Edge is a directed data-flow link between two nodes.
//
// SourceHandle disambiguates multiple outgoing paths from branching nodes:
// Condition nodes emit "true"/"false" handles, Loop nodes emit
// "body"/"done". Unconditional edges leave it empty.
type Edge struct {
	ID           string
	Source       string
	Target       string
	SourceHandle string
	Label        string
}

// Graph is an immutable workflow definition: nodes, edges, and per-node
// configuration. A Graph is read-only during execution and may be shared
// across concurrent runs.
//
// Build a Graph programmatically with AddNode/AddEdge, or decode a stored
// canvas definition with ParseDefinition. Either way, run Validate (or let
// Engine.Execute do it) before executing.
type Graph struct {
	Name string

	nodes     map[string]*Node
	nodeOrder []string
	edges     []Edge

	// edge indexes by endpoint, in declaration order. Declaration order
	// is the deterministic tie-break for scheduling.
	in  map[string][]int
	out map[string][]int
}

// NewGraph creates an empty graph.
func NewGraph(name string) *Graph {
	return &Graph{
		Name:  name,
		nodes: make(map[string]*Node),
		in:    make(map[string][]int),
		out:   make(map[string][]int),
	}
}

// AddNode registers a node. Node IDs must be unique within the graph.
func (g *Graph) AddNode(n *Node) error {
	if n == nil {
		return fmt.Errorf("node cannot be nil")
	}
	if n.ID == "" {
		return fmt.Errorf("node ID cannot be empty")
	}
	if _, exists := g.nodes[n.ID]; exists {
		return fmt.Errorf("duplicate node ID: %s", n.ID)
	}
	if n.Config == nil {
		n.Config = Config{}
	}
	g.nodes[n.ID] = n
	g.nodeOrder = append(g.nodeOrder, n.ID)
	return nil
}

// AddEdge registers a directed edge. Endpoint existence is checked by
// Validate, not here, so graphs can be assembled in any order.
func (g *Graph) AddEdge(e Edge) error {
	if e.Source == "" || e.Target == "" {
		return fmt.Errorf("edge source and target cannot be empty")
	}
	if e.ID == "" {
		e.ID = fmt.Sprintf("e%d", len(g.edges))
	}
	idx := len(g.edges)
	g.edges = append(g.edges, e)
	g.out[e.Source] = append(g.out[e.Source], idx)
	g.in[e.Target] = append(g.in[e.Target], idx)
	return nil
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in declaration order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edges returns all edges in declaration order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// inEdges returns the declaration indexes of edges entering id.
func (g *Graph) inEdges(id string) []int { return g.in[id] }

// outEdges returns the declaration indexes of edges leaving id.
func (g *Graph) outEdges(id string) []int { return g.out[id] }

// edge returns the edge at declaration index i.
func (g *Graph) edge(i int) Edge { return g.edges[i] }

// outEdge returns the first outgoing edge of id carrying the given source
// handle, or false when none exists.
func (g *Graph) outEdge(id, handle string) (Edge, int, bool) {
	for _, i := range g.out[id] {
		if g.edges[i].SourceHandle == handle {
			return g.edges[i], i, true
		}
	}
	return Edge{}, -1, false
}

// Definition is the stored JSON form of a workflow graph, as produced by
// the canvas editor. Only execution-relevant fields are decoded; position,
// styling, and other editor metadata are ignored.
type Definition struct {
	Name  string           `json:"name"`
	Nodes []NodeDefinition `json:"nodes"`
	Edges []EdgeDefinition `json:"edges"`
}

// NodeDefinition is the serialized form of a single node.
type NodeDefinition struct {
	ID     string         `json:"id"`
	Type   NodeType       `json:"type"`
	Label  string         `json:"label,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

// EdgeDefinition is the serialized form of a single edge.
type EdgeDefinition struct {
	ID           string `json:"id,omitempty"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	Label        string `json:"label,omitempty"`
}

// ParseDefinition decodes a stored graph definition and validates it,
// returning a ready-to-execute Graph.
//
// The decode is permissive about extra fields (canvas position/styling is
// silently dropped); the validation is not — any structural or config
// schema problem returns a *GraphError and no Graph.
func ParseDefinition(data []byte) (*Graph, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("decode graph definition: %w", err)
	}
	return def.Graph()
}

// Graph builds and validates a Graph from a decoded Definition.
func (d *Definition) Graph() (*Graph, error) {
	g := NewGraph(d.Name)
	for _, nd := range d.Nodes {
		n := &Node{ID: nd.ID, Type: nd.Type, Label: nd.Label, Config: Config(nd.Config)}
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	for _, ed := range d.Edges {
		e := Edge{ID: ed.ID, Source: ed.Source, Target: ed.Target, SourceHandle: ed.SourceHandle, Label: ed.Label}
		if err := g.AddEdge(e); err != nil {
			return nil, err
		}
	}
	if err := Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}
