package flow

import "fmt"

// loopRegion is the subgraph bounded by a Loop node: computed once during
// validation via back-edge detection, then consulted by the scheduler on
// every iteration instead of being re-derived.
type loopRegion struct {
	loopID    string
	bodyEntry string
	bodyEdge  int
	doneEdge  int

	// body holds every node inside the region (excluding the Loop node).
	body map[string]bool

	// backSources are the body nodes whose completion re-enters the
	// loop head. The latest back source's output is the iteration's
	// result.
	backSources map[string]bool
}

// analysis is the validated execution plan derived from a Graph: the
// single Start node, the End nodes reachable from it, and the loop region
// table keyed by Loop node ID.
type analysis struct {
	startID string
	endIDs  []string
	regions map[string]*loopRegion

	// inLoop maps each body node to its owning Loop node.
	inLoop map[string]string
}

// Validate checks a graph for structural well-formedness. It returns nil
// or a *GraphError; a graph that fails validation must never be executed
// (and Engine.Execute refuses to).
//
// Checks, in order:
//   - every node's config satisfies its type's schema
//   - every edge references existing nodes (DanglingEdge)
//   - exactly one Start node (MissingStart)
//   - every Condition node covers both "true" and "false" handles
//     (UnresolvedBranch)
//   - every Loop node carries "body" and "done" handles and its body
//     region closes back on the loop head (InvalidConfig)
//   - every cycle passes through exactly one Loop node acting as its
//     entry/exit guard (CyclicWithoutLoop)
//   - at least one End node is reachable from Start (UnreachableEnd)
func Validate(g *Graph) error {
	_, err := analyze(g)
	return err
}

func analyze(g *Graph) (*analysis, error) {
	for _, n := range g.Nodes() {
		if err := validateNodeConfig(n); err != nil {
			return nil, err
		}
	}

	for _, e := range g.Edges() {
		if _, ok := g.Node(e.Source); !ok {
			return nil, &GraphError{Code: CodeDanglingEdge, EdgeID: e.ID,
				Message: fmt.Sprintf("edge source %q does not exist", e.Source)}
		}
		if _, ok := g.Node(e.Target); !ok {
			return nil, &GraphError{Code: CodeDanglingEdge, EdgeID: e.ID,
				Message: fmt.Sprintf("edge target %q does not exist", e.Target)}
		}
	}

	var startID string
	starts := 0
	for _, n := range g.Nodes() {
		if n.Type == NodeStart {
			starts++
			startID = n.ID
		}
	}
	if starts != 1 {
		return nil, graphErr(CodeMissingStart, "",
			fmt.Sprintf("graph must have exactly one start node, found %d", starts))
	}

	for _, n := range g.Nodes() {
		if n.Type != NodeCondition {
			continue
		}
		handles := map[string]bool{}
		for _, i := range g.outEdges(n.ID) {
			handles[g.edge(i).SourceHandle] = true
		}
		if !handles[HandleTrue] || !handles[HandleFalse] {
			return nil, graphErr(CodeUnresolvedBranch, n.ID,
				"condition node must have outgoing edges for both true and false handles")
		}
	}

	an := &analysis{
		startID: startID,
		regions: make(map[string]*loopRegion),
		inLoop:  make(map[string]string),
	}

	for _, n := range g.Nodes() {
		if n.Type != NodeLoop {
			continue
		}
		region, err := buildLoopRegion(g, n.ID)
		if err != nil {
			return nil, err
		}
		an.regions[n.ID] = region
		for id := range region.body {
			if owner, taken := an.inLoop[id]; taken {
				return nil, graphErr(CodeCyclicWithoutLoop, id,
					fmt.Sprintf("node belongs to the bodies of loops %q and %q; loop regions must not overlap", owner, n.ID))
			}
			an.inLoop[id] = n.ID
		}
	}

	if err := checkCycles(g, an); err != nil {
		return nil, err
	}

	// Reachability from Start, following all edges.
	reached := map[string]bool{startID: true}
	queue := []string{startID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, i := range g.outEdges(cur) {
			t := g.edge(i).Target
			if !reached[t] {
				reached[t] = true
				queue = append(queue, t)
			}
		}
	}
	for _, n := range g.Nodes() {
		if n.Type == NodeEnd && reached[n.ID] {
			an.endIDs = append(an.endIDs, n.ID)
		}
	}
	if len(an.endIDs) == 0 {
		return nil, graphErr(CodeUnreachableEnd, "",
			"no end node is reachable from the start node")
	}

	return an, nil
}

// buildLoopRegion computes the body region of a Loop node: the nodes
// reachable from its "body" edge that can flow back into the loop head.
func buildLoopRegion(g *Graph, loopID string) (*loopRegion, error) {
	bodyEdge, bodyIdx, ok := g.outEdge(loopID, HandleBody)
	if !ok {
		return nil, graphErr(CodeInvalidConfig, loopID,
			`loop node requires an outgoing edge with the "body" handle`)
	}
	_, doneIdx, ok := g.outEdge(loopID, HandleDone)
	if !ok {
		return nil, graphErr(CodeInvalidConfig, loopID,
			`loop node requires an outgoing edge with the "done" handle`)
	}

	// Forward sweep from the body entry, never expanding through the
	// loop head itself.
	forward := map[string]bool{}
	stack := []string{bodyEdge.Target}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == loopID || forward[cur] {
			continue
		}
		forward[cur] = true
		for _, i := range g.outEdges(cur) {
			stack = append(stack, g.edge(i).Target)
		}
	}

	// Back edges: edges into the loop head whose source lies in the
	// forward sweep. Without one the body never returns control and the
	// region is malformed.
	backSources := map[string]bool{}
	for _, i := range g.inEdges(loopID) {
		if forward[g.edge(i).Source] {
			backSources[g.edge(i).Source] = true
		}
	}
	if len(backSources) == 0 {
		return nil, graphErr(CodeInvalidConfig, loopID,
			"loop body never returns to the loop node; a body edge must close the cycle")
	}

	// The body is the part of the forward sweep that can reach a back
	// source again staying inside the sweep.
	reachesBack := map[string]bool{}
	for src := range backSources {
		stack = append(stack, src)
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reachesBack[cur] || !forward[cur] {
			continue
		}
		reachesBack[cur] = true
		for _, i := range g.inEdges(cur) {
			stack = append(stack, g.edge(i).Source)
		}
	}

	body := map[string]bool{}
	for id := range forward {
		if reachesBack[id] {
			body[id] = true
		}
	}
	for id := range body {
		n, _ := g.Node(id)
		if n.Type == NodeLoop {
			return nil, graphErr(CodeCyclicWithoutLoop, loopID,
				fmt.Sprintf("loop body of %q contains loop node %q; a cycle must pass through exactly one loop node", loopID, id))
		}
		if n.Type == NodeStart || n.Type == NodeEnd {
			return nil, graphErr(CodeInvalidConfig, loopID,
				fmt.Sprintf("%s node %q cannot be part of a loop body", n.Type, id))
		}
	}

	return &loopRegion{
		loopID:      loopID,
		bodyEntry:   bodyEdge.Target,
		bodyEdge:    bodyIdx,
		doneEdge:    doneIdx,
		body:        body,
		backSources: backSources,
	}, nil
}

// checkCycles walks the whole graph with three-color DFS and rejects any
// back edge that does not land on a Loop node from inside that node's own
// body region.
func checkCycles(g *Graph, an *analysis) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, i := range g.outEdges(id) {
			t := g.edge(i).Target
			switch color[t] {
			case white:
				if err := visit(t); err != nil {
					return err
				}
			case gray:
				n, _ := g.Node(t)
				if n.Type != NodeLoop {
					return &GraphError{Code: CodeCyclicWithoutLoop, EdgeID: g.edge(i).ID,
						Message: fmt.Sprintf("cycle re-enters %q which is not a loop node", t)}
				}
				region := an.regions[t]
				if region == nil || !region.backSources[id] {
					return &GraphError{Code: CodeCyclicWithoutLoop, EdgeID: g.edge(i).ID,
						Message: fmt.Sprintf("cycle re-enters loop %q from outside its body region", t)}
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, n := range g.Nodes() {
		if color[n.ID] == white {
			if err := visit(n.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
