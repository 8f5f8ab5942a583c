package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tessellate-ai/floweave/flow/emit"
)

// The scheduler executes a validated graph as a sequence of dispatch
// batches: compute the ready set, run it under the concurrency limit,
// merge the outcomes on the scheduler goroutine, repeat. Executors never
// touch shared state directly; everything they report flows back through
// their batch outcome or the mutex-guarded event sink.
//
// Edge lifecycle: pending until the source node completes, then either
// satisfied (data flows) or dead (the untaken side of a branch). A node
// is ready when it has at least one satisfied in-edge and no pending
// ones; dead in-edges are vacuously settled, which is what lets a join
// below a Condition fire from the taken side alone. A node whose
// in-edges are all dead is dead itself, and no edge leaving it can ever
// be satisfied. Deadness is recomputed from the edge states each batch
// rather than cached: a loop iteration re-arming its body resurrects
// paths a previous iteration's branch decision had killed.

type edgeState uint8

const (
	edgePending edgeState = iota
	edgeSatisfied
	edgeDead
)

type run struct {
	engine *Engine
	graph  *Graph
	an     *analysis
	ec     *ExecutionContext
	events chan<- emit.Event

	// mu guards seq and serializes event delivery; executor goroutines
	// emit deltas concurrently with the scheduler.
	mu  sync.Mutex
	seq int64

	// edges holds per-edge state, indexed by declaration index.
	edges []edgeState

	// dead marks nodes that can never execute in this run.
	dead map[string]bool

	// loopStarted marks Loop nodes whose first activation has been
	// announced.
	loopStarted map[string]bool

	// pendingIter holds, per Loop node, the output of the back-source
	// that most recently completed; consumed as the iteration's result
	// when the loop head advances.
	pendingIter map[string]any
}

// emit stamps and delivers one event to the run's channel and the
// engine's mirror emitter.
func (r *run) emit(ev emit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	ev.Seq = r.seq
	ev.RunID = r.ec.RunID()
	ev.Time = time.Now()
	r.events <- ev
	if r.engine.emitter != nil {
		r.engine.emitter.Emit(ev)
	}
}

func (r *run) emitDelta(nodeID, delta string) {
	r.emit(emit.Event{Type: emit.NodeStreamDelta, NodeID: nodeID, Delta: delta})
}

// loop is the scheduler main loop. It runs on its own goroutine and owns
// all run state mutation.
func (r *run) loop(ctx context.Context) {
	r.edges = make([]edgeState, len(r.graph.edges))
	r.dead = make(map[string]bool)
	r.loopStarted = make(map[string]bool)
	r.pendingIter = make(map[string]any)

	for {
		if ctx.Err() != nil || r.ec.Cancelled() {
			r.engine.metrics.runFinished(RunCancelled)
			r.emit(emit.Event{Type: emit.RunCancelled})
			return
		}

		// Loop advancement changes edge states and deadness changes
		// which loops can advance, so alternate the two to a fixpoint.
		for {
			r.propagateDeadness()
			moved, nodeID, err := r.advanceLoops()
			if err != nil {
				r.failRun(nodeID, err)
				return
			}
			if !moved {
				break
			}
		}

		// A resolved End node completes the run; its value is the
		// final output.
		for _, endID := range r.an.endIDs {
			if r.ec.isVisited(endID) {
				out, _ := r.ec.Variable(endID)
				r.engine.metrics.runFinished(RunCompleted)
				r.emit(emit.Event{Type: emit.RunCompleted, Output: out})
				return
			}
		}

		ready := r.readySet()
		r.engine.metrics.readySet(len(ready))
		if len(ready) == 0 {
			r.failRun("", ErrNoProgress)
			return
		}

		outcomes := r.dispatch(ctx, ready)

		// Merge in dispatch order: successes settle, then the first
		// failure (if any) fails the run.
		var failed *outcome
		for i := range outcomes {
			oc := &outcomes[i]
			if oc.err != nil {
				if failed == nil {
					failed = oc
				}
				continue
			}
			r.settle(oc.node, oc.value)
		}
		if failed != nil {
			if ctx.Err() != nil || r.ec.Cancelled() {
				continue // top of loop reports cancellation
			}
			r.failRun(failed.node.ID, failed.err)
			return
		}
	}
}

func (r *run) failRun(nodeID string, err error) {
	if nodeID != "" {
		r.emit(emit.Event{Type: emit.NodeFailed, NodeID: nodeID, Err: err.Error()})
	}
	r.engine.metrics.runFinished(RunFailed)
	r.emit(emit.Event{Type: emit.RunFailed, NodeID: nodeID, Err: err.Error()})
}

// settle records a completed node's output and arms its outgoing edges.
func (r *run) settle(n *Node, value any) {
	r.ec.setResult(n.ID, value)

	// A back-source completion is a candidate iteration result for its
	// loop; the latest one wins.
	if loopID, ok := r.an.inLoop[n.ID]; ok {
		if region := r.an.regions[loopID]; region.backSources[n.ID] {
			r.pendingIter[loopID] = value
		}
	}

	switch n.Type {
	case NodeCondition:
		branch := ""
		if m, ok := value.(map[string]any); ok {
			branch, _ = m["branch"].(string)
		}
		for _, i := range r.graph.outEdges(n.ID) {
			e := r.graph.edge(i)
			if e.SourceHandle == branch || e.SourceHandle == "" {
				r.edges[i] = edgeSatisfied
			} else {
				r.edges[i] = edgeDead
			}
		}
	default:
		for _, i := range r.graph.outEdges(n.ID) {
			r.edges[i] = edgeSatisfied
		}
	}

	r.emit(emit.Event{Type: emit.NodeCompleted, NodeID: n.ID, Output: value})
}

// advanceLoops sweeps Loop nodes once, settling each that can move. A
// loop head advances on first activation (external in-edges settled) and
// again whenever a back edge from its body is satisfied, either starting
// the next iteration or exiting through the "done" edge. The caller
// alternates sweeps with deadness recomputation until nothing moves.
func (r *run) advanceLoops() (bool, string, error) {
	moved := false
	for _, n := range r.graph.Nodes() {
		if n.Type != NodeLoop {
			continue
		}
		region := r.an.regions[n.ID]
		if r.ec.isVisited(n.ID) || r.dead[n.ID] {
			continue
		}

		iteration := r.ec.loopCounters[n.ID]
		if iteration == 0 {
			if !r.externallyActivated(n.ID, region) {
				continue
			}
		} else if !r.backEdgeSatisfied(n.ID, region) {
			continue
		}

		if !r.loopStarted[n.ID] {
			r.loopStarted[n.ID] = true
			r.emit(emit.Event{Type: emit.NodeStarted, NodeID: n.ID})
		}

		// The just-finished iteration's result, if any.
		if v, ok := r.pendingIter[n.ID]; ok {
			r.ec.loopResults[n.ID] = append(r.ec.loopResults[n.ID], v)
			delete(r.pendingIter, n.ID)
		}

		dec, err := decideLoop(n, r.ec, iteration)
		if err != nil {
			return false, n.ID, err
		}

		if dec.cont {
			r.ec.loopCounters[n.ID] = iteration + 1
			r.ec.variables[n.ID] = dec.binding
			r.ec.resetBody(region.body)
			r.resetBodyEdges(region)
			r.edges[region.bodyEdge] = edgeSatisfied
		} else {
			results := r.ec.loopResults[n.ID]
			if results == nil {
				results = []any{}
			}
			aggregate := map[string]any{
				"iterations": results,
				"count":      len(results),
			}
			r.ec.setResult(n.ID, aggregate)
			if iteration == 0 {
				// Body never ran; kill it so joins below the loop
				// don't wait on it.
				r.edges[region.bodyEdge] = edgeDead
			}
			r.edges[region.doneEdge] = edgeSatisfied
			r.emit(emit.Event{Type: emit.NodeCompleted, NodeID: n.ID, Output: aggregate})
		}
		moved = true
	}
	return moved, "", nil
}

// externallyActivated reports whether a Loop node's non-back in-edges
// are all settled with at least one satisfied.
func (r *run) externallyActivated(loopID string, region *loopRegion) bool {
	satisfied := false
	for _, i := range r.graph.inEdges(loopID) {
		if region.backSources[r.graph.edge(i).Source] {
			continue
		}
		switch {
		case r.edges[i] == edgeSatisfied:
			satisfied = true
		case r.edgeUnreachable(i):
			// vacuously settled
		default:
			return false
		}
	}
	return satisfied
}

// backEdgeSatisfied reports whether any back edge into the loop head has
// been armed by a body completion.
func (r *run) backEdgeSatisfied(loopID string, region *loopRegion) bool {
	for _, i := range r.graph.inEdges(loopID) {
		if region.backSources[r.graph.edge(i).Source] && r.edges[i] == edgeSatisfied {
			return true
		}
	}
	return false
}

// resetBodyEdges returns every edge originating inside the body region
// to pending so the next iteration re-arms them. Deadness derived from
// those edges falls away on the next recomputation.
func (r *run) resetBodyEdges(region *loopRegion) {
	for i := range r.graph.edges {
		if region.body[r.graph.edges[i].Source] {
			r.edges[i] = edgePending
		}
	}
}

// propagateDeadness recomputes from scratch which nodes can never
// execute given the current edge states. Loop nodes consider only
// external in-edges, since back edges stay pending until the body runs;
// a started loop whose every back source has died is dead too, because
// no iteration result can ever reach it.
func (r *run) propagateDeadness() {
	r.dead = make(map[string]bool)
	for changed := true; changed; {
		changed = false
		for _, n := range r.graph.Nodes() {
			if r.dead[n.ID] || r.ec.isVisited(n.ID) {
				continue
			}

			if n.Type == NodeLoop && r.loopAbandoned(n.ID) {
				r.dead[n.ID] = true
				changed = true
				continue
			}

			ins := r.graph.inEdges(n.ID)
			if len(ins) == 0 {
				continue
			}

			allDead := true
			for _, i := range ins {
				if n.Type == NodeLoop && r.an.regions[n.ID].backSources[r.graph.edge(i).Source] {
					continue
				}
				if !r.edgeUnreachable(i) {
					allDead = false
					break
				}
			}
			if allDead {
				r.dead[n.ID] = true
				changed = true
			}
		}
	}
}

// edgeUnreachable reports whether an edge can no longer be satisfied:
// killed by a branch decision, or originating from a node that will
// never run.
func (r *run) edgeUnreachable(i int) bool {
	return r.edges[i] == edgeDead || r.dead[r.graph.edge(i).Source]
}

// loopAbandoned reports whether a started loop is waiting on a back edge
// that can never arrive because every back source died. Happens when a
// branch inside the body escapes the region instead of returning to the
// loop head.
func (r *run) loopAbandoned(loopID string) bool {
	if r.ec.loopCounters[loopID] == 0 {
		return false
	}
	region := r.an.regions[loopID]
	for _, i := range r.graph.inEdges(loopID) {
		if !region.backSources[r.graph.edge(i).Source] {
			continue
		}
		if r.edges[i] == edgeSatisfied || !r.edgeUnreachable(i) {
			return false
		}
	}
	return true
}

// readyNode pairs a runnable node with its activating edge index, the
// deterministic dispatch tie-break.
type readyNode struct {
	node *Node

	// activating is the smallest satisfied in-edge declaration index,
	// or -1 for the Start node.
	activating int
}

// readySet computes the nodes runnable right now, ordered by activating
// edge declaration index.
func (r *run) readySet() []readyNode {
	var ready []readyNode
	for _, n := range r.graph.Nodes() {
		if n.Type == NodeLoop || r.ec.isVisited(n.ID) || r.dead[n.ID] {
			continue
		}
		ins := r.graph.inEdges(n.ID)
		if len(ins) == 0 {
			if n.Type == NodeStart {
				ready = append(ready, readyNode{node: n, activating: -1})
			}
			continue
		}

		activating := -1
		settled := true
		for _, i := range ins {
			switch {
			case r.edges[i] == edgeSatisfied:
				if activating == -1 {
					activating = i
				}
			case r.edgeUnreachable(i):
				// vacuously settled
			default:
				settled = false
			}
		}
		if settled && activating >= 0 {
			ready = append(ready, readyNode{node: n, activating: activating})
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		return ready[i].activating < ready[j].activating
	})
	return ready
}

type outcome struct {
	node  *Node
	value any
	err   error
}

// dispatch runs one batch under the concurrency limit and waits for all
// of it to settle. Each node gets its own outcome slot; a failing node
// never short-circuits its siblings.
func (r *run) dispatch(ctx context.Context, ready []readyNode) []outcome {
	outcomes := make([]outcome, len(ready))

	var grp errgroup.Group
	grp.SetLimit(r.engine.concurrency)
	for i, rn := range ready {
		i, rn := i, rn
		in := r.buildInputs(rn)
		grp.Go(func() error {
			value, err := r.execute(ctx, rn.node, in)
			outcomes[i] = outcome{node: rn.node, value: value, err: err}
			return nil
		})
	}
	_ = grp.Wait()

	return outcomes
}

// buildInputs snapshots a ready node's inputs before dispatch: the
// activating edge's value as primary, plus every satisfied predecessor's
// output.
func (r *run) buildInputs(rn readyNode) Inputs {
	in := Inputs{
		Node:   rn.node,
		Values: make(map[string]any),
		ec:     r.ec,
	}
	if rn.activating < 0 {
		in.Primary = r.ec.Input()
		return in
	}
	for _, i := range r.graph.inEdges(rn.node.ID) {
		if r.edges[i] != edgeSatisfied {
			continue
		}
		src := r.graph.edge(i).Source
		if v, ok := r.ec.Variable(src); ok {
			in.Values[src] = v
		}
	}
	in.Primary, _ = r.ec.Variable(r.graph.edge(rn.activating).Source)
	return in
}

// execute runs one node on an executor goroutine, applying the node
// timeout per attempt and the retry policy across attempts.
func (r *run) execute(ctx context.Context, n *Node, in Inputs) (any, error) {
	exec, ok := r.engine.executors[n.Type]
	if !ok {
		return nil, fatalErr("INVALID_CONFIG",
			fmt.Sprintf("no executor registered for node type %q", n.Type), nil)
	}

	h := &RunHandle{
		runID:      r.ec.RunID(),
		nodeID:     n.ID,
		ec:         r.ec,
		emitDelta:  r.emitDelta,
		chat:       r.engine.chat,
		retriever:  r.engine.retriever,
		httpClient: r.engine.httpClient,
		tools:      r.engine.tools,
		usage:      r.engine.usage,
	}

	r.emit(emit.Event{Type: emit.NodeStarted, NodeID: n.ID})
	r.engine.metrics.nodeStarted()
	start := time.Now()

	attempts := 1
	if retryableNodeTypes[n.Type] {
		attempts = r.engine.retry.MaxAttempts
	}

	var value any
	var err error
	for attempt := 0; ; attempt++ {
		value, err = executeWithTimeout(ctx, exec, in, h, r.engine.nodeTimeout)
		if err == nil {
			break
		}
		if ctx.Err() != nil || !IsRetryable(err) || attempt+1 >= attempts {
			break
		}
		r.engine.metrics.nodeRetried(n.Type)
		select {
		case <-time.After(r.engine.retry.backoff(attempt)):
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	status := "success"
	if err != nil {
		status = "error"
		var ne *NodeError
		if errors.As(err, &ne) {
			if ne.NodeID == "" {
				ne.NodeID = n.ID
			}
			if ne.Code == "NODE_TIMEOUT" {
				status = "timeout"
			}
		}
	}
	r.engine.metrics.nodeFinished(n.Type, status, time.Since(start))

	return value, err
}
