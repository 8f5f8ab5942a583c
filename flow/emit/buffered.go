package emit

import "sync"

// BufferedEmitter stores every event in memory, organized by run ID, and
// offers simple history queries. Useful for tests, debugging, and
// rendering a causal explanation of a finished run.
//
// All events are retained until Clear is called; long-lived processes
// with many runs should prefer a persistent trace journal.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// Filter narrows a history query. Zero fields match everything; set
// fields combine with AND.
type Filter struct {
	NodeID string
	Type   Type
}

// NewBufferedEmitter creates an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit appends the event to its run's history.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// History returns all events for a run in emission order.
func (b *BufferedEmitter) History(runID string) []Event {
	return b.HistoryWithFilter(runID, Filter{})
}

// HistoryWithFilter returns the events for a run matching the filter, in
// emission order.
func (b *BufferedEmitter) HistoryWithFilter(runID string, f Filter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, ev := range b.events[runID] {
		if f.NodeID != "" && ev.NodeID != f.NodeID {
			continue
		}
		if f.Type != "" && ev.Type != f.Type {
			continue
		}
		result = append(result, ev)
	}
	return result
}

// Clear removes one run's history, or everything when runID is empty.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if runID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, runID)
}
