// Package store persists run event traces. A Journal records every
// event a run emits and can reconstruct the full ordered trace later,
// which is the basis for explaining why a run did what it did.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/tessellate-ai/floweave/flow/emit"
)

// Journal is an append-only store of run events.
//
// Events arrive in per-run sequence order when fed from a single run's
// stream; Trace returns them sorted by sequence regardless.
type Journal interface {
	// Append records one event.
	Append(ctx context.Context, ev emit.Event) error

	// Trace returns all recorded events of a run in sequence order.
	Trace(ctx context.Context, runID string) ([]emit.Event, error)

	// Runs returns the recorded run IDs, most recently started first,
	// up to limit (0 means no limit).
	Runs(ctx context.Context, limit int) ([]string, error)

	// Close releases underlying resources.
	Close() error
}

// ErrClosed is returned by journal operations after Close.
var ErrClosed = errors.New("journal is closed")

// MemoryJournal is an in-process Journal for tests and short-lived
// tools. Everything is retained until Close.
type MemoryJournal struct {
	mu     sync.RWMutex
	events map[string][]emit.Event
	order  []string
	closed bool
}

// NewMemoryJournal creates an empty MemoryJournal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{events: make(map[string][]emit.Event)}
}

// Append records one event.
func (m *MemoryJournal) Append(ctx context.Context, ev emit.Event) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, seen := m.events[ev.RunID]; !seen {
		m.order = append(m.order, ev.RunID)
	}
	m.events[ev.RunID] = append(m.events[ev.RunID], ev)
	return nil
}

// Trace returns a run's events in sequence order.
func (m *MemoryJournal) Trace(ctx context.Context, runID string) ([]emit.Event, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	trace := make([]emit.Event, len(m.events[runID]))
	copy(trace, m.events[runID])
	sort.Slice(trace, func(i, j int) bool { return trace[i].Seq < trace[j].Seq })
	return trace, nil
}

// Runs returns recorded run IDs, newest first.
func (m *MemoryJournal) Runs(ctx context.Context, limit int) ([]string, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	ids := make([]string, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		ids = append(ids, m.order[i])
		if limit > 0 && len(ids) == limit {
			break
		}
	}
	return ids, nil
}

// Close discards the journal's contents.
func (m *MemoryJournal) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.events = nil
	m.order = nil
	return nil
}
