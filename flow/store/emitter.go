package store

import (
	"context"

	"github.com/tessellate-ai/floweave/flow/emit"
)

// JournalEmitter adapts a Journal to the emit.Emitter interface so a
// journal can be wired straight into an engine:
//
//	engine := flow.New(flow.WithEmitter(store.NewJournalEmitter(journal, nil)))
//
// Append failures cannot propagate through the fire-and-forget Emit
// call; they go to onError when set and are dropped otherwise. Journal
// persistence is best-effort by design: a trace-store outage must not
// take running workflows down with it.
type JournalEmitter struct {
	journal Journal
	onError func(error)
}

// NewJournalEmitter wraps a journal. onError may be nil.
func NewJournalEmitter(journal Journal, onError func(error)) *JournalEmitter {
	return &JournalEmitter{journal: journal, onError: onError}
}

// Emit appends the event to the journal.
func (e *JournalEmitter) Emit(ev emit.Event) {
	if err := e.journal.Append(context.Background(), ev); err != nil && e.onError != nil {
		e.onError(err)
	}
}
