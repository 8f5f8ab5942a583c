package emit

// Emitter receives a mirror of a run's event stream.
//
// The engine always delivers events to the caller through the Execute
// channel; an Emitter is an additional, fire-and-forget sink configured
// with WithEmitter — logging, metrics bridges, trace journals, SSE fan-out.
//
// Implementations must be safe for concurrent use (stream deltas are
// emitted from executor goroutines) and must not block: a slow backend
// should buffer or drop rather than stall the run. Emit must not panic.
type Emitter interface {
	Emit(event Event)
}

// Multi fans events out to several emitters in order.
func Multi(emitters ...Emitter) Emitter {
	return multiEmitter(emitters)
}

type multiEmitter []Emitter

func (m multiEmitter) Emit(event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(event)
		}
	}
}
