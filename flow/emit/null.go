package emit

// NullEmitter discards all events. Use it when no mirror sink is wanted
// without branching on nil at call sites.
type NullEmitter struct{}

// NewNullEmitter creates a NullEmitter.
func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

// Emit discards the event.
func (n *NullEmitter) Emit(Event) {}
