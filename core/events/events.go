package events

// Event is a broadcastable record of something the lease module did.
type Event struct {
	Type       string
	Attributes map[string]string
}

// Emitter forwards events to whatever transport the host wires in.
type Emitter interface {
	Emit(evt *Event)
}

// NoopEmitter drops every event. Engines start with it so event wiring stays
// optional.
type NoopEmitter struct{}

func (NoopEmitter) Emit(*Event) {}
