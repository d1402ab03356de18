package dispatcher

// Event represents a dispatcher lifecycle event: name, the call it concerns
// (if any) and optional fields.
type Event struct {
	Name   string
	CallID string
	Fields map[string]any
}

// EventPublisher receives events from the dispatcher. Publish may be called
// with the dispatcher lock held: implementations must not block and must not
// call back into the dispatcher.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// MultiPublisher fans an event out to several publishers in order.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(e Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(e)
		}
	}
}
