package dispatcher

import "sync"

// MemoryPublisher records every published event. Tests use it to assert on
// the dispatcher's lifecycle.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
	counts map[string]int
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{counts: make(map[string]int)}
}

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	p.counts[e.Name]++
}

// Events returns a copy of the recorded events in publication order.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// Names returns the event names in publication order.
func (p *MemoryPublisher) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, len(p.events))
	for i, e := range p.events {
		names[i] = e.Name
	}
	return names
}

// Count reports how many events named name were published.
func (p *MemoryPublisher) Count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[name]
}
