// Package mock provides a recording implementation of [events.Publisher]
// for use in unit tests.
package mock

import (
	"sync"

	"github.com/MrWong99/betterspeak/internal/events"
)

var _ events.Publisher = (*Publisher)(nil)

// Published is one recorded Publish call.
type Published struct {
	Kind events.Kind
	Data any
}

// Publisher records every event it receives. It is safe for concurrent use.
type Publisher struct {
	mu sync.Mutex

	// Events holds the published events in call order.
	Events []Published
}

// Publish implements [events.Publisher].
func (p *Publisher) Publish(kind events.Kind, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, Published{Kind: kind, Data: data})
}

// All returns a copy of the recorded events.
func (p *Publisher) All() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Published, len(p.Events))
	copy(out, p.Events)
	return out
}

// OfKind returns the recorded events of kind k in call order.
func (p *Publisher) OfKind(k events.Kind) []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Published
	for _, e := range p.Events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards the recorded events.
func (p *Publisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = nil
}
