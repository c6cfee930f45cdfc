package events

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Publisher is the producer side of a [Bus].
type Publisher interface {
	Publish(kind Kind, data any)
}

var _ Publisher = (*Bus)(nil)

// Bus fans events out to subscribers. It is safe for concurrent use.
type Bus struct {
	bufSize int
	logger  *slog.Logger

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

// Option configures a [Bus].
type Option func(*Bus)

// WithBufferSize sets the per-subscriber channel capacity. Defaults to 64.
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.bufSize = n
		}
	}
}

// WithLogger sets the logger used to report dropped events.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBus returns an empty Bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		bufSize: 64,
		logger:  slog.Default(),
		subs:    make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription receives events of the kinds it was created with.
type Subscription struct {
	bus     *Bus
	kinds   []Kind
	ch      chan Event
	once    sync.Once
	dropped atomic.Int64

	// sendMu serialises publishers on this subscription so that making room
	// for a kept event never reorders the queue.
	sendMu sync.Mutex
}

// C returns the delivery channel. It is closed by [Subscription.Close] or
// [Bus.Close].
func (s *Subscription) C() <-chan Event { return s.ch }

// Dropped returns how many events were discarded because C was full. Only
// lossy kinds are dropped while the subscriber holds fewer than the buffer
// size of kept events.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	s.closeCh()
}

func (s *Subscription) closeCh() {
	s.once.Do(func() { close(s.ch) })
}

func (s *Subscription) wants(k Kind) bool {
	return len(s.kinds) == 0 || slices.Contains(s.kinds, k)
}

// Subscribe registers a subscriber for kinds. No kinds means every kind.
// Subscribing to a closed bus returns a subscription whose channel is
// already closed.
func (b *Bus) Subscribe(kinds ...Kind) *Subscription {
	sub := &Subscription{bus: b, kinds: slices.Clone(kinds), ch: make(chan Event, b.bufSize)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closeCh()
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers an event to every interested subscriber without
// blocking. Events published after Close are discarded.
func (b *Bus) Publish(kind Kind, data any) {
	ev := Event{Kind: kind, Time: time.Now(), Data: data}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		if !sub.wants(kind) {
			continue
		}
		if n := sub.send(ev); n > 0 && sub.dropped.Add(n) == n {
			b.logger.Warn("events: subscriber is falling behind; dropping events", "kind", kind)
		}
	}
}

// send queues ev without blocking and returns how many events were dropped.
// A full queue drops a lossy ev outright. For any other kind the queued
// lossy events are evicted to make room; only when the queue holds nothing
// but kept events is the oldest of them given up.
func (s *Subscription) send(ev Event) int64 {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	select {
	case s.ch <- ev:
		return 0
	default:
	}
	if ev.Kind.Lossy() {
		return 1
	}

	var (
		kept    []Event
		dropped int64
	)
drain:
	for {
		select {
		case old := <-s.ch:
			if old.Kind.Lossy() {
				dropped++
				continue
			}
			kept = append(kept, old)
		default:
			break drain
		}
	}
	kept = append(kept, ev)
	if over := len(kept) - cap(s.ch); over > 0 {
		kept = kept[over:]
		dropped += int64(over)
	}
	for _, e := range kept {
		s.ch <- e
	}
	return dropped
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription. Further publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.closed = true
	b.mu.Unlock()
	for sub := range subs {
		sub.closeCh()
	}
}

// Discard is a [Publisher] that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Kind, any) {}
