// Package bus implements the in-process lifecycle event broadcast.
// Publication never blocks on subscriber processing speed: each subscriber
// owns a bounded queue and overflow evicts the oldest pending event.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/runlens/runlens/internal/domain/event"
)

// DefaultBuffer is the per-subscriber queue capacity when none is configured.
const DefaultBuffer = 64

// Bus fans events out to all registered subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	buffer int
	closed bool
}

// New creates a Bus whose subscribers buffer up to buffer events each.
func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		subs:   make(map[*Subscriber]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber. A fresh subscriber receives nothing
// until it subscribes to at least one event type.
func (b *Bus) Subscribe() *Subscriber {
	s := &Subscriber{
		bus:   b,
		ch:    make(chan event.Event, b.buffer),
		types: make(map[event.Type]struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish delivers ev to every subscriber whose filter matches. Delivery is
// best effort: a full subscriber queue loses its oldest event rather than
// stalling the publisher.
func (b *Bus) Publish(ev event.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for s := range b.subs {
		if !s.wants(ev.Type) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			// Queue full: evict the oldest, count it, retry once.
			select {
			case <-s.ch:
				s.dropped.Add(1)
			default:
			}
			select {
			case s.ch <- ev:
			default:
				s.dropped.Add(1)
			}
		}
	}
}

// SubscriberCount returns the number of registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close detaches and closes every subscriber. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
		delete(b.subs, s)
	}
}

// remove detaches s and closes its channel. Holding the write lock here
// excludes concurrent Publish sends, so the close cannot race a send.
func (b *Bus) remove(s *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}

// Subscriber is one registered consumer with a mutable event-type filter.
type Subscriber struct {
	bus     *Bus
	ch      chan event.Event
	mu      sync.RWMutex
	types   map[event.Type]struct{}
	dropped atomic.Int64
	once    sync.Once
}

// Events returns the receive channel. It is closed when the subscriber or
// the bus closes; missed events are never redelivered.
func (s *Subscriber) Events() <-chan event.Event {
	return s.ch
}

// SubscribeTypes adds the given event types to the filter.
func (s *Subscriber) SubscribeTypes(types ...event.Type) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range types {
		s.types[t] = struct{}{}
	}
}

// UnsubscribeTypes removes the given event types from the filter.
func (s *Subscriber) UnsubscribeTypes(types ...event.Type) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range types {
		delete(s.types, t)
	}
}

// Types returns the currently subscribed event types.
func (s *Subscriber) Types() []event.Type {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]event.Type, 0, len(s.types))
	for t := range s.types {
		out = append(out, t)
	}
	return out
}

// Dropped returns how many events were lost to queue overflow.
func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}

// Close detaches the subscriber from the bus.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.bus.remove(s)
	})
}

func (s *Subscriber) wants(t event.Type) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.types[t]
	return ok
}
