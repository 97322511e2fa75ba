package event

import (
	"sync"
	"sync/atomic"
)

// Handler processes a delivered event.
// Handlers run on the publisher's goroutine; keep them short.
type Handler func(Event)

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe removes the subscription.
	Unsubscribe()
}

// Bus is an in-memory event bus with synchronous fan-out.
// It is safe for concurrent use. Events are delivered to subscribers
// in subscription order.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscription
	nextID atomic.Int64
	closed bool
}

// subscription is the internal Subscription implementation.
type subscription struct {
	id      int64
	types   map[Type]bool // nil = all types
	handler Handler
	bus     *Bus
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for specific event types.
// An empty type list subscribes to all events.
func (b *Bus) Subscribe(types []Type, handler Handler) Subscription {
	if handler == nil {
		panic("event: handler cannot be nil")
	}

	sub := &subscription{
		id:      b.nextID.Add(1),
		handler: handler,
		bus:     b,
	}
	if len(types) > 0 {
		sub.types = make(map[Type]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.subs = append(b.subs, sub)
	}
	return sub
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) Subscription {
	return b.Subscribe(nil, handler)
}

// Publish delivers an event to all matching subscribers.
// Publishing on a closed bus is a no-op.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	matched := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.types == nil || sub.types[evt.Type] {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	// Deliver outside the lock so handlers may subscribe/unsubscribe.
	for _, sub := range matched {
		sub.handler(evt)
	}
}

// Close shuts down the bus and removes all subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = nil
}

// Unsubscribe implements Subscription.
func (s *subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	for i, sub := range s.bus.subs {
		if sub.id == s.id {
			s.bus.subs = append(s.bus.subs[:i], s.bus.subs[i+1:]...)
			return
		}
	}
}
