// Package pubsub provides Hub, a generic fan-out broadcaster used to
// push trade reports and order-book updates out to websocket
// subscribers without ever blocking the publisher.
package pubsub

import "sync"

// Subscription is a single subscriber's channel. The zero value is not
// usable; obtain one from Hub.Subscribe.
type Subscription[T any] struct {
	ch chan T
}

// C returns the channel to receive broadcast values on.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Hub fans a single published value out to every current subscriber.
// Safe for concurrent use; Broadcast is typically called from one
// writer goroutine while Subscribe/Unsubscribe are called from many
// connection-handling goroutines.
type Hub[T any] struct {
	mu   sync.RWMutex
	subs map[*Subscription[T]]struct{}
}

// NewHub returns an empty Hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[*Subscription[T]]struct{})}
}

// Subscribe registers a new subscriber with the given channel buffer
// size and returns it.
func (h *Hub[T]) Subscribe(buffer int) *Subscription[T] {
	sub := &Subscription[T]{ch: make(chan T, buffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel. Idempotent.
func (h *Hub[T]) Unsubscribe(sub *Subscription[T]) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
	h.mu.Unlock()
}

// Broadcast pushes value to every current subscriber. A subscriber
// whose buffer is full is skipped rather than blocking the publisher
// — a slow consumer only misses updates, it never stalls the engine.
func (h *Hub[T]) Broadcast(value T) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.ch <- value:
		default:
		}
	}
}

// Len reports the current subscriber count.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
