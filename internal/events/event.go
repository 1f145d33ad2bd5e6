// Package events provides a small synchronous fan-out used for venue notifications.
package events

import "sync"

// Event delivers values to every subscribed handler, synchronously and in subscription order.
// Handlers run on the publisher's goroutine and must not block for long.
type Event[T any] struct {
	mu       sync.RWMutex
	nextID   int
	handlers []subscription[T]
}

type subscription[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it.
func (e *Event[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.handlers = append(e.handlers, subscription[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(id) })
	}
}

func (e *Event[T]) remove(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.handlers {
		if s.id == id {
			e.handlers = append(e.handlers[:i:i], e.handlers[i+1:]...)
			return
		}
	}
}

// Publish calls every handler with v.
func (e *Event[T]) Publish(v T) {
	e.mu.RLock()
	handlers := make([]subscription[T], len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	for _, s := range handlers {
		s.fn(v)
	}
}

// Len returns the number of subscribed handlers.
func (e *Event[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers)
}
