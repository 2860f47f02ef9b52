// Package watch holds a current value and streams every change to subscribers.
package watch

import (
	"context"
	"sync"
)

// Value stores the latest T. Subscribers receive the value current at
// subscription time first, then every later change in order. Setting a value
// equal to the current one is not a change.
type Value[T comparable] struct {
	mu      sync.Mutex
	current T
	subs    map[*Subscription[T]]struct{}
}

// NewValue returns a Value holding initial.
func NewValue[T comparable](initial T) *Value[T] {
	return &Value[T]{current: initial, subs: map[*Subscription[T]]struct{}{}}
}

// Load returns the current value.
func (v *Value[T]) Load() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set stores next and reports whether it differed from the previous value.
func (v *Value[T]) Set(next T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == next {
		return false
	}
	v.current = next
	for sub := range v.subs {
		sub.push(next)
	}
	return true
}

// Subscribe registers a new subscriber. Close it when done.
func (v *Value[T]) Subscribe() *Subscription[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	sub := &Subscription[T]{parent: v, notify: make(chan struct{}, 1)}
	sub.push(v.current)
	v.subs[sub] = struct{}{}
	return sub
}

// Subscription is an unbounded, ordered queue of values for one reader.
type Subscription[T comparable] struct {
	parent *Value[T]
	notify chan struct{}

	mu     sync.Mutex
	queue  []T
	closed bool
}

func (s *Subscription[T]) push(value T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, value)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until a value is available or ctx ends.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			value := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return value, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			var zero T
			return zero, ErrClosed
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-s.notify:
		}
	}
}

// Close detaches the subscription. Pending values are dropped.
func (s *Subscription[T]) Close() {
	s.parent.mu.Lock()
	delete(s.parent.subs, s)
	s.parent.mu.Unlock()

	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
