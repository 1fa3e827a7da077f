package outputbuffer

import (
	"context"
	"sync"
)

// Signal is a one-shot future: exactly one of Complete's callers wins,
// everyone else's call is a no-op, and Wait/OnComplete observe the same
// completed value regardless of ordering. It is the representation
// spec.md §9 calls for: "a tagged variant {Pending, Ready(result)} with a
// list of continuation callbacks invoked on the external executor."
//
// Signal is used both for Buffer.Enqueue's backpressure handle and for
// Buffer.Get's result future.
type Signal[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	val       T
	completed bool
	callbacks []func(T)
}

// NewSignal returns a new, incomplete Signal.
func NewSignal[T any]() *Signal[T] {
	return &Signal[T]{done: make(chan struct{})}
}

// Completed returns a Signal that is already resolved to v. Used for the
// "already-completed signal" cases spec.md describes for Enqueue and Get.
func Completed[T any](v T) *Signal[T] {
	s := NewSignal[T]()
	s.Complete(v)
	return s
}

// Complete resolves the signal to v. Only the first call has any effect;
// subsequent calls are silently ignored, matching the spec's "completed
// (successfully)... or completed (empty)" backpressure-gate contract where
// exactly one completion ever applies. Registered callbacks are invoked
// synchronously on the calling goroutine — callers that need the external
// executor guarantee use OnComplete instead of reading Wait's result
// inline under a lock.
func (s *Signal[T]) Complete(v T) bool {
	s.mu.Lock()
	if s.completed {
		s.mu.Unlock()
		return false
	}
	s.completed = true
	s.val = v
	callbacks := s.callbacks
	s.callbacks = nil
	close(s.done)
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(v)
	}
	return true
}

// IsDone reports whether the signal has resolved.
func (s *Signal[T]) IsDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// OnComplete arranges for cb to run on executor once the signal resolves,
// or immediately (still dispatched via executor) if it already has. This
// is how state-change-adjacent consumers can observe a Get/Enqueue result
// without ever running inline under the buffer's lock.
func (s *Signal[T]) OnComplete(executor Executor, cb func(T)) {
	s.mu.Lock()
	if s.completed {
		v := s.val
		s.mu.Unlock()
		executor.Execute(func() { cb(v) })
		return
	}
	// Complete may run the stored callback list synchronously on whatever
	// goroutine calls it — often the one holding the buffer's lock (e.g.
	// tryResolveGetLocked, destroyLocked). Wrap cb so it still only ever
	// runs on executor, never inline under that lock (spec §5).
	s.callbacks = append(s.callbacks, func(v T) { executor.Execute(func() { cb(v) }) })
	s.mu.Unlock()
}

// Wait blocks until the signal resolves or ctx is done, whichever comes
// first.
func (s *Signal[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-s.done:
		s.mu.Lock()
		v := s.val
		s.mu.Unlock()
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
