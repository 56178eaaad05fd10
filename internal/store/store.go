// Package store provides a copy-on-write state container with change
// subscriptions.
package store

import (
	"sync"
)

// Observer is notified after the stored snapshot changes.
type Observer[T any] func(prev, next *T)

// Store holds an immutable snapshot of T. Snapshots handed out by Load must
// not be modified; every change installs a new pointer so observers and
// callers can detect changes by pointer comparison.
type Store[T any] struct {
	mu        sync.Mutex
	current   *T
	version   uint64
	nextSubID int
	observers map[int]Observer[T]
}

// New creates a store holding initial. A nil initial value is allowed and
// means "empty".
func New[T any](initial *T) *Store[T] {
	return &Store[T]{
		current:   initial,
		observers: make(map[int]Observer[T]),
	}
}

// Load returns the current snapshot.
func (s *Store[T]) Load() *T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Version returns the number of changes applied so far.
func (s *Store[T]) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Replace installs next as the current snapshot. Replacing with the pointer
// already held is a no-op.
func (s *Store[T]) Replace(next *T) {
	_, _ = s.Update(func(*T) (*T, error) { return next, nil })
}

// Update applies fn to the current snapshot and installs its result. If fn
// returns an error or the same pointer, nothing changes and no observer runs.
// Update reports whether the snapshot changed.
func (s *Store[T]) Update(fn func(cur *T) (*T, error)) (bool, error) {
	s.mu.Lock()
	prev := s.current
	next, err := fn(prev)
	if err != nil || next == prev {
		s.mu.Unlock()
		return false, err
	}
	s.current = next
	s.version++
	observers := s.snapshotObservers()
	s.mu.Unlock()

	for _, obs := range observers {
		obs(prev, next)
	}
	return true, nil
}

// CompareAndSwap installs next only when the current snapshot is old.
func (s *Store[T]) CompareAndSwap(old, next *T) bool {
	changed, _ := s.Update(func(cur *T) (*T, error) {
		if cur != old {
			return cur, nil
		}
		return next, nil
	})
	return changed
}

// Subscribe registers an observer and returns a function that removes it.
// Observers run synchronously on the goroutine that made the change, after
// the store lock is released.
func (s *Store[T]) Subscribe(obs Observer[T]) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.observers[id] = obs

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.observers, id)
		})
	}
}

func (s *Store[T]) snapshotObservers() []Observer[T] {
	if len(s.observers) == 0 {
		return nil
	}
	out := make([]Observer[T], 0, len(s.observers))
	for _, obs := range s.observers {
		out = append(out, obs)
	}
	return out
}
