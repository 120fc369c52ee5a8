// Package prefetch holds a single speculative result keyed by the
// (field, value) pair it was computed for.
package prefetch

import (
	"context"
	"sync"
)

// Key identifies what a speculative fetch was issued for.
type Key struct {
	FieldID string
	Value   string
}

// Fetch produces the speculative value.
type Fetch[T any] func(ctx context.Context) (T, error)

type entry[T any] struct {
	key    Key
	done   chan struct{}
	cancel context.CancelFunc
	val    T
	err    error
}

// Slot is a one-entry cache. Starting a fetch for a new key supersedes the
// previous one, whose result is dropped when it lands.
type Slot[T any] struct {
	mu  sync.Mutex
	cur *entry[T]
}

// Start runs fetch in the background for key. It returns false when an
// entry for the same key already exists. parent bounds the fetch but its
// cancellation is not inherited, so the request can outlive the caller.
func (s *Slot[T]) Start(parent context.Context, key Key, fetch Fetch[T]) bool {
	s.mu.Lock()
	if s.cur != nil && s.cur.key == key {
		s.mu.Unlock()
		return false
	}
	if s.cur != nil {
		s.cur.cancel()
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	e := &entry[T]{key: key, done: make(chan struct{}), cancel: cancel}
	s.cur = e
	s.mu.Unlock()

	go func() {
		defer cancel()
		v, err := fetch(ctx)
		e.val, e.err = v, err
		close(e.done)
	}()
	return true
}

// Take consumes the entry if it was issued for key and completed without
// error, waiting for an in-flight fetch when necessary. On any other
// outcome the slot is emptied and ok is false.
func (s *Slot[T]) Take(ctx context.Context, key Key) (v T, ok bool) {
	s.mu.Lock()
	e := s.cur
	s.cur = nil
	s.mu.Unlock()

	if e == nil {
		return v, false
	}
	if e.key != key {
		e.cancel()
		return v, false
	}
	select {
	case <-e.done:
	case <-ctx.Done():
		e.cancel()
		return v, false
	}
	if e.err != nil {
		return v, false
	}
	return e.val, true
}

// Discard drops whatever the slot holds.
func (s *Slot[T]) Discard() {
	s.mu.Lock()
	e := s.cur
	s.cur = nil
	s.mu.Unlock()
	if e != nil {
		e.cancel()
	}
}

// Pending reports the key of the current entry, if any.
func (s *Slot[T]) Pending() (Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return Key{}, false
	}
	return s.cur.key, true
}
