package main

import (
	"errors"
	"sync"
)

// ============================================================================
// Mailbox - single-slot latest-value handoff
// ============================================================================
// A producer goroutine overwrites the slot; the render goroutine drains it from
// inside a screen's Draw. At most one undelivered value exists at any time and
// a write never waits on the reader.
//
// A panic escaping an IfNew callback leaves the pairing broken: every later
// Put/IfNew on the same mailbox returns ErrMailboxBroken.
// ============================================================================

// ErrMailboxBroken is returned once a callback panicked while holding the lock.
var ErrMailboxBroken = errors.New("mailbox broken: a callback panicked while holding the lock")

// MailboxWriter is the producer-side handle. Producers never read.
type MailboxWriter[T any] interface {
	Put(v T) error
}

// Mailbox is a mutex-guarded optional value with overwrite-on-write and
// take-on-read semantics.
type Mailbox[T any] struct {
	mu      sync.Mutex
	value   T
	has     bool
	broken  bool
	dropped uint64
}

// NewMailbox returns an empty mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{}
}

// Put stores v, replacing any value the reader has not taken yet.
func (m *Mailbox[T]) Put(v T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.broken {
		return ErrMailboxBroken
	}
	if m.has {
		m.dropped++
	}
	m.value = v
	m.has = true
	return nil
}

// IfNew takes the pending value, if any, and passes it to fn exactly once.
// fn runs with the lock held; it must not call back into the same mailbox.
func (m *Mailbox[T]) IfNew(fn func(T)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.broken {
		return ErrMailboxBroken
	}
	if !m.has {
		return nil
	}

	v := m.value
	var zero T
	m.value = zero
	m.has = false

	completed := false
	defer func() {
		if !completed {
			m.broken = true
		}
	}()
	fn(v)
	completed = true
	return nil
}

// Dropped reports how many values were overwritten before being read.
func (m *Mailbox[T]) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}
