// Package lock provides per-key mutual exclusion for stream mutations.
// The engine holds the lock for a stream ID across load, mutate, custody
// and persist so that concurrent operations on one stream serialize while
// different streams proceed in parallel.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrNotAcquired is returned when the lock could not be taken before the
	// context ended or the retries ran out.
	ErrNotAcquired = errors.New("lock: not acquired")
	// ErrEmptyKey is returned for a blank lock key.
	ErrEmptyKey = errors.New("lock: key cannot be empty")
	// ErrNilFn is returned when no function is given.
	ErrNilFn = errors.New("lock: function is nil")
)

// Locker runs fn while holding the lock for key. Errors returned by fn stay
// matchable with errors.Is.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Local is an in-process Locker. Keys are released from the table once no
// goroutine holds or waits for them.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

var _ Locker = (*Local)(nil)

// NewLocal returns an empty in-process locker.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

// WithLock implements Locker.
func (l *Local) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := CheckArgs(key, fn); err != nil {
		return err
	}

	s := l.acquireSlot(key)
	defer l.releaseSlot(key, s)

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
	}
	defer func() { <-s.ch }()

	return fn(ctx)
}

func (l *Local) acquireSlot(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) releaseSlot(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

// CheckArgs validates WithLock arguments for Locker implementations.
func CheckArgs(key string, fn func(context.Context) error) error {
	if fn == nil {
		return ErrNilFn
	}
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	return nil
}

// StreamKey is the lock key for a stream.
func StreamKey(streamID string) string {
	return "vesting:stream:" + streamID
}
