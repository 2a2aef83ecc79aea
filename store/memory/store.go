// Package memory is an in-process Store used by tests and single-node
// deployments that do not need durability.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/xraph/vesting"
	"github.com/xraph/vesting/event"
	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/store"
	"github.com/xraph/vesting/stream"
)

var _ store.Store = (*Store)(nil)

// Store keeps records in maps guarded by a single RWMutex. Records are
// cloned on the way in and out so callers never share memory with the store.
type Store struct {
	mu sync.RWMutex

	// Stream storage
	streams map[string]*stream.Stream

	// Events per stream, oldest first
	events   map[string][]*event.Event
	eventIDs map[string]struct{}

	closed bool
}

func New() *Store {
	return &Store{
		streams:  make(map[string]*stream.Stream),
		events:   make(map[string][]*event.Event),
		eventIDs: make(map[string]struct{}),
	}
}

// Stream Store implementation
func (s *Store) CreateStream(_ context.Context, st *stream.Stream, events ...*event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return vesting.ErrStoreClosed
	}
	key := st.ID.String()
	if _, exists := s.streams[key]; exists {
		return vesting.ErrAlreadyExists
	}
	if err := s.checkEvents(events); err != nil {
		return err
	}
	s.streams[key] = st.Clone()
	s.appendEvents(events)
	return nil
}

func (s *Store) GetStream(_ context.Context, streamID id.StreamID) (*stream.Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.streams[streamID.String()]; ok {
		return st.Clone(), nil
	}
	return nil, vesting.ErrStreamNotFound
}

func (s *Store) UpdateStream(_ context.Context, st *stream.Stream, events ...*event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return vesting.ErrStoreClosed
	}
	key := st.ID.String()
	if _, exists := s.streams[key]; !exists {
		return vesting.ErrStreamNotFound
	}
	if err := s.checkEvents(events); err != nil {
		return err
	}
	s.streams[key] = st.Clone()
	s.appendEvents(events)
	return nil
}

func (s *Store) ListStreams(_ context.Context, opts stream.ListOpts) ([]*stream.Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*stream.Stream, 0)
	for _, st := range s.streams {
		if opts.Matches(st) {
			result = append(result, st.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *stream.Stream) int {
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListDueWithdrawals(_ context.Context, now int64, limit int) ([]*stream.Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*stream.Stream, 0)
	for _, st := range s.streams {
		if st.DueForWithdrawal(now) {
			result = append(result, st.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *stream.Stream) int {
		if a.LastMutationTime != b.LastMutationTime {
			if a.LastMutationTime < b.LastMutationTime {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return page(result, 0, limit), nil
}

// Event Store implementation
func (s *Store) ListEvents(_ context.Context, streamID id.StreamID, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*event.Event, 0)
	for _, e := range s.events[streamID.String()] {
		if opts.Type == "" || e.Type == opts.Type {
			c := *e
			result = append(result, &c)
		}
	}
	return page(result, opts.Offset, opts.Limit), nil
}

// Core methods
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return vesting.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// checkEvents must be called with the write lock held.
func (s *Store) checkEvents(events []*event.Event) error {
	for _, e := range events {
		if _, dup := s.eventIDs[e.ID.String()]; dup {
			return vesting.ErrAlreadyExists
		}
	}
	return nil
}

// appendEvents must be called with the write lock held.
func (s *Store) appendEvents(events []*event.Event) {
	for _, e := range events {
		c := *e
		key := e.StreamID.String()
		s.events[key] = append(s.events[key], &c)
		s.eventIDs[e.ID.String()] = struct{}{}
	}
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
