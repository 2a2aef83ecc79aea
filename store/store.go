// Package store defines the persistence contract for Vesting. Backends live
// in sub-packages: memory, sqlite, postgres and mongo.
package store

import (
	"context"

	"github.com/xraph/vesting/event"
	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/stream"
)

// Store is the unified storage interface for all Vesting entities.
//
// CreateStream and UpdateStream persist the stream together with the events
// describing the change in one atomic write: either the record and every
// event are stored, or nothing is.
type Store interface {
	// Stream methods
	CreateStream(ctx context.Context, s *stream.Stream, events ...*event.Event) error
	GetStream(ctx context.Context, streamID id.StreamID) (*stream.Stream, error)
	UpdateStream(ctx context.Context, s *stream.Stream, events ...*event.Event) error
	ListStreams(ctx context.Context, opts stream.ListOpts) ([]*stream.Stream, error)
	// ListDueWithdrawals returns up to limit streams for which
	// stream.Stream.DueForWithdrawal(now) holds, oldest mutation first.
	ListDueWithdrawals(ctx context.Context, now int64, limit int) ([]*stream.Stream, error)

	// Event methods
	ListEvents(ctx context.Context, streamID id.StreamID, opts event.ListOpts) ([]*event.Event, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
