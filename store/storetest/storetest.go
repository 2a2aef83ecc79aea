// Package storetest is a conformance suite run against every store.Store
// backend.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/vesting"
	"github.com/xraph/vesting/event"
	"github.com/xraph/vesting/fee"
	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/policy"
	"github.com/xraph/vesting/store"
	"github.com/xraph/vesting/stream"
	"github.com/xraph/vesting/types"
)

// Factory returns an empty, migrated store. The suite closes it.
type Factory func(t *testing.T) store.Store

var wall = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// NewStream returns a valid linear stream starting at start.
func NewStream(t *testing.T, sender, recipient stream.Identity, start int64) *stream.Stream {
	t.Helper()
	cliff := start + 100
	s, err := stream.New(stream.CreateParams{
		Sender:          sender,
		Recipient:       recipient,
		Asset:           "USDC",
		Name:            "payroll",
		DepositedAmount: 18_446_744_073_709_551_000,
		StartTime:       start,
		EndTime:         start + 1000,
		CliffTime:       &cliff,
		Policy:          policy.Linear,
		Permissions:     stream.DefaultPermissions(),
		Fees:            fee.Config{PlatformBps: 50, PlatformRecipient: "treasury"},
		Metadata:        stream.Metadata{Category: "payroll", ExternalID: "inv-7"},
	}, start)
	require.NoError(t, err)
	s.Entity = types.NewEntity(wall)
	return s
}

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"CreateGetRoundTrip", testCreateGet},
		{"CreateDuplicate", testCreateDuplicate},
		{"GetMissing", testGetMissing},
		{"UpdateWithEvents", testUpdateWithEvents},
		{"UpdateMissing", testUpdateMissing},
		{"DuplicateEventRollsBack", testDuplicateEventRollsBack},
		{"ListStreamsFilters", testListStreams},
		{"ListDueWithdrawals", testListDue},
		{"ListEventsFilters", testListEvents},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			require.NoError(t, s.Migrate(context.Background()))
			require.NoError(t, s.Ping(context.Background()))
			tt.fn(t, s)
		})
	}
}

func testCreateGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	st := NewStream(t, "alice", "bob", 1000)
	st.Unlocks = []policy.Unlock{{At: 1500, Amount: 10}}

	require.NoError(t, s.CreateStream(ctx, st, event.Created(st, 1000, wall)))

	got, err := s.GetStream(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, st.ID, got.ID)
	assert.Equal(t, st.DepositedAmount, got.DepositedAmount)
	assert.Equal(t, st.Sender, got.Sender)
	assert.Equal(t, st.Recipient, got.Recipient)
	assert.Equal(t, st.CustodyAccount, got.CustodyAccount)
	assert.Equal(t, *st.CliffTime, *got.CliffTime)
	assert.Equal(t, st.Unlocks, got.Unlocks)
	assert.Equal(t, st.Permissions, got.Permissions)
	assert.Equal(t, st.Fees, got.Fees)
	assert.Equal(t, st.Metadata, got.Metadata)
	assert.Equal(t, stream.StatusStreaming, got.Status)
	assert.Nil(t, got.CancelledAt)
	assert.True(t, st.CreatedAt.Equal(got.CreatedAt))

	// Returned records do not alias the stored one.
	got.WithdrawnAmount = 1
	again, err := s.GetStream(ctx, st.ID)
	require.NoError(t, err)
	assert.Zero(t, again.WithdrawnAmount)
}

func testCreateDuplicate(t *testing.T, s store.Store) {
	ctx := context.Background()
	st := NewStream(t, "alice", "bob", 1000)
	require.NoError(t, s.CreateStream(ctx, st))
	assert.ErrorIs(t, s.CreateStream(ctx, st), vesting.ErrAlreadyExists)
}

func testGetMissing(t *testing.T, s store.Store) {
	_, err := s.GetStream(context.Background(), id.NewStreamID())
	assert.ErrorIs(t, err, vesting.ErrStreamNotFound)
	assert.True(t, vesting.IsNotFound(err))
}

func testUpdateWithEvents(t *testing.T, s store.Store) {
	ctx := context.Background()
	st := NewStream(t, "alice", "bob", 1000)
	require.NoError(t, s.CreateStream(ctx, st, event.Created(st, 1000, wall)))

	w, err := st.Withdraw(1500, nil)
	require.NoError(t, err)
	by := stream.Identity("alice")
	cancelledAt := int64(1600)
	st.CancelledAt = &cancelledAt
	st.CancelledBy = &by
	require.NoError(t, s.UpdateStream(ctx, st, event.Withdrawn(st, "bob", w, 1500, wall)))

	got, err := s.GetStream(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, st.WithdrawnAmount, got.WithdrawnAmount)
	assert.Equal(t, int64(1500), got.LastMutationTime)
	require.NotNil(t, got.CancelledAt)
	assert.Equal(t, int64(1600), *got.CancelledAt)
	assert.Equal(t, by, *got.CancelledBy)

	events, err := s.ListEvents(ctx, st.ID, event.ListOpts{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, event.TypeCreated, events[0].Type)
	assert.Equal(t, event.TypeWithdrawn, events[1].Type)
	assert.Equal(t, w.Amount, events[1].Amount)
	assert.Equal(t, w.Fees, events[1].Fees)
}

func testUpdateMissing(t *testing.T, s store.Store) {
	st := NewStream(t, "alice", "bob", 1000)
	assert.ErrorIs(t, s.UpdateStream(context.Background(), st), vesting.ErrStreamNotFound)
}

func testDuplicateEventRollsBack(t *testing.T, s store.Store) {
	ctx := context.Background()
	st := NewStream(t, "alice", "bob", 1000)
	created := event.Created(st, 1000, wall)
	require.NoError(t, s.CreateStream(ctx, st, created))

	changed := st.Clone()
	changed.WithdrawnAmount = 5
	assert.ErrorIs(t, s.UpdateStream(ctx, changed, created), vesting.ErrAlreadyExists)

	got, err := s.GetStream(ctx, st.ID)
	require.NoError(t, err)
	assert.Zero(t, got.WithdrawnAmount)
}

func testListStreams(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := NewStream(t, "alice", "bob", 1000)
	b := NewStream(t, "alice", "carol", 1000)
	b.Policy = policy.Step
	c := NewStream(t, "dave", "bob", 1000)
	c.Status = stream.StatusPaused
	for _, st := range []*stream.Stream{a, b, c} {
		require.NoError(t, s.CreateStream(ctx, st))
	}

	all, err := s.ListStreams(ctx, stream.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	bySender, err := s.ListStreams(ctx, stream.ListOpts{Sender: "alice"})
	require.NoError(t, err)
	assert.Len(t, bySender, 2)

	byRecipient, err := s.ListStreams(ctx, stream.ListOpts{Recipient: "bob", Status: stream.StatusPaused})
	require.NoError(t, err)
	require.Len(t, byRecipient, 1)
	assert.Equal(t, c.ID, byRecipient[0].ID)

	byPolicy, err := s.ListStreams(ctx, stream.ListOpts{Sender: "alice", Policy: policy.Step})
	require.NoError(t, err)
	require.Len(t, byPolicy, 1)
	assert.Equal(t, b.ID, byPolicy[0].ID)

	byAsset, err := s.ListStreams(ctx, stream.ListOpts{Asset: "EURC"})
	require.NoError(t, err)
	assert.Empty(t, byAsset)

	paged, err := s.ListStreams(ctx, stream.ListOpts{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, paged, 1)
}

func testListDue(t *testing.T, s store.Store) {
	ctx := context.Background()
	due := NewStream(t, "alice", "bob", 1000)
	due.AutomaticWithdrawal = true
	due.WithdrawalFrequency = 100

	recent := NewStream(t, "alice", "bob", 1000)
	recent.AutomaticWithdrawal = true
	recent.WithdrawalFrequency = 100
	recent.LastMutationTime = 1150

	manual := NewStream(t, "alice", "bob", 1000)

	paused := NewStream(t, "alice", "bob", 1000)
	paused.AutomaticWithdrawal = true
	paused.WithdrawalFrequency = 100
	paused.Status = stream.StatusPaused

	for _, st := range []*stream.Stream{due, recent, manual, paused} {
		require.NoError(t, s.CreateStream(ctx, st))
	}

	got, err := s.ListDueWithdrawals(ctx, 1200, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ID)

	got, err = s.ListDueWithdrawals(ctx, 1250, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, due.ID, got[0].ID, "oldest mutation first")
}

func testListEvents(t *testing.T, s store.Store) {
	ctx := context.Background()
	st := NewStream(t, "alice", "bob", 1000)
	require.NoError(t, s.CreateStream(ctx, st, event.Created(st, 1000, wall)))
	for _, at := range []int64{1200, 1400, 1600} {
		w, err := st.Withdraw(at, nil)
		require.NoError(t, err)
		require.NoError(t, s.UpdateStream(ctx, st, event.Withdrawn(st, "bob", w, at, wall)))
	}

	other := NewStream(t, "alice", "bob", 1000)
	require.NoError(t, s.CreateStream(ctx, other, event.Created(other, 1000, wall)))

	all, err := s.ListEvents(ctx, st.ID, event.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	withdrawals, err := s.ListEvents(ctx, st.ID, event.ListOpts{Type: event.TypeWithdrawn, Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, withdrawals, 2)
	assert.Equal(t, int64(1400), withdrawals[0].Timestamp)
	assert.Equal(t, int64(1600), withdrawals[1].Timestamp)

	none, err := s.ListEvents(ctx, id.NewStreamID(), event.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, none)
}
