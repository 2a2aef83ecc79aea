package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/vesting/fee"
	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/policy"
	"github.com/xraph/vesting/stream"
)

func testStream(t *testing.T) *stream.Stream {
	t.Helper()
	s, err := stream.New(stream.CreateParams{
		Sender:          "alice",
		Recipient:       "bob",
		Asset:           "usdc",
		DepositedAmount: 1000,
		StartTime:       100,
		EndTime:         200,
		Policy:          policy.Linear,
		Permissions:     stream.DefaultPermissions(),
		Fees:            fee.Config{PlatformBps: 100, PlatformRecipient: "platform"},
	}, 100)
	require.NoError(t, err)
	return s
}

func TestCreated(t *testing.T) {
	s := testStream(t)
	wall := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))

	e := Created(s, 100, wall)
	assert.Equal(t, id.PrefixEvent, e.ID.Prefix())
	assert.Equal(t, s.ID, e.StreamID)
	assert.Equal(t, TypeCreated, e.Type)
	assert.Equal(t, s.Sender, e.Authority)
	assert.Equal(t, uint64(1000), e.Amount)
	assert.Equal(t, uint64(1000), e.RemainingBalance)
	assert.Equal(t, time.UTC, e.CreatedAt.Location())
}

func TestWithdrawn(t *testing.T) {
	s := testStream(t)
	w, err := s.Withdraw(150, nil)
	require.NoError(t, err)

	e := Withdrawn(s, "bob", w, 150, time.Now())
	assert.Equal(t, uint64(500), e.Amount)
	assert.Equal(t, uint64(5), e.Fees.PlatformFee)
	assert.Equal(t, uint64(495), e.RecipientAmount)
	assert.Equal(t, uint64(500), e.RemainingBalance)
	assert.Equal(t, int64(150), e.Timestamp)
}

func TestCancelled(t *testing.T) {
	s := testStream(t)
	st, err := s.Cancel(150, "alice", 1000)
	require.NoError(t, err)

	e := Cancelled(s, "alice", st, 150, time.Now())
	assert.Equal(t, TypeCancelled, e.Type)
	assert.Equal(t, uint64(1000), e.Amount)
	assert.Equal(t, uint64(495), e.RecipientAmount)
	assert.Equal(t, uint64(500), e.SenderAmount)
}

func TestTransferredAndToppedUp(t *testing.T) {
	s := testStream(t)
	require.NoError(t, s.TransferRecipient(120, "bob", "carol"))

	e := Transferred(s, "bob", "bob", 120, time.Now())
	assert.Equal(t, stream.Identity("bob"), e.OldRecipient)
	assert.Equal(t, stream.Identity("carol"), e.NewRecipient)

	require.NoError(t, s.TopUp(130, 250))
	e = ToppedUp(s, "alice", 250, 130, time.Now())
	assert.Equal(t, uint64(250), e.Amount)
	assert.Equal(t, uint64(1250), e.NewDeposit)
}
