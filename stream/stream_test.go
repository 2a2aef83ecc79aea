package stream

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/vesting/fee"
	"github.com/xraph/vesting/policy"
	"github.com/xraph/vesting/types"
)

const (
	alice   Identity = "alice"
	bob     Identity = "bob"
	carol   Identity = "carol"
	mallory Identity = "mallory"
)

func u64(v uint64) *uint64 { return &v }

func i64(v int64) *int64 { return &v }

func linearParams() CreateParams {
	return CreateParams{
		Sender:          alice,
		Recipient:       bob,
		Asset:           "usdc",
		DepositedAmount: 1000,
		StartTime:       100,
		EndTime:         200,
		Policy:          policy.Linear,
		Permissions:     DefaultPermissions(),
	}
}

func newStream(t *testing.T, p CreateParams, now int64) *Stream {
	t.Helper()
	s, err := New(p, now)
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	t.Run("scheduled before start", func(t *testing.T) {
		s := newStream(t, linearParams(), 50)
		assert.Equal(t, StatusScheduled, s.Status)
		assert.False(t, s.ID.IsNil())
		assert.Equal(t, EscrowAccount(s.ID), s.CustodyAccount)
		assert.Equal(t, int64(50), s.LastMutationTime)
		assert.Zero(t, s.WithdrawnAmount)
	})

	t.Run("streaming at start", func(t *testing.T) {
		s := newStream(t, linearParams(), 100)
		assert.Equal(t, StatusStreaming, s.Status)
	})

	t.Run("escrow account per stream", func(t *testing.T) {
		a := newStream(t, linearParams(), 0)
		b := newStream(t, linearParams(), 0)
		assert.Equal(t, EscrowAccount(a.ID), a.CustodyAccount)
		assert.NotEqual(t, a.CustodyAccount, b.CustodyAccount)
	})

	t.Run("detaches caller pointers", func(t *testing.T) {
		p := linearParams()
		p.Policy = policy.Cliff
		p.CliffTime = i64(150)
		p.CliffAmount = 100
		s := newStream(t, p, 0)
		*p.CliffTime = 175
		assert.Equal(t, int64(150), *s.CliffTime)
	})
}

func TestCreateParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateParams)
		want   error
	}{
		{"missing sender", func(p *CreateParams) { p.Sender = "" }, types.ErrInvalidInput},
		{"missing recipient", func(p *CreateParams) { p.Recipient = "" }, types.ErrInvalidInput},
		{"sender is recipient", func(p *CreateParams) { p.Recipient = p.Sender }, types.ErrInvalidInput},
		{"missing asset", func(p *CreateParams) { p.Asset = "" }, types.ErrInvalidInput},
		{"zero deposit", func(p *CreateParams) { p.DepositedAmount = 0 }, types.ErrInvalidInput},
		{"unknown policy", func(p *CreateParams) { p.Policy = "exponential" }, policy.ErrUnknownPolicy},
		{"inverted window", func(p *CreateParams) { p.EndTime = p.StartTime }, policy.ErrInvalidTimeRange},
		{"too short", func(p *CreateParams) { p.EndTime = p.StartTime + 10 }, ErrInvalidDuration},
		{"too long", func(p *CreateParams) { p.EndTime = p.StartTime + MaxDuration + 1 }, ErrInvalidDuration},
		{"fee sum", func(p *CreateParams) {
			p.Fees = fee.Config{PlatformBps: 6000, PartnerBps: 5000, PlatformRecipient: "p", PartnerRecipient: "q"}
		}, fee.ErrFeeConfigInvalid},
		{"fee recipient", func(p *CreateParams) { p.Fees = fee.Config{PlatformBps: 50} }, ErrFeeRecipientRequired},
		{"auto withdrawal frequency", func(p *CreateParams) { p.AutomaticWithdrawal = true }, ErrInvalidWithdrawalFrequency},
		{"long name", func(p *CreateParams) { p.Name = strings.Repeat("x", types.MaxNameLen+1) }, types.ErrInvalidInput},
		{"long category", func(p *CreateParams) {
			p.Metadata.Category = strings.Repeat("c", types.MaxCategoryLen+1)
		}, types.ErrInvalidInput},
		{"step without interval", func(p *CreateParams) { p.Policy = policy.Step; p.RateAmount = 10 }, policy.ErrInvalidRateInterval},
		{"cliff amount", func(p *CreateParams) {
			p.Policy = policy.Cliff
			p.CliffTime = i64(150)
			p.CliffAmount = 2000
		}, policy.ErrInvalidCliffAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := linearParams()
			p.EndTime = p.StartTime + 3600
			tt.mutate(&p)

			err := p.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsUserInputError(err), "expected user input error, got %v", err)
		})
	}
}

func TestCreateParamsValidateReportsEveryViolation(t *testing.T) {
	p := linearParams()
	p.Sender = ""
	p.DepositedAmount = 0
	p.AutomaticWithdrawal = true

	err := p.Validate()
	var multi types.MultiError
	require.ErrorAs(t, err, &multi)
	assert.GreaterOrEqual(t, len(multi.Errors), 3)
}

// A linear stream of 1000 over [100, 200]: half way through 500 is
// withdrawable, and withdrawing it leaves a Streaming record with 500 paid.
func TestWithdrawLinearHalfway(t *testing.T) {
	s := newStream(t, linearParams(), 100)

	avail, err := s.WithdrawableAmount(150)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), avail)

	w, err := s.Withdraw(150, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), w.Amount)
	assert.Equal(t, uint64(500), w.Fees.Net)
	assert.Equal(t, uint64(500), w.Remaining)
	assert.False(t, w.Completed)
	assert.Equal(t, uint64(500), s.WithdrawnAmount)
	assert.Equal(t, StatusStreaming, s.Status)
	assert.Equal(t, int64(150), s.LastMutationTime)

	_, err = s.Withdraw(150, nil)
	assert.ErrorIs(t, err, ErrNoFundsAvailable)
}

func TestWithdrawCompletes(t *testing.T) {
	s := newStream(t, linearParams(), 100)

	w, err := s.Withdraw(250, nil)
	require.NoError(t, err)
	assert.True(t, w.Completed)
	assert.Equal(t, StatusCompleted, s.Status)
	assert.Equal(t, s.DepositedAmount, s.WithdrawnAmount)

	_, err = s.Withdraw(300, nil)
	assert.ErrorIs(t, err, ErrNoFundsAvailable)
	assert.Equal(t, StatusCompleted, s.Status)
}

func TestWithdrawInPieces(t *testing.T) {
	s := newStream(t, linearParams(), 100)

	for _, now := range []int64{120, 140, 160, 180, 200} {
		_, err := s.Withdraw(now, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, StatusCompleted, s.Status)
	assert.Equal(t, uint64(1000), s.WithdrawnAmount)
}

func TestWithdrawRequested(t *testing.T) {
	s := newStream(t, linearParams(), 100)

	w, err := s.Withdraw(150, u64(200))
	require.NoError(t, err)
	assert.Equal(t, uint64(200), w.Amount)
	assert.Equal(t, uint64(200), s.WithdrawnAmount)

	before := s.Clone()
	_, err = s.Withdraw(150, u64(301))
	assert.ErrorIs(t, err, ErrInsufficientWithdrawableAmount)
	assert.Equal(t, before, s)

	_, err = s.Withdraw(150, u64(0))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, before, s)
}

func TestWithdrawAppliesFees(t *testing.T) {
	p := linearParams()
	p.Fees = fee.Config{PlatformBps: 50, PartnerBps: 100, PlatformRecipient: "platform", PartnerRecipient: "partner"}
	s := newStream(t, p, 100)

	w, err := s.Withdraw(200, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), w.Fees.PlatformFee)
	assert.Equal(t, uint64(10), w.Fees.PartnerFee)
	assert.Equal(t, uint64(985), w.Fees.Net)
	assert.Equal(t, uint64(1000), s.WithdrawnAmount)
}

func TestWithdrawRequiresStreaming(t *testing.T) {
	s := newStream(t, linearParams(), 100)
	require.NoError(t, s.Pause(120, alice))

	avail, err := s.WithdrawableAmount(150)
	require.NoError(t, err)
	assert.Zero(t, avail)

	_, err = s.Withdraw(150, nil)
	assert.ErrorIs(t, err, ErrNoFundsAvailable)
}

// A cliff stream of 1000 over [0, 1000] with 250 at t=500: nothing before the
// cliff, then the lump sum plus the linear share of the remainder.
func TestWithdrawCliff(t *testing.T) {
	p := linearParams()
	p.Policy = policy.Cliff
	p.StartTime, p.EndTime = 0, 1000
	p.CliffTime = i64(500)
	p.CliffAmount = 250
	s := newStream(t, p, 0)

	_, err := s.Withdraw(499, nil)
	assert.ErrorIs(t, err, ErrNoFundsAvailable)

	w, err := s.Withdraw(500, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(625), w.Amount)
}

func TestTopUp(t *testing.T) {
	s := newStream(t, linearParams(), 100)

	require.NoError(t, s.TopUp(150, 500))
	assert.Equal(t, uint64(1500), s.DepositedAmount)
	assert.Equal(t, int64(150), s.LastMutationTime)

	assert.ErrorIs(t, s.TopUp(150, 0), ErrInvalidAmount)
}

func TestTopUpRejected(t *testing.T) {
	t.Run("not allowed", func(t *testing.T) {
		p := linearParams()
		p.Permissions.CanTopUp = false
		s := newStream(t, p, 100)
		err := s.TopUp(150, 10)
		assert.ErrorIs(t, err, ErrTopUpNotAllowed)
		assert.True(t, IsAuthorizationError(err))
	})

	t.Run("terminal", func(t *testing.T) {
		s := newStream(t, linearParams(), 100)
		_, err := s.Cancel(150, alice, 1000)
		require.NoError(t, err)
		assert.ErrorIs(t, s.TopUp(160, 10), ErrStreamNotActive)
	})

	t.Run("overflow", func(t *testing.T) {
		s := newStream(t, linearParams(), 100)
		before := s.Clone()
		err := s.TopUp(150, ^uint64(0))
		assert.ErrorIs(t, err, ErrArithmeticOverflow)
		assert.True(t, IsArithmeticError(err))
		assert.Equal(t, before, s)
	})
}

func TestTransferRecipient(t *testing.T) {
	s := newStream(t, linearParams(), 100)

	err := s.TransferRecipient(110, alice, carol)
	assert.ErrorIs(t, err, ErrUnauthorizedAccess, "sender lacks TransferableBySender")

	require.NoError(t, s.TransferRecipient(110, bob, carol))
	assert.Equal(t, carol, s.Recipient)

	assert.ErrorIs(t, s.TransferRecipient(120, bob, mallory), ErrUnauthorizedAccess, "old recipient lost rights")
	assert.ErrorIs(t, s.TransferRecipient(120, carol, ""), ErrInvalidRecipient)

	require.NoError(t, s.TransferRecipient(130, carol, carol))
	assert.Equal(t, carol, s.Recipient)
	assert.Equal(t, int64(130), s.LastMutationTime)

	require.NoError(t, s.TransferRecipient(140, carol, alice), "the sender may be handed the stream")
	assert.Equal(t, alice, s.Recipient)
}

func TestTransferRecipientCancelled(t *testing.T) {
	s := newStream(t, linearParams(), 100)
	_, err := s.Cancel(150, alice, 1000)
	require.NoError(t, err)

	assert.ErrorIs(t, s.TransferRecipient(160, bob, carol), ErrStreamAlreadyCancelled)
}

func TestProgress(t *testing.T) {
	s := newStream(t, linearParams(), 0)

	assert.Equal(t, uint16(0), s.Progress(50))
	assert.Equal(t, uint16(5000), s.Progress(150))
	assert.Equal(t, uint16(10000), s.Progress(200))
	assert.Equal(t, "0.25", s.ProgressFraction(125).String())
	assert.False(t, s.HasEnded(199))
	assert.True(t, s.HasEnded(200))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindUnknown},
		{errors.New("disk on fire"), KindUnknown},
		{ErrInvalidAmount, KindUserInput},
		{ErrUnauthorizedAccess, KindAuthorization},
		{ErrStreamAlreadyPaused, KindState},
		{types.ErrOverflow, KindArithmetic},
		{transitionError(StatusPaused, StatusCompleted), KindState},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
}
