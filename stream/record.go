package stream

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xraph/vesting/fee"
	"github.com/xraph/vesting/policy"
	"github.com/xraph/vesting/types"
)

// Withdrawal is the outcome of a successful withdraw.
type Withdrawal struct {
	Amount    uint64        `json:"amount"`
	Fees      fee.Breakdown `json:"fees"`
	Remaining uint64        `json:"remaining"`
	Completed bool          `json:"completed"`
}

// StreamedAmount is the total unlocked by now, ignoring withdrawals and status.
func (s *Stream) StreamedAmount(now int64) (uint64, error) {
	return policy.StreamedAmount(s.Schedule(), now)
}

// WithdrawableAmount is what the recipient could withdraw at now. It is zero
// unless the stream is Streaming.
func (s *Stream) WithdrawableAmount(now int64) (uint64, error) {
	if s.Status != StatusStreaming {
		return 0, nil
	}
	streamed, err := s.StreamedAmount(now)
	if err != nil {
		return 0, err
	}
	return types.SaturatingSub(streamed, s.WithdrawnAmount), nil
}

// RemainingBalance is the deposit not yet paid out.
func (s *Stream) RemainingBalance() uint64 {
	return types.SaturatingSub(s.DepositedAmount, s.WithdrawnAmount)
}

// IsActive reports whether the stream is currently accruing withdrawable value.
func (s *Stream) IsActive() bool {
	return s.Status == StatusStreaming
}

// HasEnded reports whether the schedule window is over or the stream completed.
func (s *Stream) HasEnded(now int64) bool {
	return now >= s.EndTime || s.Status == StatusCompleted
}

// Progress is the elapsed share of the schedule window in basis points.
func (s *Stream) Progress(now int64) uint16 {
	return policy.Progress(s.StartTime, s.EndTime, now)
}

// ProgressFraction is Progress as an exact fraction in [0, 1].
func (s *Stream) ProgressFraction(now int64) decimal.Decimal {
	return policy.ProgressFraction(s.StartTime, s.EndTime, now)
}

// Withdraw releases requested (or everything withdrawable when requested is
// nil) to the recipient. Fees are taken from the released amount. When the
// full deposit has been withdrawn the stream completes.
func (s *Stream) Withdraw(now int64, requested *uint64) (Withdrawal, error) {
	available, err := s.WithdrawableAmount(now)
	if err != nil {
		return Withdrawal{}, err
	}
	if available == 0 {
		return Withdrawal{}, ErrNoFundsAvailable
	}

	amount := available
	if requested != nil {
		if *requested == 0 {
			return Withdrawal{}, ErrInvalidAmount
		}
		if *requested > available {
			return Withdrawal{}, fmt.Errorf("%w: requested %d, withdrawable %d",
				ErrInsufficientWithdrawableAmount, *requested, available)
		}
		amount = *requested
	}

	fees, err := s.Fees.Split(amount)
	if err != nil {
		return Withdrawal{}, err
	}

	withdrawn, err := types.CheckedAdd(s.WithdrawnAmount, amount)
	if err != nil {
		return Withdrawal{}, err
	}
	if withdrawn > s.DepositedAmount {
		return Withdrawal{}, fmt.Errorf("%w: withdrawn %d exceeds deposited %d",
			ErrArithmeticOverflow, withdrawn, s.DepositedAmount)
	}

	completed := withdrawn == s.DepositedAmount
	if completed && !CanTransition(s.Status, StatusCompleted) {
		return Withdrawal{}, transitionError(s.Status, StatusCompleted)
	}

	s.WithdrawnAmount = withdrawn
	s.LastMutationTime = now
	if completed {
		s.Status = StatusCompleted
	}

	return Withdrawal{
		Amount:    amount,
		Fees:      fees,
		Remaining: s.RemainingBalance(),
		Completed: completed,
	}, nil
}

// TopUp adds amount to the deposit.
func (s *Stream) TopUp(now int64, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if s.Status.IsTerminal() {
		return fmt.Errorf("%w: status %s", ErrStreamNotActive, s.Status)
	}
	if !s.Permissions.CanTopUp {
		return ErrTopUpNotAllowed
	}

	deposited, err := types.CheckedAdd(s.DepositedAmount, amount)
	if err != nil {
		return err
	}

	s.DepositedAmount = deposited
	s.LastMutationTime = now
	return nil
}

// TransferRecipient reassigns the stream to newRecipient. The sender may do
// so when TransferableBySender is set, the recipient when
// TransferableByRecipient is set. Any non-empty identity is accepted,
// including the sender and the current recipient.
func (s *Stream) TransferRecipient(now int64, authority, newRecipient Identity) error {
	allowed := (authority == s.Sender && s.Permissions.TransferableBySender) ||
		(authority == s.Recipient && s.Permissions.TransferableByRecipient)
	if !allowed {
		return fmt.Errorf("%w: %s may not transfer this stream", ErrUnauthorizedAccess, authority)
	}
	if s.Status == StatusCancelled {
		return ErrStreamAlreadyCancelled
	}
	if newRecipient == "" {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, newRecipient)
	}

	s.Recipient = newRecipient
	s.LastMutationTime = now
	return nil
}
