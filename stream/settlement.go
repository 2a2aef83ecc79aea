package stream

import (
	"fmt"

	"github.com/xraph/vesting/fee"
	"github.com/xraph/vesting/types"
)

// Settlement splits the custody balance of a cancelled stream.
//
// The recipient receives what was earned but not yet withdrawn, capped at
// the custody balance; the sender receives the rest. Fees apply to the
// recipient's share only.
type Settlement struct {
	Earned         uint64        `json:"earned"`
	RecipientDue   uint64        `json:"recipient_due"`
	SenderDue      uint64        `json:"sender_due"`
	Fees           fee.Breakdown `json:"fees"`
	CustodyBalance uint64        `json:"custody_balance"`
}

// Conserves reports whether RecipientDue + SenderDue == CustodyBalance.
func (st Settlement) Conserves() bool {
	sum, err := types.CheckedAdd(st.RecipientDue, st.SenderDue)
	return err == nil && sum == st.CustodyBalance
}

// ComputeSettlement previews the cancellation split at now without
// modifying the stream. custodyBalance is the authoritative amount held in
// escrow and caps every payout.
func (s *Stream) ComputeSettlement(now int64, custodyBalance uint64) (Settlement, error) {
	earned, err := s.StreamedAmount(now)
	if err != nil {
		return Settlement{}, err
	}

	recipientDue := min(types.SaturatingSub(earned, s.WithdrawnAmount), custodyBalance)
	senderDue := custodyBalance - recipientDue

	fees, err := s.Fees.Split(recipientDue)
	if err != nil {
		return Settlement{}, err
	}

	return Settlement{
		Earned:         earned,
		RecipientDue:   recipientDue,
		SenderDue:      senderDue,
		Fees:           fees,
		CustodyBalance: custodyBalance,
	}, nil
}

// Cancel authorizes authority, settles the custody balance and moves the
// stream to Cancelled. The recipient's share is recorded as withdrawn.
func (s *Stream) Cancel(now int64, authority Identity, custodyBalance uint64) (Settlement, error) {
	if err := s.AuthorizeCancel(authority); err != nil {
		return Settlement{}, err
	}
	if !CanTransition(s.Status, StatusCancelled) {
		return Settlement{}, transitionError(s.Status, StatusCancelled)
	}

	st, err := s.ComputeSettlement(now, custodyBalance)
	if err != nil {
		return Settlement{}, err
	}

	withdrawn, err := types.CheckedAdd(s.WithdrawnAmount, st.RecipientDue)
	if err != nil {
		return Settlement{}, err
	}
	if withdrawn > s.DepositedAmount {
		return Settlement{}, fmt.Errorf("%w: withdrawn %d exceeds deposited %d",
			ErrArithmeticOverflow, withdrawn, s.DepositedAmount)
	}

	by := authority
	s.WithdrawnAmount = withdrawn
	s.Status = StatusCancelled
	s.CancelledAt = &now
	s.CancelledBy = &by
	s.LastMutationTime = now

	return st, nil
}
