// Package event defines the append-only record of stream lifecycle changes.
// One event is persisted atomically with every successful stream mutation.
package event

import (
	"time"

	"github.com/xraph/vesting/fee"
	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/stream"
)

// Type names a lifecycle change.
type Type string

const (
	TypeCreated     Type = "stream.created"
	TypeWithdrawn   Type = "stream.withdrawn"
	TypeCancelled   Type = "stream.cancelled"
	TypePaused      Type = "stream.paused"
	TypeResumed     Type = "stream.resumed"
	TypeTransferred Type = "stream.transferred"
	TypeToppedUp    Type = "stream.topped_up"
	TypeCompleted   Type = "stream.completed"
)

// Event is a single lifecycle change. Amount fields not relevant to the
// type are zero.
type Event struct {
	ID        id.EventID      `json:"id"`
	StreamID  id.StreamID     `json:"stream_id"`
	Type      Type            `json:"type"`
	Authority stream.Identity `json:"authority,omitempty"`

	// Withdrawals and cancellations.
	Amount          uint64        `json:"amount,omitempty"`
	Fees            fee.Breakdown `json:"fees"`
	RecipientAmount uint64        `json:"recipient_amount,omitempty"`
	SenderAmount    uint64        `json:"sender_amount,omitempty"`

	// Top-ups.
	NewDeposit uint64 `json:"new_deposit,omitempty"`

	// Recipient transfers.
	OldRecipient stream.Identity `json:"old_recipient,omitempty"`
	NewRecipient stream.Identity `json:"new_recipient,omitempty"`

	RemainingBalance uint64 `json:"remaining_balance"`
	// Timestamp is the ledger time (unix seconds) the change applied at.
	Timestamp int64     `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}

// New returns an event of type t for s at ledger time now.
func New(t Type, s *stream.Stream, authority stream.Identity, now int64, wall time.Time) *Event {
	return &Event{
		ID:               id.NewEventID(),
		StreamID:         s.ID,
		Type:             t,
		Authority:        authority,
		RemainingBalance: s.RemainingBalance(),
		Timestamp:        now,
		CreatedAt:        wall.UTC(),
	}
}

// Created records stream creation.
func Created(s *stream.Stream, now int64, wall time.Time) *Event {
	e := New(TypeCreated, s, s.Sender, now, wall)
	e.Amount = s.DepositedAmount
	return e
}

// Withdrawn records a withdrawal.
func Withdrawn(s *stream.Stream, authority stream.Identity, w stream.Withdrawal, now int64, wall time.Time) *Event {
	e := New(TypeWithdrawn, s, authority, now, wall)
	e.Amount = w.Amount
	e.Fees = w.Fees
	e.RecipientAmount = w.Fees.Net
	return e
}

// Cancelled records a cancellation and its settlement.
func Cancelled(s *stream.Stream, authority stream.Identity, st stream.Settlement, now int64, wall time.Time) *Event {
	e := New(TypeCancelled, s, authority, now, wall)
	e.Amount = st.CustodyBalance
	e.Fees = st.Fees
	e.RecipientAmount = st.Fees.Net
	e.SenderAmount = st.SenderDue
	return e
}

// Transferred records a recipient change.
func Transferred(s *stream.Stream, authority, oldRecipient stream.Identity, now int64, wall time.Time) *Event {
	e := New(TypeTransferred, s, authority, now, wall)
	e.OldRecipient = oldRecipient
	e.NewRecipient = s.Recipient
	return e
}

// ToppedUp records a top-up of amount.
func ToppedUp(s *stream.Stream, authority stream.Identity, amount uint64, now int64, wall time.Time) *Event {
	e := New(TypeToppedUp, s, authority, now, wall)
	e.Amount = amount
	e.NewDeposit = s.DepositedAmount
	return e
}
