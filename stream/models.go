// Package stream holds the stream record and the operations that mutate it:
// withdrawal, top-up, recipient transfer, pause/resume and cancellation with
// settlement.
//
// Operations take the current unix time as an argument and never read a
// clock, touch storage or move value. Every precondition is checked before
// any field is written, so a failed call leaves the record unchanged.
// Callers serialize access to a single record.
package stream

import (
	"slices"

	"github.com/xraph/vesting/fee"
	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/policy"
	"github.com/xraph/vesting/types"
)

// Identity is an opaque, already-authenticated party handle.
type Identity string

// Status is the lifecycle state of a stream.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusStreaming Status = "streaming"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusStreaming, StatusPaused, StatusCancelled, StatusCompleted:
		return true
	default:
		return false
	}
}

// Permissions are fixed at creation.
type Permissions struct {
	CancelableBySender      bool `json:"cancelable_by_sender" bson:"cancelable_by_sender"`
	CancelableByRecipient   bool `json:"cancelable_by_recipient" bson:"cancelable_by_recipient"`
	TransferableBySender    bool `json:"transferable_by_sender" bson:"transferable_by_sender"`
	TransferableByRecipient bool `json:"transferable_by_recipient" bson:"transferable_by_recipient"`
	CanTopUp                bool `json:"can_top_up" bson:"can_top_up"`
}

// DefaultPermissions lets the sender cancel, the recipient reassign the
// stream, and allows top-ups.
func DefaultPermissions() Permissions {
	return Permissions{
		CancelableBySender:      true,
		TransferableByRecipient: true,
		CanTopUp:                true,
	}
}

// Metadata is descriptive, bounded text. See types.Max*Len for limits.
type Metadata struct {
	Description string `json:"description,omitempty" bson:"description,omitempty"`
	Category    string `json:"category,omitempty" bson:"category,omitempty"`
	ExternalID  string `json:"external_id,omitempty" bson:"external_id,omitempty"`
}

// Stream is a single sender-to-recipient vesting arrangement.
//
// Invariants: WithdrawnAmount <= DepositedAmount; StartTime < EndTime;
// StartTime <= *CliffTime <= EndTime; CliffAmount <= DepositedAmount.
type Stream struct {
	types.Entity

	ID             id.StreamID `json:"id"`
	Name           string      `json:"name,omitempty"`
	Sender         Identity    `json:"sender"`
	Recipient      Identity    `json:"recipient"`
	Asset          string      `json:"asset"`
	CustodyAccount string      `json:"custody_account"`

	DepositedAmount uint64 `json:"deposited_amount"`
	WithdrawnAmount uint64 `json:"withdrawn_amount"`

	StartTime    int64           `json:"start_time"`
	EndTime      int64           `json:"end_time"`
	CliffTime    *int64          `json:"cliff_time,omitempty"`
	CliffAmount  uint64          `json:"cliff_amount"`
	RateAmount   uint64          `json:"rate_amount"`
	RateInterval uint64          `json:"rate_interval"`
	Policy       policy.Kind     `json:"policy"`
	Unlocks      []policy.Unlock `json:"unlocks,omitempty"`

	Status      Status      `json:"status"`
	Permissions Permissions `json:"permissions"`
	Fees        fee.Config  `json:"fees"`

	AutomaticWithdrawal bool   `json:"automatic_withdrawal"`
	WithdrawalFrequency uint64 `json:"withdrawal_frequency"`
	LastMutationTime    int64  `json:"last_mutation_time"`

	CancelledAt *int64    `json:"cancelled_at,omitempty"`
	CancelledBy *Identity `json:"cancelled_by,omitempty"`

	Metadata Metadata `json:"metadata"`
}

// Schedule projects the fields that drive the vesting curve.
func (s *Stream) Schedule() policy.Schedule {
	return policy.Schedule{
		Kind:         s.Policy,
		Deposited:    s.DepositedAmount,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		CliffTime:    s.CliffTime,
		CliffAmount:  s.CliffAmount,
		RateAmount:   s.RateAmount,
		RateInterval: s.RateInterval,
		Unlocks:      s.Unlocks,
	}
}

// Clone returns a deep copy. Mutating operations are applied to a clone so
// that the stored record is only replaced once the whole operation succeeds.
func (s *Stream) Clone() *Stream {
	c := *s
	c.CliffTime = clonePtr(s.CliffTime)
	c.CancelledAt = clonePtr(s.CancelledAt)
	c.CancelledBy = clonePtr(s.CancelledBy)
	c.Unlocks = slices.Clone(s.Unlocks)
	return &c
}

// UsesPolicyFallback reports whether the stream is a Custom stream without
// an unlock table, which is evaluated as Linear.
func (s *Stream) UsesPolicyFallback() bool {
	return s.Policy == policy.Custom && len(s.Unlocks) == 0
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
