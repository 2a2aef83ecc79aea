package mongo

import (
	"fmt"
	"strconv"
	"time"

	"github.com/xraph/vesting/event"
	"github.com/xraph/vesting/fee"
	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/policy"
	"github.com/xraph/vesting/stream"
	"github.com/xraph/vesting/types"
)

// BSON has no unsigned 64-bit integer, so amounts are stored as decimal
// strings. Seconds-valued fields fit int64.

// ==================== Stream models ====================

type streamModel struct {
	ID                  string             `bson:"_id"`
	Name                string             `bson:"name"`
	Sender              string             `bson:"sender"`
	Recipient           string             `bson:"recipient"`
	Asset               string             `bson:"asset"`
	CustodyAccount      string             `bson:"custody_account"`
	DepositedAmount     string             `bson:"deposited_amount"`
	WithdrawnAmount     string             `bson:"withdrawn_amount"`
	StartTime           int64              `bson:"start_time"`
	EndTime             int64              `bson:"end_time"`
	CliffTime           *int64             `bson:"cliff_time,omitempty"`
	CliffAmount         string             `bson:"cliff_amount"`
	RateAmount          string             `bson:"rate_amount"`
	RateInterval        string             `bson:"rate_interval"`
	Policy              string             `bson:"policy"`
	Unlocks             []unlockModel      `bson:"unlocks,omitempty"`
	Status              string             `bson:"status"`
	Permissions         stream.Permissions `bson:"permissions"`
	Fees                fee.Config         `bson:"fees"`
	AutomaticWithdrawal bool               `bson:"automatic_withdrawal"`
	WithdrawalFrequency int64              `bson:"withdrawal_frequency"`
	LastMutationTime    int64              `bson:"last_mutation_time"`
	CancelledAt         *int64             `bson:"cancelled_at,omitempty"`
	CancelledBy         *string            `bson:"cancelled_by,omitempty"`
	Metadata            stream.Metadata    `bson:"metadata"`
	CreatedAt           time.Time          `bson:"created_at"`
	UpdatedAt           time.Time          `bson:"updated_at"`
}

type unlockModel struct {
	At     int64  `bson:"at"`
	Amount string `bson:"amount"`
}

func toStreamModel(s *stream.Stream) *streamModel {
	m := &streamModel{
		ID:                  s.ID.String(),
		Name:                s.Name,
		Sender:              string(s.Sender),
		Recipient:           string(s.Recipient),
		Asset:               s.Asset,
		CustodyAccount:      s.CustodyAccount,
		DepositedAmount:     formatUint(s.DepositedAmount),
		WithdrawnAmount:     formatUint(s.WithdrawnAmount),
		StartTime:           s.StartTime,
		EndTime:             s.EndTime,
		CliffTime:           s.CliffTime,
		CliffAmount:         formatUint(s.CliffAmount),
		RateAmount:          formatUint(s.RateAmount),
		RateInterval:        formatUint(s.RateInterval),
		Policy:              string(s.Policy),
		Status:              string(s.Status),
		Permissions:         s.Permissions,
		Fees:                s.Fees,
		AutomaticWithdrawal: s.AutomaticWithdrawal,
		WithdrawalFrequency: int64(s.WithdrawalFrequency), //nolint:gosec // bounded by stream.MaxDuration
		LastMutationTime:    s.LastMutationTime,
		CancelledAt:         s.CancelledAt,
		Metadata:            s.Metadata,
		CreatedAt:           s.CreatedAt.UTC(),
		UpdatedAt:           s.UpdatedAt.UTC(),
	}
	for _, u := range s.Unlocks {
		m.Unlocks = append(m.Unlocks, unlockModel{At: u.At, Amount: formatUint(u.Amount)})
	}
	if s.CancelledBy != nil {
		v := string(*s.CancelledBy)
		m.CancelledBy = &v
	}
	return m
}

func fromStreamModel(m *streamModel) (*stream.Stream, error) {
	streamID, err := id.ParseStreamID(m.ID)
	if err != nil {
		return nil, err
	}

	s := &stream.Stream{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:                  streamID,
		Name:                m.Name,
		Sender:              stream.Identity(m.Sender),
		Recipient:           stream.Identity(m.Recipient),
		Asset:               m.Asset,
		CustodyAccount:      m.CustodyAccount,
		StartTime:           m.StartTime,
		EndTime:             m.EndTime,
		CliffTime:           m.CliffTime,
		Policy:              policy.Kind(m.Policy),
		Status:              stream.Status(m.Status),
		Permissions:         m.Permissions,
		Fees:                m.Fees,
		AutomaticWithdrawal: m.AutomaticWithdrawal,
		WithdrawalFrequency: uint64(m.WithdrawalFrequency), //nolint:gosec // written from a uint64
		LastMutationTime:    m.LastMutationTime,
		CancelledAt:         m.CancelledAt,
		Metadata:            m.Metadata,
	}

	for _, f := range []struct {
		dst *uint64
		src string
	}{
		{&s.DepositedAmount, m.DepositedAmount},
		{&s.WithdrawnAmount, m.WithdrawnAmount},
		{&s.CliffAmount, m.CliffAmount},
		{&s.RateAmount, m.RateAmount},
		{&s.RateInterval, m.RateInterval},
	} {
		if *f.dst, err = parseUint(f.src); err != nil {
			return nil, err
		}
	}
	for _, u := range m.Unlocks {
		amount, err := parseUint(u.Amount)
		if err != nil {
			return nil, err
		}
		s.Unlocks = append(s.Unlocks, policy.Unlock{At: u.At, Amount: amount})
	}
	if m.CancelledBy != nil {
		v := stream.Identity(*m.CancelledBy)
		s.CancelledBy = &v
	}
	return s, nil
}

// ==================== Event models ====================

type eventModel struct {
	ID               string    `bson:"_id"`
	StreamID         string    `bson:"stream_id"`
	Type             string    `bson:"type"`
	Authority        string    `bson:"authority,omitempty"`
	Amount           string    `bson:"amount"`
	PlatformFee      string    `bson:"platform_fee"`
	PartnerFee       string    `bson:"partner_fee"`
	FeeGross         string    `bson:"fee_gross"`
	FeeNet           string    `bson:"fee_net"`
	RecipientAmount  string    `bson:"recipient_amount"`
	SenderAmount     string    `bson:"sender_amount"`
	NewDeposit       string    `bson:"new_deposit"`
	OldRecipient     string    `bson:"old_recipient,omitempty"`
	NewRecipient     string    `bson:"new_recipient,omitempty"`
	RemainingBalance string    `bson:"remaining_balance"`
	Timestamp        int64     `bson:"timestamp"`
	CreatedAt        time.Time `bson:"created_at"`
}

func toEventModel(e *event.Event) *eventModel {
	return &eventModel{
		ID:               e.ID.String(),
		StreamID:         e.StreamID.String(),
		Type:             string(e.Type),
		Authority:        string(e.Authority),
		Amount:           formatUint(e.Amount),
		PlatformFee:      formatUint(e.Fees.PlatformFee),
		PartnerFee:       formatUint(e.Fees.PartnerFee),
		FeeGross:         formatUint(e.Fees.Gross),
		FeeNet:           formatUint(e.Fees.Net),
		RecipientAmount:  formatUint(e.RecipientAmount),
		SenderAmount:     formatUint(e.SenderAmount),
		NewDeposit:       formatUint(e.NewDeposit),
		OldRecipient:     string(e.OldRecipient),
		NewRecipient:     string(e.NewRecipient),
		RemainingBalance: formatUint(e.RemainingBalance),
		Timestamp:        e.Timestamp,
		CreatedAt:        e.CreatedAt.UTC(),
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	eventID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, err
	}
	streamID, err := id.ParseStreamID(m.StreamID)
	if err != nil {
		return nil, err
	}

	e := &event.Event{
		ID:           eventID,
		StreamID:     streamID,
		Type:         event.Type(m.Type),
		Authority:    stream.Identity(m.Authority),
		OldRecipient: stream.Identity(m.OldRecipient),
		NewRecipient: stream.Identity(m.NewRecipient),
		Timestamp:    m.Timestamp,
		CreatedAt:    m.CreatedAt.UTC(),
	}
	for _, f := range []struct {
		dst *uint64
		src string
	}{
		{&e.Amount, m.Amount},
		{&e.Fees.PlatformFee, m.PlatformFee},
		{&e.Fees.PartnerFee, m.PartnerFee},
		{&e.Fees.Gross, m.FeeGross},
		{&e.Fees.Net, m.FeeNet},
		{&e.RecipientAmount, m.RecipientAmount},
		{&e.SenderAmount, m.SenderAmount},
		{&e.NewDeposit, m.NewDeposit},
		{&e.RemainingBalance, m.RemainingBalance},
	} {
		if *f.dst, err = parseUint(f.src); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}
