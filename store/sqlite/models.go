package sqlite

import (
	"database/sql"
	"encoding/json"
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

// Amounts are stored as decimal TEXT: uint64 does not fit SQLite INTEGER.
// Timestamps on the entity are unix milliseconds.

const streamColumns = `id, name, sender, recipient, asset, custody_account,
    deposited_amount, withdrawn_amount, start_time, end_time, cliff_time,
    cliff_amount, rate_amount, rate_interval, policy, unlocks, status,
    permissions, fees, automatic_withdrawal, withdrawal_frequency,
    last_mutation_time, cancelled_at, cancelled_by, metadata,
    created_at, updated_at`

type streamModel struct {
	ID                  string
	Name                string
	Sender              string
	Recipient           string
	Asset               string
	CustodyAccount      string
	DepositedAmount     string
	WithdrawnAmount     string
	StartTime           int64
	EndTime             int64
	CliffTime           sql.NullInt64
	CliffAmount         string
	RateAmount          string
	RateInterval        string
	Policy              string
	Unlocks             string
	Status              string
	Permissions         string
	Fees                string
	AutomaticWithdrawal bool
	WithdrawalFrequency int64
	LastMutationTime    int64
	CancelledAt         sql.NullInt64
	CancelledBy         sql.NullString
	Metadata            string
	CreatedAt           int64
	UpdatedAt           int64
}

func (m *streamModel) args() []any {
	return []any{
		m.ID, m.Name, m.Sender, m.Recipient, m.Asset, m.CustodyAccount,
		m.DepositedAmount, m.WithdrawnAmount, m.StartTime, m.EndTime, m.CliffTime,
		m.CliffAmount, m.RateAmount, m.RateInterval, m.Policy, m.Unlocks, m.Status,
		m.Permissions, m.Fees, m.AutomaticWithdrawal, m.WithdrawalFrequency,
		m.LastMutationTime, m.CancelledAt, m.CancelledBy, m.Metadata,
		m.CreatedAt, m.UpdatedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStream(row rowScanner) (*streamModel, error) {
	m := new(streamModel)
	err := row.Scan(
		&m.ID, &m.Name, &m.Sender, &m.Recipient, &m.Asset, &m.CustodyAccount,
		&m.DepositedAmount, &m.WithdrawnAmount, &m.StartTime, &m.EndTime, &m.CliffTime,
		&m.CliffAmount, &m.RateAmount, &m.RateInterval, &m.Policy, &m.Unlocks, &m.Status,
		&m.Permissions, &m.Fees, &m.AutomaticWithdrawal, &m.WithdrawalFrequency,
		&m.LastMutationTime, &m.CancelledAt, &m.CancelledBy, &m.Metadata,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func toStreamModel(s *stream.Stream) (*streamModel, error) {
	unlocks := s.Unlocks
	if unlocks == nil {
		unlocks = []policy.Unlock{}
	}
	unlocksJSON, err := json.Marshal(unlocks)
	if err != nil {
		return nil, fmt.Errorf("marshal unlocks: %w", err)
	}
	permsJSON, err := json.Marshal(s.Permissions)
	if err != nil {
		return nil, fmt.Errorf("marshal permissions: %w", err)
	}
	feesJSON, err := json.Marshal(s.Fees)
	if err != nil {
		return nil, fmt.Errorf("marshal fees: %w", err)
	}
	metaJSON, err := json.Marshal(s.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

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
		CliffAmount:         formatUint(s.CliffAmount),
		RateAmount:          formatUint(s.RateAmount),
		RateInterval:        formatUint(s.RateInterval),
		Policy:              string(s.Policy),
		Unlocks:             string(unlocksJSON),
		Status:              string(s.Status),
		Permissions:         string(permsJSON),
		Fees:                string(feesJSON),
		AutomaticWithdrawal: s.AutomaticWithdrawal,
		WithdrawalFrequency: int64(s.WithdrawalFrequency), //nolint:gosec // bounded by stream.MaxDuration
		LastMutationTime:    s.LastMutationTime,
		Metadata:            string(metaJSON),
		CreatedAt:           toMillis(s.CreatedAt),
		UpdatedAt:           toMillis(s.UpdatedAt),
	}
	if s.CliffTime != nil {
		m.CliffTime = sql.NullInt64{Int64: *s.CliffTime, Valid: true}
	}
	if s.CancelledAt != nil {
		m.CancelledAt = sql.NullInt64{Int64: *s.CancelledAt, Valid: true}
	}
	if s.CancelledBy != nil {
		m.CancelledBy = sql.NullString{String: string(*s.CancelledBy), Valid: true}
	}
	return m, nil
}

func fromStreamModel(m *streamModel) (*stream.Stream, error) {
	streamID, err := id.ParseStreamID(m.ID)
	if err != nil {
		return nil, err
	}

	s := &stream.Stream{
		Entity: types.Entity{
			CreatedAt: fromMillis(m.CreatedAt),
			UpdatedAt: fromMillis(m.UpdatedAt),
		},
		ID:                  streamID,
		Name:                m.Name,
		Sender:              stream.Identity(m.Sender),
		Recipient:           stream.Identity(m.Recipient),
		Asset:               m.Asset,
		CustodyAccount:      m.CustodyAccount,
		StartTime:           m.StartTime,
		EndTime:             m.EndTime,
		Policy:              policy.Kind(m.Policy),
		Status:              stream.Status(m.Status),
		AutomaticWithdrawal: m.AutomaticWithdrawal,
		WithdrawalFrequency: uint64(m.WithdrawalFrequency), //nolint:gosec // written from a uint64
		LastMutationTime:    m.LastMutationTime,
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
		if *f.dst, err = strconv.ParseUint(f.src, 10, 64); err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", f.src, err)
		}
	}

	if err := json.Unmarshal([]byte(m.Unlocks), &s.Unlocks); err != nil {
		return nil, fmt.Errorf("unmarshal unlocks: %w", err)
	}
	if len(s.Unlocks) == 0 {
		s.Unlocks = nil
	}
	if err := json.Unmarshal([]byte(m.Permissions), &s.Permissions); err != nil {
		return nil, fmt.Errorf("unmarshal permissions: %w", err)
	}
	var fees fee.Config
	if err := json.Unmarshal([]byte(m.Fees), &fees); err != nil {
		return nil, fmt.Errorf("unmarshal fees: %w", err)
	}
	s.Fees = fees
	if err := json.Unmarshal([]byte(m.Metadata), &s.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}

	if m.CliffTime.Valid {
		v := m.CliffTime.Int64
		s.CliffTime = &v
	}
	if m.CancelledAt.Valid {
		v := m.CancelledAt.Int64
		s.CancelledAt = &v
	}
	if m.CancelledBy.Valid {
		v := stream.Identity(m.CancelledBy.String)
		s.CancelledBy = &v
	}
	return s, nil
}

type eventModel struct {
	ID        string
	StreamID  string
	Type      string
	Timestamp int64
	Payload   string
	CreatedAt int64
}

func toEventModel(e *event.Event) (*eventModel, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return &eventModel{
		ID:        e.ID.String(),
		StreamID:  e.StreamID.String(),
		Type:      string(e.Type),
		Timestamp: e.Timestamp,
		Payload:   string(payload),
		CreatedAt: toMillis(e.CreatedAt),
	}, nil
}

func fromEventPayload(payload string) (*event.Event, error) {
	e := new(event.Event)
	if err := json.Unmarshal([]byte(payload), e); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return e, nil
}

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }
