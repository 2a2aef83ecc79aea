package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/xraph/vesting/event"
	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/policy"
	"github.com/xraph/vesting/stream"
	"github.com/xraph/vesting/types"
)

const streamColumns = `id, name, sender, recipient, asset, custody_account,
    deposited_amount, withdrawn_amount, start_time, end_time, cliff_time,
    cliff_amount, rate_amount, rate_interval, policy, unlocks, status,
    permissions, fees, automatic_withdrawal, withdrawal_frequency,
    last_mutation_time, cancelled_at, cancelled_by, metadata,
    created_at, updated_at`

var errNumericRange = errors.New("numeric value out of uint64 range")

type streamModel struct {
	ID                  string
	Name                string
	Sender              string
	Recipient           string
	Asset               string
	CustodyAccount      string
	DepositedAmount     pgtype.Numeric
	WithdrawnAmount     pgtype.Numeric
	StartTime           int64
	EndTime             int64
	CliffTime           *int64
	CliffAmount         pgtype.Numeric
	RateAmount          pgtype.Numeric
	RateInterval        pgtype.Numeric
	Policy              string
	Unlocks             []byte
	Status              string
	Permissions         []byte
	Fees                []byte
	AutomaticWithdrawal bool
	WithdrawalFrequency int64
	LastMutationTime    int64
	CancelledAt         *int64
	CancelledBy         *string
	Metadata            []byte
	CreatedAt           time.Time
	UpdatedAt           time.Time
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
		DepositedAmount:     toNumeric(s.DepositedAmount),
		WithdrawnAmount:     toNumeric(s.WithdrawnAmount),
		StartTime:           s.StartTime,
		EndTime:             s.EndTime,
		CliffTime:           s.CliffTime,
		CliffAmount:         toNumeric(s.CliffAmount),
		RateAmount:          toNumeric(s.RateAmount),
		RateInterval:        toNumeric(s.RateInterval),
		Policy:              string(s.Policy),
		Unlocks:             unlocksJSON,
		Status:              string(s.Status),
		Permissions:         permsJSON,
		Fees:                feesJSON,
		AutomaticWithdrawal: s.AutomaticWithdrawal,
		WithdrawalFrequency: int64(s.WithdrawalFrequency), //nolint:gosec // bounded by stream.MaxDuration
		LastMutationTime:    s.LastMutationTime,
		CancelledAt:         s.CancelledAt,
		Metadata:            metaJSON,
		CreatedAt:           s.CreatedAt.UTC(),
		UpdatedAt:           s.UpdatedAt.UTC(),
	}
	if s.CancelledBy != nil {
		v := string(*s.CancelledBy)
		m.CancelledBy = &v
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
		AutomaticWithdrawal: m.AutomaticWithdrawal,
		WithdrawalFrequency: uint64(m.WithdrawalFrequency), //nolint:gosec // written from a uint64
		LastMutationTime:    m.LastMutationTime,
		CancelledAt:         m.CancelledAt,
	}

	for _, f := range []struct {
		dst *uint64
		src pgtype.Numeric
	}{
		{&s.DepositedAmount, m.DepositedAmount},
		{&s.WithdrawnAmount, m.WithdrawnAmount},
		{&s.CliffAmount, m.CliffAmount},
		{&s.RateAmount, m.RateAmount},
		{&s.RateInterval, m.RateInterval},
	} {
		if *f.dst, err = fromNumeric(f.src); err != nil {
			return nil, err
		}
	}

	if err := json.Unmarshal(m.Unlocks, &s.Unlocks); err != nil {
		return nil, fmt.Errorf("unmarshal unlocks: %w", err)
	}
	if len(s.Unlocks) == 0 {
		s.Unlocks = nil
	}
	if err := json.Unmarshal(m.Permissions, &s.Permissions); err != nil {
		return nil, fmt.Errorf("unmarshal permissions: %w", err)
	}
	if err := json.Unmarshal(m.Fees, &s.Fees); err != nil {
		return nil, fmt.Errorf("unmarshal fees: %w", err)
	}
	if err := json.Unmarshal(m.Metadata, &s.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if m.CancelledBy != nil {
		v := stream.Identity(*m.CancelledBy)
		s.CancelledBy = &v
	}
	return s, nil
}

func toNumeric(v uint64) pgtype.Numeric {
	return pgtype.Numeric{Int: new(big.Int).SetUint64(v), Valid: true}
}

// fromNumeric converts an integral NUMERIC back to uint64. Postgres may
// return trailing zeros folded into a positive exponent.
func fromNumeric(n pgtype.Numeric) (uint64, error) {
	if !n.Valid || n.Int == nil {
		return 0, nil
	}
	v := new(big.Int).Set(n.Int)
	if n.Exp != 0 {
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(abs32(n.Exp))), nil)
		if n.Exp > 0 {
			v.Mul(v, scale)
		} else {
			v.Quo(v, scale)
		}
	}
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s", errNumericRange, v)
	}
	return v.Uint64(), nil
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

type eventModel struct {
	ID        string
	StreamID  string
	Type      string
	Timestamp int64
	Payload   []byte
	CreatedAt time.Time
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
		Payload:   payload,
		CreatedAt: e.CreatedAt.UTC(),
	}, nil
}

func fromEventPayload(payload []byte) (*event.Event, error) {
	e := new(event.Event)
	if err := json.Unmarshal(payload, e); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return e, nil
}
