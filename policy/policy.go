// Package policy computes how much of a stream's deposit is unlocked at a
// point in time.
//
// Every function here is pure: the caller supplies the schedule and the
// current unix timestamp, nothing is read from a clock or mutated. Each
// vesting Kind maps to exactly one evaluation function; new kinds are added
// as a new constant and a new case in Evaluate.
package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/vesting/types"
)

// Kind selects the vesting curve of a stream. It is fixed at creation.
type Kind string

const (
	// Linear unlocks the deposit continuously between start and end.
	Linear Kind = "linear"
	// Cliff releases a lump sum at the cliff time and the rest linearly.
	Cliff Kind = "cliff"
	// Step releases a fixed rate amount per completed rate interval.
	Step Kind = "step"
	// Custom follows an explicit unlock table, or Linear when it has none.
	Custom Kind = "custom"
)

// Policy errors.
var (
	ErrUnknownPolicy       = errors.New("vesting: unknown vesting policy")
	ErrInvalidTimeRange    = errors.New("vesting: start time must be before end time")
	ErrInvalidCliffTime    = errors.New("vesting: cliff time must lie between start and end")
	ErrInvalidCliffAmount  = errors.New("vesting: cliff amount exceeds deposited amount")
	ErrInvalidRateInterval = errors.New("vesting: step policy requires a positive rate interval")
	ErrInvalidRateAmount   = errors.New("vesting: step policy requires a positive rate amount")
	ErrInvalidUnlock       = errors.New("vesting: custom unlock lies outside the stream window")
)

// ParseKind parses a policy name. Matching is case-insensitive.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
	return k, nil
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case Linear, Cliff, Step, Custom:
		return true
	default:
		return false
	}
}

func (k Kind) String() string { return string(k) }

// Unlock is one row of a custom unlock table: Amount becomes available at At.
type Unlock struct {
	At     int64  `json:"at" bson:"at"`
	Amount uint64 `json:"amount" bson:"amount"`
}

// Schedule is the subset of a stream that determines its unlock curve.
type Schedule struct {
	Kind         Kind
	Deposited    uint64
	StartTime    int64
	EndTime      int64
	CliffTime    *int64
	CliffAmount  uint64
	RateAmount   uint64
	RateInterval uint64
	Unlocks      []Unlock
}

// Result is the outcome of evaluating a schedule.
type Result struct {
	// Amount is the total unlocked so far, independent of withdrawals.
	Amount uint64
	// Fallback is set when a Custom schedule had no unlock table and was
	// evaluated as Linear. Callers are expected to surface this.
	Fallback bool
}

// Evaluate returns the amount unlocked by now. The result never exceeds
// s.Deposited and never decreases as now increases.
func Evaluate(s Schedule, now int64) (Result, error) {
	switch s.Kind {
	case Linear:
		amt, err := linear(s.Deposited, s.StartTime, s.EndTime, now)
		return Result{Amount: amt}, err
	case Cliff:
		amt, err := cliff(s, now)
		return Result{Amount: amt}, err
	case Step:
		amt, err := step(s, now)
		return Result{Amount: amt}, err
	case Custom:
		if len(s.Unlocks) == 0 {
			amt, err := linear(s.Deposited, s.StartTime, s.EndTime, now)
			return Result{Amount: amt, Fallback: true}, err
		}
		return Result{Amount: custom(s, now)}, nil
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, s.Kind)
	}
}

// StreamedAmount is Evaluate without the fallback flag.
func StreamedAmount(s Schedule, now int64) (uint64, error) {
	r, err := Evaluate(s, now)
	if err != nil {
		return 0, err
	}
	return r.Amount, nil
}

// linear returns floor(amount * (now-start) / (end-start)) clamped to
// [0, amount]. A degenerate window counts as fully streamed.
func linear(amount uint64, start, end, now int64) (uint64, error) {
	if now <= start {
		return 0, nil
	}
	if now >= end || end <= start {
		return amount, nil
	}

	// start < now < end, so both differences are positive and fit in uint64
	// even when the signed subtraction wraps.
	elapsed := uint64(now - start) //nolint:gosec // positive by the checks above
	total := uint64(end - start)   //nolint:gosec // positive by the checks above

	return types.MulDiv(amount, elapsed, total)
}

func cliff(s Schedule, now int64) (uint64, error) {
	gate := s.StartTime
	if s.CliffTime != nil {
		gate = *s.CliffTime
	}
	if now < gate {
		return 0, nil
	}
	if s.CliffAmount > s.Deposited {
		return 0, ErrInvalidCliffAmount
	}

	rest, err := linear(s.Deposited-s.CliffAmount, s.StartTime, s.EndTime, now)
	if err != nil {
		return 0, err
	}
	return types.CheckedAdd(s.CliffAmount, rest)
}

func step(s Schedule, now int64) (uint64, error) {
	if s.RateInterval == 0 {
		return 0, ErrInvalidRateInterval
	}
	if now <= s.StartTime {
		return 0, nil
	}

	intervals := uint64(now-s.StartTime) / s.RateInterval //nolint:gosec // now > start
	return types.MulCapped(intervals, s.RateAmount, s.Deposited), nil
}

// custom sums every unlock due by now. The table is capped at the deposit
// and anything not covered by it (for example a later top-up) is released at
// the end time.
func custom(s Schedule, now int64) uint64 {
	if now <= s.StartTime {
		return 0
	}
	if now >= s.EndTime {
		return s.Deposited
	}

	var total uint64
	for _, u := range s.Unlocks {
		if u.At > now {
			continue
		}
		sum, err := types.CheckedAdd(total, u.Amount)
		if err != nil || sum >= s.Deposited {
			return s.Deposited
		}
		total = sum
	}
	return total
}
