package policy

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func linearSchedule() Schedule {
	return Schedule{Kind: Linear, Deposited: 1000, StartTime: 100, EndTime: 200}
}

func TestLinear(t *testing.T) {
	s := linearSchedule()

	tests := []struct {
		now  int64
		want uint64
	}{
		{50, 0},
		{100, 0},
		{101, 10},
		{150, 500},
		{199, 990},
		{200, 1000},
		{250, 1000},
	}

	for _, tt := range tests {
		got, err := StreamedAmount(s, tt.now)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "now=%d", tt.now)
	}
}

func TestLinearFloors(t *testing.T) {
	s := Schedule{Kind: Linear, Deposited: 10, StartTime: 0, EndTime: 3}
	got, err := StreamedAmount(s, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got)
}

func TestLinearDegenerateWindowIsFullyStreamed(t *testing.T) {
	s := Schedule{Kind: Linear, Deposited: 1000, StartTime: 100, EndTime: 100}
	got, err := StreamedAmount(s, 101)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), got)
}

func TestLinearWideProduct(t *testing.T) {
	s := Schedule{Kind: Linear, Deposited: math.MaxUint64, StartTime: 0, EndTime: 4}
	got, err := StreamedAmount(s, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64/2), got)
}

func TestCliffGate(t *testing.T) {
	s := Schedule{Kind: Cliff, Deposited: 1000, StartTime: 100, EndTime: 200, CliffTime: ptr(150)}

	tests := []struct {
		now  int64
		want uint64
	}{
		{140, 0},
		{149, 0},
		{150, 500},
		{200, 1000},
	}

	for _, tt := range tests {
		got, err := StreamedAmount(s, tt.now)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "now=%d", tt.now)
	}
}

func TestCliffWithLumpSum(t *testing.T) {
	s := Schedule{
		Kind:        Cliff,
		Deposited:   1000,
		StartTime:   100,
		EndTime:     200,
		CliffTime:   ptr(120),
		CliffAmount: 200,
	}

	got, err := StreamedAmount(s, 119)
	require.NoError(t, err)
	assert.Zero(t, got)

	// 200 lump + 800 * 20/100
	got, err = StreamedAmount(s, 120)
	require.NoError(t, err)
	assert.Equal(t, uint64(360), got)

	got, err = StreamedAmount(s, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), got)
}

func TestCliffWithoutCliffTimeGatesOnStart(t *testing.T) {
	s := Schedule{Kind: Cliff, Deposited: 1000, StartTime: 100, EndTime: 200, CliffAmount: 100}

	got, err := StreamedAmount(s, 99)
	require.NoError(t, err)
	assert.Zero(t, got)

	got, err = StreamedAmount(s, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), got)
}

func TestCliffAmountAboveDeposit(t *testing.T) {
	s := Schedule{Kind: Cliff, Deposited: 10, StartTime: 0, EndTime: 10, CliffAmount: 11}
	_, err := StreamedAmount(s, 5)
	assert.ErrorIs(t, err, ErrInvalidCliffAmount)
}

func TestStep(t *testing.T) {
	s := Schedule{Kind: Step, Deposited: 1000, StartTime: 100, EndTime: 200, RateAmount: 300, RateInterval: 10}

	tests := []struct {
		now  int64
		want uint64
	}{
		{90, 0},
		{100, 0},
		{109, 0},
		{110, 300},
		{125, 600},
		{130, 900},
		{140, 1000},
		{1 << 40, 1000},
	}

	for _, tt := range tests {
		got, err := StreamedAmount(s, tt.now)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "now=%d", tt.now)
	}
}

func TestStepRequiresInterval(t *testing.T) {
	s := Schedule{Kind: Step, Deposited: 1000, StartTime: 0, EndTime: 10, RateAmount: 1}
	_, err := StreamedAmount(s, 5)
	assert.ErrorIs(t, err, ErrInvalidRateInterval)
}

func TestCustomFallsBackToLinear(t *testing.T) {
	s := linearSchedule()
	s.Kind = Custom

	r, err := Evaluate(s, 150)
	require.NoError(t, err)
	assert.True(t, r.Fallback)
	assert.Equal(t, uint64(500), r.Amount)
}

func TestCustomUnlockTable(t *testing.T) {
	s := Schedule{
		Kind:      Custom,
		Deposited: 1000,
		StartTime: 100,
		EndTime:   200,
		Unlocks: []Unlock{
			{At: 150, Amount: 400},
			{At: 120, Amount: 100},
		},
	}

	tests := []struct {
		now  int64
		want uint64
	}{
		{100, 0},
		{119, 0},
		{120, 100},
		{150, 500},
		{199, 500},
		{200, 1000},
	}

	for _, tt := range tests {
		r, err := Evaluate(s, tt.now)
		require.NoError(t, err)
		assert.False(t, r.Fallback)
		assert.Equal(t, tt.want, r.Amount, "now=%d", tt.now)
	}
}

func TestCustomTableCappedAtDeposit(t *testing.T) {
	s := Schedule{
		Kind:      Custom,
		Deposited: 100,
		StartTime: 0,
		EndTime:   100,
		Unlocks:   []Unlock{{At: 10, Amount: math.MaxUint64}, {At: 10, Amount: 5}},
	}
	got, err := StreamedAmount(s, 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), got)
}

func TestUnknownPolicy(t *testing.T) {
	_, err := StreamedAmount(Schedule{Kind: "exponential"}, 0)
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

// Every kind must be monotone in time and bounded by the deposit.
func TestMonotoneAndBounded(t *testing.T) {
	schedules := map[string]Schedule{
		"linear": {Kind: Linear, Deposited: 7919, StartTime: 1000, EndTime: 4000},
		"cliff": {Kind: Cliff, Deposited: 7919, StartTime: 1000, EndTime: 4000,
			CliffTime: ptr(2000), CliffAmount: 1234},
		"step": {Kind: Step, Deposited: 7919, StartTime: 1000, EndTime: 4000,
			RateAmount: 333, RateInterval: 97},
		"custom": {Kind: Custom, Deposited: 7919, StartTime: 1000, EndTime: 4000,
			Unlocks: []Unlock{{At: 1500, Amount: 1000}, {At: 3000, Amount: 2000}}},
		"custom fallback": {Kind: Custom, Deposited: 7919, StartTime: 1000, EndTime: 4000},
	}

	for name, s := range schedules {
		t.Run(name, func(t *testing.T) {
			var prev uint64
			for now := int64(0); now <= 5000; now += 7 {
				got, err := StreamedAmount(s, now)
				require.NoError(t, err)
				assert.LessOrEqual(t, got, s.Deposited, "now=%d", now)
				assert.GreaterOrEqual(t, got, prev, "now=%d", now)
				if now <= s.StartTime {
					assert.Zero(t, got, "now=%d", now)
				}
				prev = got
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Schedule)
		wantErr error
	}{
		{"valid linear", func(*Schedule) {}, nil},
		{"unknown kind", func(s *Schedule) { s.Kind = "bogus" }, ErrUnknownPolicy},
		{"start equals end", func(s *Schedule) { s.EndTime = s.StartTime }, ErrInvalidTimeRange},
		{"cliff before start", func(s *Schedule) { s.CliffTime = ptr(s.StartTime - 1) }, ErrInvalidCliffTime},
		{"cliff after end", func(s *Schedule) { s.CliffTime = ptr(s.EndTime + 1) }, ErrInvalidCliffTime},
		{"cliff at end", func(s *Schedule) { s.CliffTime = ptr(s.EndTime) }, nil},
		{"cliff amount too large", func(s *Schedule) { s.CliffAmount = s.Deposited + 1 }, ErrInvalidCliffAmount},
		{"step without interval", func(s *Schedule) { s.Kind = Step; s.RateAmount = 1 }, ErrInvalidRateInterval},
		{"step without rate", func(s *Schedule) { s.Kind = Step; s.RateInterval = 1 }, ErrInvalidRateAmount},
		{"custom unlock at start", func(s *Schedule) {
			s.Kind = Custom
			s.Unlocks = []Unlock{{At: s.StartTime, Amount: 1}}
		}, ErrInvalidUnlock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := linearSchedule()
			tt.mutate(&s)
			err := Validate(s)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestValidateCollectsAllViolations(t *testing.T) {
	s := Schedule{Kind: Step, Deposited: 1, StartTime: 10, EndTime: 5, CliffAmount: 2}
	err := Validate(s)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTimeRange)
	assert.ErrorIs(t, err, ErrInvalidCliffAmount)
	assert.ErrorIs(t, err, ErrInvalidRateInterval)
	assert.ErrorIs(t, err, ErrInvalidRateAmount)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Cliff ")
	require.NoError(t, err)
	assert.Equal(t, Cliff, k)

	_, err = ParseKind("vesting")
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

func TestProgress(t *testing.T) {
	assert.Equal(t, uint16(0), Progress(100, 200, 50))
	assert.Equal(t, uint16(0), Progress(100, 200, 100))
	assert.Equal(t, uint16(2500), Progress(100, 200, 125))
	assert.Equal(t, uint16(10000), Progress(100, 200, 200))
	assert.Equal(t, uint16(10000), Progress(100, 100, 100))

	assert.True(t, ProgressFraction(100, 200, 125).Equal(decimal.RequireFromString("0.25")))
	assert.True(t, ProgressFraction(100, 200, 10).IsZero())
	assert.True(t, ProgressFraction(100, 200, 300).Equal(decimal.NewFromInt(1)))
}
