package fee

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name        string
		amount      uint64
		platformBps uint16
		partnerBps  uint16
		want        Breakdown
	}{
		{"no fees", 1000, 0, 0, Breakdown{Gross: 1000, Net: 1000}},
		{"default platform", 10_000, DefaultPlatformBps, 0, Breakdown{Gross: 10_000, PlatformFee: 50, Net: 9950}},
		{"platform and partner", 400, 250, 100, Breakdown{Gross: 400, PlatformFee: 10, PartnerFee: 4, Net: 386}},
		{"floors each fee", 99, 50, 50, Breakdown{Gross: 99, Net: 99}},
		{"full take", 1000, 6000, 4000, Breakdown{Gross: 1000, PlatformFee: 600, PartnerFee: 400, Net: 0}},
		{"max amount", math.MaxUint64, 10_000, 0, Breakdown{Gross: math.MaxUint64, PlatformFee: math.MaxUint64}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.amount, tt.platformBps, tt.partnerBps)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got.Gross, got.Total()+got.Net)
		})
	}
}

func TestSplitRejectsOverHundredPercent(t *testing.T) {
	_, err := Split(1000, 9000, 1001)
	assert.ErrorIs(t, err, ErrFeeConfigInvalid)

	_, err = Split(1000, math.MaxUint16, math.MaxUint16)
	assert.ErrorIs(t, err, ErrFeeConfigInvalid)
}

func TestFeeBound(t *testing.T) {
	amounts := []uint64{0, 1, 7, 999, 10_001, 1 << 40, math.MaxUint64}
	rates := []uint16{0, 1, 50, 333, 5000, 9999, 10_000}

	for _, amount := range amounts {
		for _, p := range rates {
			for _, q := range rates {
				b, err := Split(amount, p, q)
				if uint32(p)+uint32(q) > MaxBps {
					assert.ErrorIs(t, err, ErrFeeConfigInvalid)
					continue
				}
				require.NoError(t, err)
				assert.LessOrEqual(t, b.Total(), amount)
				assert.Equal(t, amount, b.Total()+b.Net)
			}
		}
	}
}

func TestConfig(t *testing.T) {
	c := Config{PlatformBps: 600, PartnerBps: 100}
	require.NoError(t, c.Validate())
	assert.ErrorIs(t, c.ValidateCapped(), ErrPlatformFeeTooHigh)

	c.PlatformBps = MaxPlatformBps
	assert.NoError(t, c.ValidateCapped())

	b, err := c.Split(10_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), b.PlatformFee)
	assert.Equal(t, uint64(100), b.PartnerFee)

	assert.ErrorIs(t, Config{PlatformBps: 10_000, PartnerBps: 1}.Validate(), ErrFeeConfigInvalid)
}
