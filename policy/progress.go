package policy

import (
	"github.com/shopspring/decimal"

	"github.com/xraph/vesting/types"
)

// Progress returns how far now is through [start, end] in basis points
// (0..10000). It measures time, not unlocked value.
func Progress(start, end, now int64) uint16 {
	if now < start {
		return 0
	}
	if now >= end || end <= start {
		return types.BasisPointsDenominator
	}

	elapsed := uint64(now - start) //nolint:gosec // now >= start
	total := uint64(end - start)   //nolint:gosec // end > start

	bps, err := types.MulDiv(elapsed, types.BasisPointsDenominator, total)
	if err != nil || bps > types.BasisPointsDenominator {
		return types.BasisPointsDenominator
	}
	return uint16(bps) //nolint:gosec // bounded by 10000
}

// ProgressFraction is Progress as an exact fraction in [0, 1].
func ProgressFraction(start, end, now int64) decimal.Decimal {
	if now < start {
		return decimal.Zero
	}
	if now >= end || end <= start {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(now - start).Div(decimal.NewFromInt(end - start))
}
