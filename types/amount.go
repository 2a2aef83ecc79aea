// Package types provides common types used across Vesting.
package types

import (
	"errors"
	"math/big"
	"math/bits"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Arithmetic errors. These indicate an internal-consistency fault when they
// surface from a stream operation, never a user mistake.
var (
	ErrOverflow       = errors.New("vesting: arithmetic overflow")
	ErrUnderflow      = errors.New("vesting: arithmetic underflow")
	ErrDivisionByZero = errors.New("vesting: division by zero")
)

// BasisPointsDenominator is the number of basis points in 100%.
const BasisPointsDenominator = 10_000

// Amounts are unsigned integers in the smallest unit of the streamed asset.
// All arithmetic is integer-only, no floating point.

// CheckedAdd returns a+b or ErrOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// CheckedSub returns a-b or ErrUnderflow.
func CheckedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrUnderflow
	}
	return diff, nil
}

// SaturatingSub returns a-b, or 0 when b > a.
func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// MulDiv returns floor(a*b/denominator). The product is computed in a 256-bit
// domain so it cannot overflow; only a quotient that does not fit in 64 bits
// is reported as ErrOverflow.
func MulDiv(a, b, denominator uint64) (uint64, error) {
	if denominator == 0 {
		return 0, ErrDivisionByZero
	}

	x := uint256.NewInt(a)
	x.Mul(x, uint256.NewInt(b))
	x.Div(x, uint256.NewInt(denominator))

	if !x.IsUint64() {
		return 0, ErrOverflow
	}
	return x.Uint64(), nil
}

// MulCapped returns min(a*b, limit). Used for step accrual where the raw
// product may exceed 64 bits long after the deposit is exhausted.
func MulCapped(a, b, limit uint64) uint64 {
	x := uint256.NewInt(a)
	x.Mul(x, uint256.NewInt(b))
	if !x.IsUint64() || x.Uint64() > limit {
		return limit
	}
	return x.Uint64()
}

// ApplyBps returns floor(amount*bps/10000).
func ApplyBps(amount uint64, bps uint16) uint64 {
	// amount*bps/10000 <= amount, so the quotient always fits.
	v, _ := MulDiv(amount, uint64(bps), BasisPointsDenominator) //nolint:errcheck // bounded by amount
	return v
}

// AmountDecimal converts a raw amount into a decimal in major units using
// the asset's number of decimals.
func AmountDecimal(amount uint64, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -decimals)
}

// FormatAmount renders a raw amount in major units, e.g. 1500000 with
// 6 decimals is "1.500000".
func FormatAmount(amount uint64, decimals int32) string {
	if decimals <= 0 {
		return AmountDecimal(amount, 0).String()
	}
	return AmountDecimal(amount, decimals).StringFixed(decimals)
}
