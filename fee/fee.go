// Package fee splits a payout into platform fee, partner fee and the net
// amount delivered to the recipient.
package fee

import (
	"errors"
	"fmt"

	"github.com/xraph/vesting/types"
)

// Basis point limits.
const (
	// MaxBps is the largest combined fee rate: 100%.
	MaxBps = types.BasisPointsDenominator
	// DefaultPlatformBps is the platform fee applied when none is configured.
	DefaultPlatformBps uint16 = 50
	// MaxPlatformBps is the platform fee ceiling enforced when a cap is requested.
	MaxPlatformBps uint16 = 500
)

var (
	// ErrFeeConfigInvalid is returned when the fee rates sum past 100%.
	ErrFeeConfigInvalid = errors.New("vesting: fee configuration invalid")
	// ErrPlatformFeeTooHigh is returned when a capped platform fee is exceeded.
	ErrPlatformFeeTooHigh = errors.New("vesting: platform fee exceeds maximum")
)

// Breakdown is the result of applying fees to a gross amount.
// PlatformFee + PartnerFee + Net == Gross always holds.
type Breakdown struct {
	Gross       uint64 `json:"gross"`
	PlatformFee uint64 `json:"platform_fee"`
	PartnerFee  uint64 `json:"partner_fee"`
	Net         uint64 `json:"net"`
}

// Total returns the combined fee.
func (b Breakdown) Total() uint64 { return b.PlatformFee + b.PartnerFee }

// Split applies platform and partner fees to amount. Each fee is floored
// independently; rounding dust stays with the recipient.
func Split(amount uint64, platformBps, partnerBps uint16) (Breakdown, error) {
	if uint32(platformBps)+uint32(partnerBps) > MaxBps {
		return Breakdown{}, fmt.Errorf("%w: %d + %d bps exceeds %d",
			ErrFeeConfigInvalid, platformBps, partnerBps, MaxBps)
	}

	platform := types.ApplyBps(amount, platformBps)
	partner := types.ApplyBps(amount, partnerBps)

	// platform+partner <= amount*(pb+qb)/10000 <= amount, so this cannot fail
	// once the bps sum has been checked.
	net, err := types.CheckedSub(amount, platform+partner)
	if err != nil {
		return Breakdown{}, err
	}

	return Breakdown{
		Gross:       amount,
		PlatformFee: platform,
		PartnerFee:  partner,
		Net:         net,
	}, nil
}

// Config is the fee configuration carried by a stream.
type Config struct {
	PlatformBps       uint16 `json:"platform_bps" bson:"platform_bps"`
	PartnerBps        uint16 `json:"partner_bps" bson:"partner_bps"`
	PlatformRecipient string `json:"platform_recipient,omitempty" bson:"platform_recipient,omitempty"`
	PartnerRecipient  string `json:"partner_recipient,omitempty" bson:"partner_recipient,omitempty"`
}

// Validate checks that the rates sum to at most 100%.
func (c Config) Validate() error {
	if uint32(c.PlatformBps)+uint32(c.PartnerBps) > MaxBps {
		return fmt.Errorf("%w: %d + %d bps exceeds %d",
			ErrFeeConfigInvalid, c.PlatformBps, c.PartnerBps, MaxBps)
	}
	return nil
}

// ValidateCapped is Validate plus the MaxPlatformBps ceiling.
func (c Config) ValidateCapped() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.PlatformBps > MaxPlatformBps {
		return fmt.Errorf("%w: %d bps > %d", ErrPlatformFeeTooHigh, c.PlatformBps, MaxPlatformBps)
	}
	return nil
}

// Split applies the configured rates to amount.
func (c Config) Split(amount uint64) (Breakdown, error) {
	return Split(amount, c.PlatformBps, c.PartnerBps)
}
