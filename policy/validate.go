package policy

import (
	"github.com/xraph/vesting/types"
)

// Validate checks the creation-time invariants of a schedule. It collects
// every violation rather than stopping at the first.
func Validate(s Schedule) error {
	var errs types.MultiError

	if !s.Kind.Valid() {
		errs.Add(ErrUnknownPolicy)
	}
	if s.StartTime >= s.EndTime {
		errs.Add(ErrInvalidTimeRange)
	}
	if s.CliffTime != nil && (*s.CliffTime < s.StartTime || *s.CliffTime > s.EndTime) {
		errs.Add(ErrInvalidCliffTime)
	}
	if s.CliffAmount > s.Deposited {
		errs.Add(ErrInvalidCliffAmount)
	}

	if s.Kind == Step {
		if s.RateInterval == 0 {
			errs.Add(ErrInvalidRateInterval)
		}
		if s.RateAmount == 0 {
			errs.Add(ErrInvalidRateAmount)
		}
	}

	if s.Kind == Custom {
		for _, u := range s.Unlocks {
			if u.At <= s.StartTime || u.At > s.EndTime {
				errs.Add(ErrInvalidUnlock)
				break
			}
		}
	}

	return errs.ErrOrNil()
}
