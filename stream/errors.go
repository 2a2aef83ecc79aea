package stream

import (
	"errors"

	"github.com/xraph/vesting/fee"
	"github.com/xraph/vesting/policy"
	"github.com/xraph/vesting/types"
)

// Sentinel errors for stream operations.
var (
	// User input errors
	ErrInvalidAmount                  = errors.New("vesting: amount must be greater than zero")
	ErrInvalidRecipient               = errors.New("vesting: invalid recipient")
	ErrInvalidDuration                = errors.New("vesting: stream duration out of range")
	ErrInvalidWithdrawalFrequency     = errors.New("vesting: automatic withdrawal requires a positive frequency")
	ErrFeeRecipientRequired           = errors.New("vesting: fee recipient required for non-zero fee")
	ErrInsufficientWithdrawableAmount = errors.New("vesting: requested amount exceeds withdrawable amount")

	// Authorization errors
	ErrUnauthorizedAccess = errors.New("vesting: unauthorized access")
	ErrTopUpNotAllowed    = errors.New("vesting: stream does not accept top-ups")

	// State errors
	ErrInvalidStatusTransition    = errors.New("vesting: invalid status transition")
	ErrNoFundsAvailable           = errors.New("vesting: no funds available to withdraw")
	ErrStreamNotActive            = errors.New("vesting: stream is not active")
	ErrStreamAlreadyPaused        = errors.New("vesting: stream is already paused")
	ErrStreamNotPaused            = errors.New("vesting: stream is not paused")
	ErrStreamAlreadyCancelled     = errors.New("vesting: stream is already cancelled")
	ErrStreamAlreadyCompleted     = errors.New("vesting: stream is already completed")
	ErrCannotPauseCompletedStream = errors.New("vesting: cannot pause a completed stream")
	ErrCannotResumeCancelled      = errors.New("vesting: cannot resume a cancelled stream")

	// Arithmetic errors
	ErrArithmeticOverflow = types.ErrOverflow
)

// ErrorKind groups errors by who is at fault.
type ErrorKind string

const (
	KindUnknown       ErrorKind = ""
	KindUserInput     ErrorKind = "user_input"
	KindAuthorization ErrorKind = "authorization"
	KindState         ErrorKind = "state"
	KindArithmetic    ErrorKind = "arithmetic"
)

// KindOf classifies err. Errors outside the stream taxonomy, such as storage
// or custody failures, are KindUnknown.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case IsArithmeticError(err):
		return KindArithmetic
	case IsAuthorizationError(err):
		return KindAuthorization
	case IsStateError(err):
		return KindState
	case IsUserInputError(err):
		return KindUserInput
	default:
		return KindUnknown
	}
}

// IsUserInputError returns true if the caller supplied invalid input.
func IsUserInputError(err error) bool {
	return errors.Is(err, types.ErrInvalidInput) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidRecipient) ||
		errors.Is(err, ErrInvalidDuration) ||
		errors.Is(err, ErrInvalidWithdrawalFrequency) ||
		errors.Is(err, ErrFeeRecipientRequired) ||
		errors.Is(err, ErrInsufficientWithdrawableAmount) ||
		errors.Is(err, fee.ErrFeeConfigInvalid) ||
		errors.Is(err, fee.ErrPlatformFeeTooHigh) ||
		errors.Is(err, policy.ErrUnknownPolicy) ||
		errors.Is(err, policy.ErrInvalidTimeRange) ||
		errors.Is(err, policy.ErrInvalidCliffTime) ||
		errors.Is(err, policy.ErrInvalidCliffAmount) ||
		errors.Is(err, policy.ErrInvalidRateInterval) ||
		errors.Is(err, policy.ErrInvalidRateAmount) ||
		errors.Is(err, policy.ErrInvalidUnlock)
}

// IsAuthorizationError returns true if the authority may not perform the operation.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrUnauthorizedAccess) ||
		errors.Is(err, ErrTopUpNotAllowed)
}

// IsStateError returns true if the operation is illegal in the current status.
func IsStateError(err error) bool {
	return errors.Is(err, ErrInvalidStatusTransition) ||
		errors.Is(err, ErrNoFundsAvailable) ||
		errors.Is(err, ErrStreamNotActive) ||
		errors.Is(err, ErrStreamAlreadyPaused) ||
		errors.Is(err, ErrStreamNotPaused) ||
		errors.Is(err, ErrStreamAlreadyCancelled) ||
		errors.Is(err, ErrStreamAlreadyCompleted) ||
		errors.Is(err, ErrCannotPauseCompletedStream) ||
		errors.Is(err, ErrCannotResumeCancelled)
}

// IsArithmeticError returns true for overflow, underflow and division by
// zero. These indicate an internal-consistency fault and are never retried.
func IsArithmeticError(err error) bool {
	return errors.Is(err, types.ErrOverflow) ||
		errors.Is(err, types.ErrUnderflow) ||
		errors.Is(err, types.ErrDivisionByZero)
}
