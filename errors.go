package vesting

import (
	"errors"

	"github.com/xraph/vesting/custody"
	"github.com/xraph/vesting/fee"
	"github.com/xraph/vesting/lock"
	"github.com/xraph/vesting/policy"
	"github.com/xraph/vesting/stream"
	"github.com/xraph/vesting/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("vesting: not found")
	ErrAlreadyExists = errors.New("vesting: already exists")
	ErrInvalidInput  = types.ErrInvalidInput

	// Stream errors
	ErrStreamNotFound = errors.New("vesting: stream not found")

	// Store errors
	ErrStoreNotReady     = errors.New("vesting: store not ready")
	ErrStoreClosed       = errors.New("vesting: store is closed")
	ErrTransactionFailed = errors.New("vesting: transaction failed")

	// Infrastructure errors
	ErrNoCustodian     = errors.New("vesting: no custodian configured")
	ErrCustodyTransfer = custody.ErrTransferFailed
	ErrLockContention  = lock.ErrNotAcquired
)

// Re-exported core errors.
var (
	// Input
	ErrInvalidAmount                  = stream.ErrInvalidAmount
	ErrInvalidRecipient               = stream.ErrInvalidRecipient
	ErrInvalidDuration                = stream.ErrInvalidDuration
	ErrInvalidWithdrawalFrequency     = stream.ErrInvalidWithdrawalFrequency
	ErrFeeRecipientRequired           = stream.ErrFeeRecipientRequired
	ErrInsufficientWithdrawableAmount = stream.ErrInsufficientWithdrawableAmount
	ErrUnknownPolicy                  = policy.ErrUnknownPolicy
	ErrInvalidTimeRange               = policy.ErrInvalidTimeRange
	ErrInvalidCliffTime               = policy.ErrInvalidCliffTime
	ErrInvalidCliffAmount             = policy.ErrInvalidCliffAmount
	ErrInvalidRateInterval            = policy.ErrInvalidRateInterval
	ErrInvalidRateAmount              = policy.ErrInvalidRateAmount
	ErrInvalidUnlock                  = policy.ErrInvalidUnlock
	ErrFeeConfigInvalid               = fee.ErrFeeConfigInvalid
	ErrPlatformFeeTooHigh             = fee.ErrPlatformFeeTooHigh

	// Authorization
	ErrUnauthorizedAccess = stream.ErrUnauthorizedAccess
	ErrTopUpNotAllowed    = stream.ErrTopUpNotAllowed

	// State
	ErrInvalidStatusTransition    = stream.ErrInvalidStatusTransition
	ErrNoFundsAvailable           = stream.ErrNoFundsAvailable
	ErrStreamNotActive            = stream.ErrStreamNotActive
	ErrStreamAlreadyPaused        = stream.ErrStreamAlreadyPaused
	ErrStreamNotPaused            = stream.ErrStreamNotPaused
	ErrStreamAlreadyCancelled     = stream.ErrStreamAlreadyCancelled
	ErrStreamAlreadyCompleted     = stream.ErrStreamAlreadyCompleted
	ErrCannotPauseCompletedStream = stream.ErrCannotPauseCompletedStream
	ErrCannotResumeCancelled      = stream.ErrCannotResumeCancelled

	// Arithmetic
	ErrArithmeticOverflow = stream.ErrArithmeticOverflow
)

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrStreamNotFound)
}

// IsRetryable returns true if the error is temporary and the operation can be
// retried. Errors from stream rules are never retryable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, ErrLockContention) ||
		errors.Is(err, ErrCustodyTransfer)
}

// Classifiers re-exported from the stream package.
var (
	IsUserInputError     = stream.IsUserInputError
	IsAuthorizationError = stream.IsAuthorizationError
	IsStateError         = stream.IsStateError
	IsArithmeticError    = stream.IsArithmeticError
)
