package vesting

import (
	"github.com/xraph/vesting/event"
	"github.com/xraph/vesting/fee"
	"github.com/xraph/vesting/policy"
	"github.com/xraph/vesting/stream"
	"github.com/xraph/vesting/types"
)

// Re-export common types for convenience so users don't have to import the
// domain packages for everyday calls.

// Stream is re-exported from the stream package.
type Stream = stream.Stream

// CreateParams is re-exported from the stream package.
type CreateParams = stream.CreateParams

// Identity is re-exported from the stream package.
type Identity = stream.Identity

// Status is re-exported from the stream package.
type Status = stream.Status

// Permissions is re-exported from the stream package.
type Permissions = stream.Permissions

// Withdrawal is re-exported from the stream package.
type Withdrawal = stream.Withdrawal

// Settlement is re-exported from the stream package.
type Settlement = stream.Settlement

// Event is re-exported from the event package.
type Event = event.Event

// FeeConfig is re-exported from the fee package.
type FeeConfig = fee.Config

// PolicyKind is re-exported from the policy package.
type PolicyKind = policy.Kind

// Entity is re-exported from types package.
type Entity = types.Entity

// ValidationError is re-exported from types package.
type ValidationError = types.ValidationError

// MultiError is re-exported from types package.
type MultiError = types.MultiError

// Re-export policy kinds
const (
	Linear = policy.Linear
	Cliff  = policy.Cliff
	Step   = policy.Step
	Custom = policy.Custom
)

// Re-export constructors
var (
	NewEntity          = types.NewEntity
	DefaultPermissions = stream.DefaultPermissions
	FormatAmount       = types.FormatAmount
)
