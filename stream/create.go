package stream

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/xraph/vesting/fee"
	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/policy"
	"github.com/xraph/vesting/types"
)

// Duration bounds in seconds.
const (
	MinDuration int64 = 60
	MaxDuration int64 = 10 * 365 * 24 * 60 * 60
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CreateParams describes a new stream.
type CreateParams struct {
	Sender    Identity `validate:"required"`
	Recipient Identity `validate:"required,nefield=Sender"`
	Asset     string   `validate:"required"`

	Name     string
	Metadata Metadata

	DepositedAmount uint64 `validate:"gt=0"`
	StartTime       int64
	EndTime         int64
	CliffTime       *int64
	CliffAmount     uint64
	RateAmount      uint64
	RateInterval    uint64
	Policy          policy.Kind `validate:"required"`
	Unlocks         []policy.Unlock

	Permissions Permissions
	Fees        fee.Config

	AutomaticWithdrawal bool
	WithdrawalFrequency uint64
}

func (p CreateParams) schedule() policy.Schedule {
	return policy.Schedule{
		Kind:         p.Policy,
		Deposited:    p.DepositedAmount,
		StartTime:    p.StartTime,
		EndTime:      p.EndTime,
		CliffTime:    p.CliffTime,
		CliffAmount:  p.CliffAmount,
		RateAmount:   p.RateAmount,
		RateInterval: p.RateInterval,
		Unlocks:      p.Unlocks,
	}
}

// Validate checks every creation invariant and reports all violations.
func (p CreateParams) Validate() error {
	var errs types.MultiError

	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate stream params: %w", err)
		}
		for _, fe := range verrs {
			errs.Add(types.ValidationError{Field: fe.Field(), Message: validationMessage(fe)})
		}
	}

	errs.Add(types.CheckText("name", p.Name, types.MaxNameLen))
	errs.Add(types.CheckText("description", p.Metadata.Description, types.MaxDescriptionLen))
	errs.Add(types.CheckText("category", p.Metadata.Category, types.MaxCategoryLen))
	errs.Add(types.CheckText("external_id", p.Metadata.ExternalID, types.MaxExternalIDLen))

	if err := policy.Validate(p.schedule()); err != nil {
		errs.Add(err)
	} else if d := p.EndTime - p.StartTime; d < MinDuration || d > MaxDuration {
		errs.Add(fmt.Errorf("%w: %ds not in [%d, %d]", ErrInvalidDuration, d, MinDuration, MaxDuration))
	}

	errs.Add(p.Fees.Validate())
	if p.Fees.PlatformBps > 0 && p.Fees.PlatformRecipient == "" {
		errs.Add(fmt.Errorf("%w: platform", ErrFeeRecipientRequired))
	}
	if p.Fees.PartnerBps > 0 && p.Fees.PartnerRecipient == "" {
		errs.Add(fmt.Errorf("%w: partner", ErrFeeRecipientRequired))
	}

	if p.AutomaticWithdrawal && p.WithdrawalFrequency == 0 {
		errs.Add(ErrInvalidWithdrawalFrequency)
	}
	if p.WithdrawalFrequency > uint64(MaxDuration) {
		errs.Add(fmt.Errorf("%w: %ds exceeds %d", ErrInvalidWithdrawalFrequency, p.WithdrawalFrequency, MaxDuration))
	}

	return errs.ErrOrNil()
}

// EscrowAccount returns the custody account holding a stream's deposit.
// Every stream owns its account, so a settlement only ever sees its own
// escrow.
func EscrowAccount(streamID id.StreamID) string {
	return "escrow:" + streamID.String()
}

// New validates p and builds a stream with nothing withdrawn. The stream is
// Scheduled when now precedes the start time and Streaming otherwise.
func New(p CreateParams, now int64) (*Stream, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	status := StatusStreaming
	if now < p.StartTime {
		status = StatusScheduled
	}

	streamID := id.NewStreamID()

	s := &Stream{
		ID:                  streamID,
		Name:                p.Name,
		Sender:              p.Sender,
		Recipient:           p.Recipient,
		Asset:               p.Asset,
		CustodyAccount:      EscrowAccount(streamID),
		DepositedAmount:     p.DepositedAmount,
		StartTime:           p.StartTime,
		EndTime:             p.EndTime,
		CliffTime:           p.CliffTime,
		CliffAmount:         p.CliffAmount,
		RateAmount:          p.RateAmount,
		RateInterval:        p.RateInterval,
		Policy:              p.Policy,
		Unlocks:             p.Unlocks,
		Status:              status,
		Permissions:         p.Permissions,
		Fees:                p.Fees,
		AutomaticWithdrawal: p.AutomaticWithdrawal,
		WithdrawalFrequency: p.WithdrawalFrequency,
		LastMutationTime:    now,
		Metadata:            p.Metadata,
	}

	// Detach caller-owned pointers and slices.
	return s.Clone(), nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "nefield":
		return "must differ from " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
