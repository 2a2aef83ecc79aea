package stream

import "github.com/xraph/vesting/policy"

// ListOpts filters and pages stream listings. Zero values match everything.
type ListOpts struct {
	Sender    Identity
	Recipient Identity
	Asset     string
	Status    Status
	Policy    policy.Kind
	Limit     int
	Offset    int
}

// Matches reports whether s passes the filters in o.
func (o ListOpts) Matches(s *Stream) bool {
	return (o.Sender == "" || s.Sender == o.Sender) &&
		(o.Recipient == "" || s.Recipient == o.Recipient) &&
		(o.Asset == "" || s.Asset == o.Asset) &&
		(o.Status == "" || s.Status == o.Status) &&
		(o.Policy == "" || s.Policy == o.Policy)
}

// DueForWithdrawal reports whether an automatic withdrawal should run for s
// at now.
func (s *Stream) DueForWithdrawal(now int64) bool {
	if !s.AutomaticWithdrawal || s.WithdrawalFrequency == 0 {
		return false
	}
	if s.Status != StatusStreaming && (s.Status != StatusScheduled || now < s.StartTime) {
		return false
	}
	return now-s.LastMutationTime >= int64(s.WithdrawalFrequency) //nolint:gosec // frequency is seconds
}
