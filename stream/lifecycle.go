package stream

import "fmt"

// transitions is the complete set of legal status changes.
var transitions = map[Status][]Status{
	StatusScheduled: {StatusStreaming, StatusCancelled},
	StatusStreaming: {StatusPaused, StatusCancelled, StatusCompleted},
	StatusPaused:    {StatusStreaming, StatusCancelled},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the stream to status to, or fails with
// ErrInvalidStatusTransition.
func (s *Stream) Transition(to Status) error {
	if !CanTransition(s.Status, to) {
		return transitionError(s.Status, to)
	}
	s.Status = to
	return nil
}

func transitionError(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, to)
}

// Activate starts a Scheduled stream once now has reached its start time.
// It reports whether the status changed.
func (s *Stream) Activate(now int64) bool {
	if s.Status != StatusScheduled || now < s.StartTime {
		return false
	}
	s.Status = StatusStreaming
	return true
}

// Pause suspends withdrawals. Only the sender may pause.
func (s *Stream) Pause(now int64, authority Identity) error {
	if authority != s.Sender {
		return fmt.Errorf("%w: only the sender may pause", ErrUnauthorizedAccess)
	}

	switch s.Status {
	case StatusPaused:
		return ErrStreamAlreadyPaused
	case StatusCompleted:
		return ErrCannotPauseCompletedStream
	case StatusCancelled:
		return ErrStreamAlreadyCancelled
	}

	if err := s.Transition(StatusPaused); err != nil {
		return err
	}
	s.LastMutationTime = now
	return nil
}

// Resume re-enables withdrawals on a paused stream. Only the sender may resume.
// The schedule is not shifted by the time spent paused.
func (s *Stream) Resume(now int64, authority Identity) error {
	if authority != s.Sender {
		return fmt.Errorf("%w: only the sender may resume", ErrUnauthorizedAccess)
	}

	switch s.Status {
	case StatusCancelled:
		return ErrCannotResumeCancelled
	case StatusPaused:
	default:
		return ErrStreamNotPaused
	}

	if err := s.Transition(StatusStreaming); err != nil {
		return err
	}
	s.LastMutationTime = now
	return nil
}

// AuthorizeCancel checks whether authority may cancel the stream now.
func (s *Stream) AuthorizeCancel(authority Identity) error {
	switch s.Status {
	case StatusCancelled:
		return ErrStreamAlreadyCancelled
	case StatusCompleted:
		return ErrStreamAlreadyCompleted
	}

	allowed := (authority == s.Sender && s.Permissions.CancelableBySender) ||
		(authority == s.Recipient && s.Permissions.CancelableByRecipient)
	if !allowed {
		return fmt.Errorf("%w: %s may not cancel this stream", ErrUnauthorizedAccess, authority)
	}
	return nil
}

// CanCancel is AuthorizeCancel as a predicate.
func (s *Stream) CanCancel(authority Identity) bool {
	return s.AuthorizeCancel(authority) == nil
}
