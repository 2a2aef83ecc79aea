package vesting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/vesting/custody"
	"github.com/xraph/vesting/event"
	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/lock"
	"github.com/xraph/vesting/policy"
	"github.com/xraph/vesting/stream"
	"github.com/xraph/vesting/types"
)

// mutation collects the side effects of one operation on a stream clone.
type mutation struct {
	transfers custody.Batch
	events    []*event.Event
	hooks     []func(ctx context.Context, s *stream.Stream)
	// quiet persists the clone without events or hooks.
	quiet bool
}

func (m *mutation) record(e *event.Event) { m.events = append(m.events, e) }

func (m *mutation) after(fn func(ctx context.Context, s *stream.Stream)) {
	m.hooks = append(m.hooks, fn)
}

type mutateFunc func(ctx context.Context, s *stream.Stream, now int64, wall time.Time, m *mutation) error

// mutate runs fn against a clone of the stored stream while holding the
// stream lock, moves value, then persists the clone with its events. The
// stored record is untouched unless every step succeeds. Hooks run after
// the lock is released.
func (e *Engine) mutate(ctx context.Context, op string, streamID id.StreamID, fn mutateFunc) (*stream.Stream, error) {
	var (
		result *stream.Stream
		m      mutation
	)

	err := e.locker.WithLock(ctx, lock.StreamKey(streamID.String()), func(ctx context.Context) error {
		current, err := e.store.GetStream(ctx, streamID)
		if err != nil {
			return err
		}

		now, wall := e.now()
		s := current.Clone()
		s.Activate(now)

		if err := fn(ctx, s, now, wall, &m); err != nil {
			return err
		}

		if m.transfers.Len() > 0 {
			if err := e.requireCustodian(op); err != nil {
				return err
			}
			if err := m.transfers.Execute(ctx, e.custodian); err != nil {
				return fmt.Errorf("vesting: %s: %w", op, err)
			}
		}

		s.Touch(wall)
		if err := e.store.UpdateStream(ctx, s, m.events...); err != nil {
			if rerr := m.transfers.Revert(ctx, e.custodian); rerr != nil {
				e.logger.Error("vesting: custody revert failed",
					"op", op,
					"stream_id", streamID.String(),
					"error", rerr,
				)
				err = errors.Join(err, rerr)
			}
			return fmt.Errorf("vesting: %s: persist stream: %w", op, err)
		}

		result = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !m.quiet {
		for _, hook := range m.hooks {
			hook(ctx, result.Clone())
		}
		e.emitEvents(ctx, m.events)
	}
	return result, nil
}

func (e *Engine) emitEvents(ctx context.Context, events []*event.Event) {
	for _, ev := range events {
		e.plugins.EmitEventRecorded(ctx, ev)
	}
}

// checkPolicy reports a Custom stream that is evaluated with the Linear
// fallback.
func (e *Engine) checkPolicy(ctx context.Context, s *stream.Stream) {
	if !s.UsesPolicyFallback() {
		return
	}
	e.logger.Warn("vesting: custom policy has no unlock table, using linear",
		"stream_id", s.ID.String(),
	)
	e.plugins.EmitPolicyFallback(ctx, s, policy.Custom, policy.Linear)
}

// ──────────────────────────────────────────────────
// Stream Management
// ──────────────────────────────────────────────────

// CreateStream validates p, escrows the deposit from the sender into the
// stream's custody account and persists the new stream.
func (e *Engine) CreateStream(ctx context.Context, p stream.CreateParams) (s *stream.Stream, err error) {
	ctx, span := e.startSpan(ctx, "create_stream", id.Nil)
	defer func() { endSpan(span, err) }()

	if p.Fees.PlatformBps == 0 && p.Fees.PlatformRecipient == "" {
		p.Fees.PlatformBps = e.platformFee.PlatformBps
		p.Fees.PlatformRecipient = e.platformFee.PlatformRecipient
	}
	if e.capPlatformFee {
		if err := p.Fees.ValidateCapped(); err != nil {
			return nil, err
		}
	}

	if err := e.requireCustodian("create stream"); err != nil {
		return nil, err
	}

	now, wall := e.now()
	s, err = stream.New(p, now)
	if err != nil {
		return nil, err
	}
	s.Entity = types.NewEntity(wall)
	span.SetAttributes(streamAttrs(s)...)

	var deposit custody.Batch
	deposit.Add(custody.Transfer{
		From:   string(s.Sender),
		To:     s.CustodyAccount,
		Asset:  s.Asset,
		Amount: s.DepositedAmount,
		Memo:   string(event.TypeCreated),
	})
	if err := deposit.Execute(ctx, e.custodian); err != nil {
		return nil, fmt.Errorf("vesting: create stream: %w", err)
	}

	created := event.Created(s, now, wall)
	if err := e.store.CreateStream(ctx, s, created); err != nil {
		if rerr := deposit.Revert(ctx, e.custodian); rerr != nil {
			e.logger.Error("vesting: custody revert failed",
				"op", "create_stream",
				"stream_id", s.ID.String(),
				"error", rerr,
			)
			err = errors.Join(err, rerr)
		}
		return nil, fmt.Errorf("vesting: create stream: %w", err)
	}

	e.logger.Debug("stream created",
		"stream_id", s.ID.String(),
		"sender", string(s.Sender),
		"recipient", string(s.Recipient),
		"deposited", s.DepositedAmount,
		"policy", s.Policy.String(),
		"status", string(s.Status),
	)

	e.checkPolicy(ctx, s)
	e.plugins.EmitStreamCreated(ctx, s)
	e.emitEvents(ctx, []*event.Event{created})
	return s.Clone(), nil
}

// GetStream retrieves a stream by ID. The stored status is returned as is;
// a Scheduled stream past its start time activates on its next mutation.
func (e *Engine) GetStream(ctx context.Context, streamID id.StreamID) (*stream.Stream, error) {
	return e.store.GetStream(ctx, streamID)
}

// ListStreams lists streams matching opts.
func (e *Engine) ListStreams(ctx context.Context, opts stream.ListOpts) ([]*stream.Stream, error) {
	return e.store.ListStreams(ctx, opts)
}

// Events lists the lifecycle events of a stream, oldest first.
func (e *Engine) Events(ctx context.Context, streamID id.StreamID, opts event.ListOpts) ([]*event.Event, error) {
	return e.store.ListEvents(ctx, streamID, opts)
}

// Withdrawable returns the amount the recipient could withdraw now.
func (e *Engine) Withdrawable(ctx context.Context, streamID id.StreamID) (uint64, error) {
	s, err := e.store.GetStream(ctx, streamID)
	if err != nil {
		return 0, err
	}
	now, _ := e.now()
	s.Activate(now)
	e.checkPolicy(ctx, s)
	return s.WithdrawableAmount(now)
}

// Progress is a read-only snapshot of a stream at a point in time.
type Progress struct {
	StreamID     id.StreamID     `json:"stream_id"`
	Status       stream.Status   `json:"status"`
	Bps          uint16          `json:"bps"`
	Fraction     decimal.Decimal `json:"fraction"`
	Streamed     uint64          `json:"streamed"`
	Withdrawn    uint64          `json:"withdrawn"`
	Withdrawable uint64          `json:"withdrawable"`
	Remaining    uint64          `json:"remaining"`
	At           int64           `json:"at"`
}

// Progress reports how far a stream has vested.
func (e *Engine) Progress(ctx context.Context, streamID id.StreamID) (*Progress, error) {
	s, err := e.store.GetStream(ctx, streamID)
	if err != nil {
		return nil, err
	}
	now, _ := e.now()
	s.Activate(now)

	streamed, err := s.StreamedAmount(now)
	if err != nil {
		return nil, err
	}
	withdrawable, err := s.WithdrawableAmount(now)
	if err != nil {
		return nil, err
	}
	return &Progress{
		StreamID:     s.ID,
		Status:       s.Status,
		Bps:          s.Progress(now),
		Fraction:     s.ProgressFraction(now),
		Streamed:     streamed,
		Withdrawn:    s.WithdrawnAmount,
		Withdrawable: withdrawable,
		Remaining:    s.RemainingBalance(),
		At:           now,
	}, nil
}

// ──────────────────────────────────────────────────
// Stream Operations
// ──────────────────────────────────────────────────

// Withdraw releases amount (everything withdrawable when nil) to the
// recipient. Only the recipient may withdraw. Fees are paid out of the
// released amount.
func (e *Engine) Withdraw(ctx context.Context, streamID id.StreamID, authority stream.Identity, amount *uint64) (stream.Withdrawal, error) {
	return e.withdraw(ctx, streamID, &authority, amount)
}

// withdraw acts for the current recipient when authority is nil.
func (e *Engine) withdraw(ctx context.Context, streamID id.StreamID, authority *stream.Identity, amount *uint64) (w stream.Withdrawal, err error) {
	ctx, span := e.startSpan(ctx, "withdraw", streamID)
	defer func() { endSpan(span, err) }()

	auto := authority == nil
	var noFunds bool

	_, err = e.mutate(ctx, "withdraw", streamID, func(ctx context.Context, s *stream.Stream, now int64, wall time.Time, m *mutation) error {
		who := s.Recipient
		if !auto {
			who = *authority
		}
		if who != s.Recipient {
			return fmt.Errorf("%w: only the recipient may withdraw", stream.ErrUnauthorizedAccess)
		}
		e.checkPolicy(ctx, s)

		var werr error
		w, werr = s.Withdraw(now, amount)
		if auto && errors.Is(werr, stream.ErrNoFundsAvailable) {
			// Nothing vested yet: push the next automatic attempt out by a
			// full period so the stream does not stay at the head of the queue.
			noFunds = true
			s.LastMutationTime = now
			m.quiet = true
			return nil
		}
		if werr != nil {
			return werr
		}

		addPayout(&m.transfers, s, s.Recipient, w.Fees.Net, w.Fees.PlatformFee, w.Fees.PartnerFee, event.TypeWithdrawn)

		m.record(event.Withdrawn(s, who, w, now, wall))
		m.after(func(ctx context.Context, s *stream.Stream) { e.plugins.EmitStreamWithdrawn(ctx, s, w) })
		if w.Completed {
			m.record(event.New(event.TypeCompleted, s, who, now, wall))
			m.after(func(ctx context.Context, s *stream.Stream) { e.plugins.EmitStreamCompleted(ctx, s) })
		}
		return nil
	})
	if err != nil {
		return stream.Withdrawal{}, err
	}
	if noFunds {
		return stream.Withdrawal{}, stream.ErrNoFundsAvailable
	}

	e.logger.Debug("stream withdrawn",
		"stream_id", streamID.String(),
		"amount", w.Amount,
		"net", w.Fees.Net,
		"completed", w.Completed,
		"auto", auto,
	)
	return w, nil
}

// Cancel stops the stream and settles it against the custody balance: the
// recipient receives what was earned and not yet withdrawn, net of fees,
// and the sender receives the rest.
func (e *Engine) Cancel(ctx context.Context, streamID id.StreamID, authority stream.Identity) (st stream.Settlement, err error) {
	ctx, span := e.startSpan(ctx, "cancel", streamID)
	defer func() { endSpan(span, err) }()

	_, err = e.mutate(ctx, "cancel", streamID, func(ctx context.Context, s *stream.Stream, now int64, wall time.Time, m *mutation) error {
		if err := s.AuthorizeCancel(authority); err != nil {
			return err
		}
		if err := e.requireCustodian("cancel"); err != nil {
			return err
		}
		balance, err := e.custodian.Balance(ctx, s.CustodyAccount, s.Asset)
		if err != nil {
			return fmt.Errorf("vesting: cancel: read custody balance: %w", err)
		}
		e.checkPolicy(ctx, s)

		st, err = s.Cancel(now, authority, balance)
		if err != nil {
			return err
		}

		addPayout(&m.transfers, s, s.Recipient, st.Fees.Net, st.Fees.PlatformFee, st.Fees.PartnerFee, event.TypeCancelled)
		m.transfers.Add(custody.Transfer{
			From:   s.CustodyAccount,
			To:     string(s.Sender),
			Asset:  s.Asset,
			Amount: st.SenderDue,
			Memo:   string(event.TypeCancelled),
		})

		m.record(event.Cancelled(s, authority, st, now, wall))
		m.after(func(ctx context.Context, s *stream.Stream) { e.plugins.EmitStreamCancelled(ctx, s, st) })
		return nil
	})
	if err != nil {
		return stream.Settlement{}, err
	}

	e.logger.Info("stream cancelled",
		"stream_id", streamID.String(),
		"by", string(authority),
		"recipient_due", st.RecipientDue,
		"sender_due", st.SenderDue,
	)
	return st, nil
}

// Pause suspends withdrawals. Only the sender may pause.
func (e *Engine) Pause(ctx context.Context, streamID id.StreamID, authority stream.Identity) (s *stream.Stream, err error) {
	ctx, span := e.startSpan(ctx, "pause", streamID)
	defer func() { endSpan(span, err) }()

	return e.mutate(ctx, "pause", streamID, func(_ context.Context, s *stream.Stream, now int64, wall time.Time, m *mutation) error {
		if err := s.Pause(now, authority); err != nil {
			return err
		}
		m.record(event.New(event.TypePaused, s, authority, now, wall))
		m.after(func(ctx context.Context, s *stream.Stream) { e.plugins.EmitStreamPaused(ctx, s) })
		return nil
	})
}

// Resume re-enables withdrawals on a paused stream. Only the sender may
// resume.
func (e *Engine) Resume(ctx context.Context, streamID id.StreamID, authority stream.Identity) (s *stream.Stream, err error) {
	ctx, span := e.startSpan(ctx, "resume", streamID)
	defer func() { endSpan(span, err) }()

	return e.mutate(ctx, "resume", streamID, func(_ context.Context, s *stream.Stream, now int64, wall time.Time, m *mutation) error {
		if err := s.Resume(now, authority); err != nil {
			return err
		}
		m.record(event.New(event.TypeResumed, s, authority, now, wall))
		m.after(func(ctx context.Context, s *stream.Stream) { e.plugins.EmitStreamResumed(ctx, s) })
		return nil
	})
}

// TransferRecipient reassigns the stream to newRecipient. Value already
// withdrawn stays with the previous recipient.
func (e *Engine) TransferRecipient(ctx context.Context, streamID id.StreamID, authority, newRecipient stream.Identity) (s *stream.Stream, err error) {
	ctx, span := e.startSpan(ctx, "transfer_recipient", streamID)
	defer func() { endSpan(span, err) }()

	return e.mutate(ctx, "transfer_recipient", streamID, func(_ context.Context, s *stream.Stream, now int64, wall time.Time, m *mutation) error {
		old := s.Recipient
		if err := s.TransferRecipient(now, authority, newRecipient); err != nil {
			return err
		}
		m.record(event.Transferred(s, authority, old, now, wall))
		m.after(func(ctx context.Context, s *stream.Stream) { e.plugins.EmitStreamTransferred(ctx, s, old) })
		return nil
	})
}

// TopUp adds amount to the deposit, moving it from the sender into custody.
// Only the sender may top up.
func (e *Engine) TopUp(ctx context.Context, streamID id.StreamID, authority stream.Identity, amount uint64) (s *stream.Stream, err error) {
	ctx, span := e.startSpan(ctx, "top_up", streamID)
	defer func() { endSpan(span, err) }()

	return e.mutate(ctx, "top_up", streamID, func(_ context.Context, s *stream.Stream, now int64, wall time.Time, m *mutation) error {
		if authority != s.Sender {
			return fmt.Errorf("%w: only the sender may top up", stream.ErrUnauthorizedAccess)
		}
		if err := s.TopUp(now, amount); err != nil {
			return err
		}
		m.transfers.Add(custody.Transfer{
			From:   string(s.Sender),
			To:     s.CustodyAccount,
			Asset:  s.Asset,
			Amount: amount,
			Memo:   string(event.TypeToppedUp),
		})
		m.record(event.ToppedUp(s, authority, amount, now, wall))
		m.after(func(ctx context.Context, s *stream.Stream) { e.plugins.EmitStreamToppedUp(ctx, s, amount) })
		return nil
	})
}

// addPayout queues the recipient's net amount and the fee transfers out of
// the stream's custody account.
func addPayout(b *custody.Batch, s *stream.Stream, recipient stream.Identity, net, platformFee, partnerFee uint64, memo event.Type) {
	b.Add(custody.Transfer{
		From:   s.CustodyAccount,
		To:     string(recipient),
		Asset:  s.Asset,
		Amount: net,
		Memo:   string(memo),
	})
	b.Add(custody.Transfer{
		From:   s.CustodyAccount,
		To:     s.Fees.PlatformRecipient,
		Asset:  s.Asset,
		Amount: platformFee,
		Memo:   string(memo) + ":platform_fee",
	})
	b.Add(custody.Transfer{
		From:   s.CustodyAccount,
		To:     s.Fees.PartnerRecipient,
		Asset:  s.Asset,
		Amount: partnerFee,
		Memo:   string(memo) + ":partner_fee",
	})
}
