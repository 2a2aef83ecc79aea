// Package audithook bridges Vesting stream lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/vesting/plugin"
	"github.com/xraph/vesting/policy"
	"github.com/xraph/vesting/stream"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnStreamCreated     = (*Extension)(nil)
	_ plugin.OnStreamWithdrawn   = (*Extension)(nil)
	_ plugin.OnStreamCancelled   = (*Extension)(nil)
	_ plugin.OnStreamPaused      = (*Extension)(nil)
	_ plugin.OnStreamResumed     = (*Extension)(nil)
	_ plugin.OnStreamTransferred = (*Extension)(nil)
	_ plugin.OnStreamToppedUp    = (*Extension)(nil)
	_ plugin.OnStreamCompleted   = (*Extension)(nil)
	_ plugin.OnPolicyFallback    = (*Extension)(nil)
	_ plugin.OnAutoWithdrawSweep = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It matches chronicle.Emitter; callers inject the concrete
// *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Vesting lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Stream lifecycle hooks
// ──────────────────────────────────────────────────

// OnStreamCreated implements plugin.OnStreamCreated.
func (e *Extension) OnStreamCreated(ctx context.Context, s *stream.Stream) error {
	return e.record(ctx, ActionStreamCreated, SeverityInfo, OutcomeSuccess,
		ResourceStream, s.ID.String(), CategoryStream, nil,
		"sender", string(s.Sender),
		"recipient", string(s.Recipient),
		"asset", s.Asset,
		"deposited", s.DepositedAmount,
		"policy", string(s.Policy),
	)
}

// OnStreamWithdrawn implements plugin.OnStreamWithdrawn.
func (e *Extension) OnStreamWithdrawn(ctx context.Context, s *stream.Stream, w stream.Withdrawal) error {
	return e.record(ctx, ActionStreamWithdrawn, SeverityInfo, OutcomeSuccess,
		ResourceStream, s.ID.String(), CategoryPayout, nil,
		"recipient", string(s.Recipient),
		"amount", w.Amount,
		"net", w.Fees.Net,
		"platform_fee", w.Fees.PlatformFee,
		"partner_fee", w.Fees.PartnerFee,
	)
}

// OnStreamCancelled implements plugin.OnStreamCancelled.
func (e *Extension) OnStreamCancelled(ctx context.Context, s *stream.Stream, st stream.Settlement) error {
	by := ""
	if s.CancelledBy != nil {
		by = string(*s.CancelledBy)
	}
	return e.record(ctx, ActionStreamCancelled, SeverityWarning, OutcomeSuccess,
		ResourceStream, s.ID.String(), CategoryPayout, nil,
		"cancelled_by", by,
		"recipient_due", st.RecipientDue,
		"sender_due", st.SenderDue,
		"custody_balance", st.CustodyBalance,
	)
}

// OnStreamPaused implements plugin.OnStreamPaused.
func (e *Extension) OnStreamPaused(ctx context.Context, s *stream.Stream) error {
	return e.record(ctx, ActionStreamPaused, SeverityInfo, OutcomeSuccess,
		ResourceStream, s.ID.String(), CategoryStream, nil,
		"sender", string(s.Sender),
	)
}

// OnStreamResumed implements plugin.OnStreamResumed.
func (e *Extension) OnStreamResumed(ctx context.Context, s *stream.Stream) error {
	return e.record(ctx, ActionStreamResumed, SeverityInfo, OutcomeSuccess,
		ResourceStream, s.ID.String(), CategoryStream, nil,
		"sender", string(s.Sender),
	)
}

// OnStreamTransferred implements plugin.OnStreamTransferred.
func (e *Extension) OnStreamTransferred(ctx context.Context, s *stream.Stream, oldRecipient stream.Identity) error {
	return e.record(ctx, ActionStreamTransferred, SeverityWarning, OutcomeSuccess,
		ResourceStream, s.ID.String(), CategoryAccess, nil,
		"old_recipient", string(oldRecipient),
		"new_recipient", string(s.Recipient),
	)
}

// OnStreamToppedUp implements plugin.OnStreamToppedUp.
func (e *Extension) OnStreamToppedUp(ctx context.Context, s *stream.Stream, amount uint64) error {
	return e.record(ctx, ActionStreamToppedUp, SeverityInfo, OutcomeSuccess,
		ResourceStream, s.ID.String(), CategoryStream, nil,
		"amount", amount,
		"deposited", s.DepositedAmount,
	)
}

// OnStreamCompleted implements plugin.OnStreamCompleted.
func (e *Extension) OnStreamCompleted(ctx context.Context, s *stream.Stream) error {
	return e.record(ctx, ActionStreamCompleted, SeverityInfo, OutcomeSuccess,
		ResourceStream, s.ID.String(), CategoryStream, nil,
		"withdrawn", s.WithdrawnAmount,
	)
}

// ──────────────────────────────────────────────────
// Policy and worker hooks
// ──────────────────────────────────────────────────

// OnPolicyFallback implements plugin.OnPolicyFallback.
func (e *Extension) OnPolicyFallback(ctx context.Context, s *stream.Stream, declared, used policy.Kind) error {
	return e.record(ctx, ActionPolicyFallback, SeverityWarning, OutcomePartial,
		ResourcePolicy, s.ID.String(), CategoryStream, nil,
		"declared", string(declared),
		"used", string(used),
	)
}

// OnAutoWithdrawSweep implements plugin.OnAutoWithdrawSweep. Empty sweeps
// are not audited.
func (e *Extension) OnAutoWithdrawSweep(ctx context.Context, count int, elapsed time.Duration) error {
	if count == 0 {
		return nil
	}
	return e.record(ctx, ActionAutoWithdrawSweep, SeverityInfo, OutcomeSuccess,
		ResourceWorker, "", CategoryOperations, nil,
		"count", count,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
