// Package observability provides a metrics extension for Vesting that
// records stream lifecycle counts and payout volumes via a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/vesting/plugin"
	"github.com/xraph/vesting/policy"
	"github.com/xraph/vesting/stream"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnStreamCreated     = (*MetricsExtension)(nil)
	_ plugin.OnStreamWithdrawn   = (*MetricsExtension)(nil)
	_ plugin.OnStreamCancelled   = (*MetricsExtension)(nil)
	_ plugin.OnStreamPaused      = (*MetricsExtension)(nil)
	_ plugin.OnStreamResumed     = (*MetricsExtension)(nil)
	_ plugin.OnStreamTransferred = (*MetricsExtension)(nil)
	_ plugin.OnStreamToppedUp    = (*MetricsExtension)(nil)
	_ plugin.OnStreamCompleted   = (*MetricsExtension)(nil)
	_ plugin.OnPolicyFallback    = (*MetricsExtension)(nil)
	_ plugin.OnAutoWithdrawSweep = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Vesting plugin to automatically track stream metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Stream lifecycle metrics
	StreamCreated     Counter
	StreamWithdrawn   Counter
	StreamCancelled   Counter
	StreamPaused      Counter
	StreamResumed     Counter
	StreamTransferred Counter
	StreamToppedUp    Counter
	StreamCompleted   Counter

	// Value metrics
	DepositedAmount Histogram
	WithdrawnAmount Histogram
	FeesCollected   Counter
	SenderRefunds   Histogram

	// Policy metrics
	PolicyFallback Counter

	// Worker metrics
	AutoWithdrawals     Counter
	AutoWithdrawLatency Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions, or NewPrometheusFactory standalone.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		StreamCreated:     factory.Counter("vesting.stream.created"),
		StreamWithdrawn:   factory.Counter("vesting.stream.withdrawn"),
		StreamCancelled:   factory.Counter("vesting.stream.cancelled"),
		StreamPaused:      factory.Counter("vesting.stream.paused"),
		StreamResumed:     factory.Counter("vesting.stream.resumed"),
		StreamTransferred: factory.Counter("vesting.stream.transferred"),
		StreamToppedUp:    factory.Counter("vesting.stream.topped_up"),
		StreamCompleted:   factory.Counter("vesting.stream.completed"),

		DepositedAmount: factory.Histogram("vesting.stream.deposited_amount"),
		WithdrawnAmount: factory.Histogram("vesting.stream.withdrawn_amount"),
		FeesCollected:   factory.Counter("vesting.fees.collected"),
		SenderRefunds:   factory.Histogram("vesting.stream.sender_refund"),

		PolicyFallback: factory.Counter("vesting.policy.fallback"),

		AutoWithdrawals:     factory.Counter("vesting.auto_withdraw.count"),
		AutoWithdrawLatency: factory.Histogram("vesting.auto_withdraw.latency_ms"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Stream lifecycle hooks
// ──────────────────────────────────────────────────

// OnStreamCreated implements plugin.OnStreamCreated.
func (m *MetricsExtension) OnStreamCreated(_ context.Context, s *stream.Stream) error {
	m.StreamCreated.Inc()
	m.DepositedAmount.Observe(float64(s.DepositedAmount))
	return nil
}

// OnStreamWithdrawn implements plugin.OnStreamWithdrawn.
func (m *MetricsExtension) OnStreamWithdrawn(_ context.Context, _ *stream.Stream, w stream.Withdrawal) error {
	m.StreamWithdrawn.Inc()
	m.WithdrawnAmount.Observe(float64(w.Amount))
	m.FeesCollected.Add(float64(w.Fees.Total()))
	return nil
}

// OnStreamCancelled implements plugin.OnStreamCancelled.
func (m *MetricsExtension) OnStreamCancelled(_ context.Context, _ *stream.Stream, st stream.Settlement) error {
	m.StreamCancelled.Inc()
	m.SenderRefunds.Observe(float64(st.SenderDue))
	m.FeesCollected.Add(float64(st.Fees.Total()))
	return nil
}

// OnStreamPaused implements plugin.OnStreamPaused.
func (m *MetricsExtension) OnStreamPaused(_ context.Context, _ *stream.Stream) error {
	m.StreamPaused.Inc()
	return nil
}

// OnStreamResumed implements plugin.OnStreamResumed.
func (m *MetricsExtension) OnStreamResumed(_ context.Context, _ *stream.Stream) error {
	m.StreamResumed.Inc()
	return nil
}

// OnStreamTransferred implements plugin.OnStreamTransferred.
func (m *MetricsExtension) OnStreamTransferred(_ context.Context, _ *stream.Stream, _ stream.Identity) error {
	m.StreamTransferred.Inc()
	return nil
}

// OnStreamToppedUp implements plugin.OnStreamToppedUp.
func (m *MetricsExtension) OnStreamToppedUp(_ context.Context, _ *stream.Stream, amount uint64) error {
	m.StreamToppedUp.Inc()
	m.DepositedAmount.Observe(float64(amount))
	return nil
}

// OnStreamCompleted implements plugin.OnStreamCompleted.
func (m *MetricsExtension) OnStreamCompleted(_ context.Context, _ *stream.Stream) error {
	m.StreamCompleted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Policy and worker hooks
// ──────────────────────────────────────────────────

// OnPolicyFallback implements plugin.OnPolicyFallback.
func (m *MetricsExtension) OnPolicyFallback(_ context.Context, _ *stream.Stream, _, _ policy.Kind) error {
	m.PolicyFallback.Inc()
	return nil
}

// OnAutoWithdrawSweep implements plugin.OnAutoWithdrawSweep.
func (m *MetricsExtension) OnAutoWithdrawSweep(_ context.Context, count int, elapsed time.Duration) error {
	m.AutoWithdrawals.Add(float64(count))
	m.AutoWithdrawLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}
