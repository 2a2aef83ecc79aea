package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/vesting/fee"
	"github.com/xraph/vesting/policy"
	"github.com/xraph/vesting/stream"
)

func TestMetricsExtensionWithPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	factory := NewPrometheusFactory(reg)
	m := NewMetricsExtension(factory)
	ctx := context.Background()
	s := &stream.Stream{DepositedAmount: 1000}

	require.NoError(t, m.OnStreamCreated(ctx, s))
	require.NoError(t, m.OnStreamWithdrawn(ctx, s, stream.Withdrawal{
		Amount: 100,
		Fees:   fee.Breakdown{Gross: 100, PlatformFee: 1, PartnerFee: 2, Net: 97},
	}))
	require.NoError(t, m.OnStreamCancelled(ctx, s, stream.Settlement{
		SenderDue: 500,
		Fees:      fee.Breakdown{PlatformFee: 4},
	}))
	require.NoError(t, m.OnPolicyFallback(ctx, s, policy.Custom, policy.Linear))
	require.NoError(t, m.OnAutoWithdrawSweep(ctx, 3, 20*time.Millisecond))

	assert.InDelta(t, 1, testutil.ToFloat64(factory.counters["vesting.stream.created"]), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(factory.counters["vesting.stream.withdrawn"]), 0)
	assert.InDelta(t, 7, testutil.ToFloat64(factory.counters["vesting.fees.collected"]), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(factory.counters["vesting.policy.fallback"]), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(factory.counters["vesting.auto_withdraw.count"]), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "vesting_stream_created_total")
	assert.Contains(t, names, "vesting_stream_withdrawn_amount")
}

func TestPrometheusFactoryReusesMetrics(t *testing.T) {
	f := NewPrometheusFactory(prometheus.NewRegistry())
	assert.Same(t, f.Counter("a.b"), f.Counter("a.b"))
	assert.Same(t, f.Histogram("a.c"), f.Histogram("a.c"))
}

func TestPromName(t *testing.T) {
	assert.Equal(t, "vesting_auto_withdraw_latency_ms", promName("vesting.auto_withdraw.latency_ms"))
	assert.Equal(t, "observability_metrics", promName("observability-metrics"))
}
