package plugin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/vesting/event"
	"github.com/xraph/vesting/policy"
	"github.com/xraph/vesting/stream"
)

type recorder struct {
	name string

	mu     sync.Mutex
	calls  []string
	events []*event.Event
	fail   bool
	block  bool
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) record(call string) error {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
	if r.block {
		time.Sleep(time.Second)
	}
	if r.fail {
		return errors.New("boom")
	}
	return nil
}

func (r *recorder) OnInit(context.Context, any) error { return r.record("init") }

func (r *recorder) OnStreamCreated(context.Context, *stream.Stream) error {
	return r.record("created")
}

func (r *recorder) OnPolicyFallback(_ context.Context, _ *stream.Stream, declared, used policy.Kind) error {
	return r.record("fallback:" + string(declared) + "->" + string(used))
}

func (r *recorder) OnEventRecorded(_ context.Context, e *event.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return r.record("event")
}

type bare struct{}

func (bare) Name() string { return "bare" }

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&recorder{name: "a"}))
	assert.Error(t, r.Register(&recorder{name: "a"}))
	assert.Equal(t, 1, r.Count())
}

func TestGetAndList(t *testing.T) {
	r := NewRegistry()
	a := &recorder{name: "a"}
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(bare{}))

	assert.Same(t, a, r.Get("a"))
	assert.Nil(t, r.Get("missing"))
	assert.Len(t, r.List(), 2)
}

func TestImplementedInterfaces(t *testing.T) {
	r := NewRegistry()
	got := r.getImplementedInterfaces(&recorder{})
	assert.Contains(t, got, "OnInit")
	assert.Contains(t, got, "OnStreamCreated")
	assert.Contains(t, got, "OnPolicyFallback")
	assert.NotContains(t, got, "OnShutdown")
	assert.Empty(t, r.getImplementedInterfaces(bare{}))
}

func TestEmitDispatchesOnlyToImplementers(t *testing.T) {
	r := NewRegistry()
	a := &recorder{name: "a"}
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(bare{}))

	ctx := context.Background()
	s := &stream.Stream{}
	r.EmitInit(ctx, nil)
	r.EmitStreamCreated(ctx, s)
	r.EmitStreamPaused(ctx, s)
	r.EmitPolicyFallback(ctx, s, policy.Custom, policy.Linear)
	r.EmitEventRecorded(ctx, &event.Event{Type: event.TypeCreated})

	assert.Equal(t, []string{"init", "created", "fallback:custom->linear", "event"}, a.calls)
	require.Len(t, a.events, 1)
	assert.Equal(t, event.TypeCreated, a.events[0].Type)
}

func TestEmitSwallowsFailures(t *testing.T) {
	r := NewRegistry()
	failing := &recorder{name: "failing", fail: true}
	ok := &recorder{name: "ok"}
	require.NoError(t, r.Register(failing))
	require.NoError(t, r.Register(ok))

	r.EmitStreamCreated(context.Background(), &stream.Stream{})
	assert.Equal(t, []string{"created"}, failing.calls)
	assert.Equal(t, []string{"created"}, ok.calls)
}

func TestEmitTimesOut(t *testing.T) {
	r := NewRegistry().WithTimeout(10 * time.Millisecond)
	slow := &recorder{name: "slow", block: true}
	require.NoError(t, r.Register(slow))

	start := time.Now()
	r.EmitStreamCreated(context.Background(), &stream.Stream{})
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
