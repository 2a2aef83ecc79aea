package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/vesting/event"
	"github.com/xraph/vesting/policy"
	"github.com/xraph/vesting/stream"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onStreamCreated     []OnStreamCreated
	onStreamWithdrawn   []OnStreamWithdrawn
	onStreamCancelled   []OnStreamCancelled
	onStreamPaused      []OnStreamPaused
	onStreamResumed     []OnStreamResumed
	onStreamTransferred []OnStreamTransferred
	onStreamToppedUp    []OnStreamToppedUp
	onStreamCompleted   []OnStreamCompleted
	onPolicyFallback    []OnPolicyFallback
	onEventRecorded     []OnEventRecorded
	onAutoWithdrawSweep []OnAutoWithdrawSweep
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnStreamCreated); ok {
		r.onStreamCreated = append(r.onStreamCreated, v)
	}
	if v, ok := p.(OnStreamWithdrawn); ok {
		r.onStreamWithdrawn = append(r.onStreamWithdrawn, v)
	}
	if v, ok := p.(OnStreamCancelled); ok {
		r.onStreamCancelled = append(r.onStreamCancelled, v)
	}
	if v, ok := p.(OnStreamPaused); ok {
		r.onStreamPaused = append(r.onStreamPaused, v)
	}
	if v, ok := p.(OnStreamResumed); ok {
		r.onStreamResumed = append(r.onStreamResumed, v)
	}
	if v, ok := p.(OnStreamTransferred); ok {
		r.onStreamTransferred = append(r.onStreamTransferred, v)
	}
	if v, ok := p.(OnStreamToppedUp); ok {
		r.onStreamToppedUp = append(r.onStreamToppedUp, v)
	}
	if v, ok := p.(OnStreamCompleted); ok {
		r.onStreamCompleted = append(r.onStreamCompleted, v)
	}
	if v, ok := p.(OnPolicyFallback); ok {
		r.onPolicyFallback = append(r.onPolicyFallback, v)
	}
	if v, ok := p.(OnEventRecorded); ok {
		r.onEventRecorded = append(r.onEventRecorded, v)
	}
	if v, ok := p.(OnAutoWithdrawSweep); ok {
		r.onAutoWithdrawSweep = append(r.onAutoWithdrawSweep, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnStreamCreated)(nil)).Elem(), "OnStreamCreated")
	checkInterface(reflect.TypeOf((*OnStreamWithdrawn)(nil)).Elem(), "OnStreamWithdrawn")
	checkInterface(reflect.TypeOf((*OnStreamCancelled)(nil)).Elem(), "OnStreamCancelled")
	checkInterface(reflect.TypeOf((*OnStreamCompleted)(nil)).Elem(), "OnStreamCompleted")
	checkInterface(reflect.TypeOf((*OnPolicyFallback)(nil)).Elem(), "OnPolicyFallback")
	checkInterface(reflect.TypeOf((*OnEventRecorded)(nil)).Elem(), "OnEventRecorded")
	checkInterface(reflect.TypeOf((*OnAutoWithdrawSweep)(nil)).Elem(), "OnAutoWithdrawSweep")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit runs call for every plugin in hooks and logs failures.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, hooks []T, call func(T) error) {
	for _, p := range hooks {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return call(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// snapshot copies a cached hook list under the read lock.
func snapshot[T any](r *Registry, list *[]T) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *list
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(ctx, r, "OnInit", snapshot(r, &r.onInit), func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", snapshot(r, &r.onShutdown), func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitStreamCreated emits a stream created event.
func (r *Registry) EmitStreamCreated(ctx context.Context, s *stream.Stream) {
	emit(ctx, r, "OnStreamCreated", snapshot(r, &r.onStreamCreated), func(p OnStreamCreated) error {
		return p.OnStreamCreated(ctx, s)
	})
}

// EmitStreamWithdrawn emits a withdrawal event.
func (r *Registry) EmitStreamWithdrawn(ctx context.Context, s *stream.Stream, w stream.Withdrawal) {
	emit(ctx, r, "OnStreamWithdrawn", snapshot(r, &r.onStreamWithdrawn), func(p OnStreamWithdrawn) error {
		return p.OnStreamWithdrawn(ctx, s, w)
	})
}

// EmitStreamCancelled emits a cancellation event.
func (r *Registry) EmitStreamCancelled(ctx context.Context, s *stream.Stream, st stream.Settlement) {
	emit(ctx, r, "OnStreamCancelled", snapshot(r, &r.onStreamCancelled), func(p OnStreamCancelled) error {
		return p.OnStreamCancelled(ctx, s, st)
	})
}

// EmitStreamPaused emits a pause event.
func (r *Registry) EmitStreamPaused(ctx context.Context, s *stream.Stream) {
	emit(ctx, r, "OnStreamPaused", snapshot(r, &r.onStreamPaused), func(p OnStreamPaused) error {
		return p.OnStreamPaused(ctx, s)
	})
}

// EmitStreamResumed emits a resume event.
func (r *Registry) EmitStreamResumed(ctx context.Context, s *stream.Stream) {
	emit(ctx, r, "OnStreamResumed", snapshot(r, &r.onStreamResumed), func(p OnStreamResumed) error {
		return p.OnStreamResumed(ctx, s)
	})
}

// EmitStreamTransferred emits a recipient transfer event.
func (r *Registry) EmitStreamTransferred(ctx context.Context, s *stream.Stream, oldRecipient stream.Identity) {
	emit(ctx, r, "OnStreamTransferred", snapshot(r, &r.onStreamTransferred), func(p OnStreamTransferred) error {
		return p.OnStreamTransferred(ctx, s, oldRecipient)
	})
}

// EmitStreamToppedUp emits a top-up event.
func (r *Registry) EmitStreamToppedUp(ctx context.Context, s *stream.Stream, amount uint64) {
	emit(ctx, r, "OnStreamToppedUp", snapshot(r, &r.onStreamToppedUp), func(p OnStreamToppedUp) error {
		return p.OnStreamToppedUp(ctx, s, amount)
	})
}

// EmitStreamCompleted emits a completion event.
func (r *Registry) EmitStreamCompleted(ctx context.Context, s *stream.Stream) {
	emit(ctx, r, "OnStreamCompleted", snapshot(r, &r.onStreamCompleted), func(p OnStreamCompleted) error {
		return p.OnStreamCompleted(ctx, s)
	})
}

// EmitPolicyFallback emits a policy fallback event.
func (r *Registry) EmitPolicyFallback(ctx context.Context, s *stream.Stream, declared, used policy.Kind) {
	emit(ctx, r, "OnPolicyFallback", snapshot(r, &r.onPolicyFallback), func(p OnPolicyFallback) error {
		return p.OnPolicyFallback(ctx, s, declared, used)
	})
}

// EmitEventRecorded emits a persisted lifecycle event.
func (r *Registry) EmitEventRecorded(ctx context.Context, e *event.Event) {
	emit(ctx, r, "OnEventRecorded", snapshot(r, &r.onEventRecorded), func(p OnEventRecorded) error {
		return p.OnEventRecorded(ctx, e)
	})
}

// EmitAutoWithdrawSweep emits an automatic-withdrawal sweep event.
func (r *Registry) EmitAutoWithdrawSweep(ctx context.Context, count int, elapsed time.Duration) {
	emit(ctx, r, "OnAutoWithdrawSweep", snapshot(r, &r.onAutoWithdrawSweep), func(p OnAutoWithdrawSweep) error {
		return p.OnAutoWithdrawSweep(ctx, count, elapsed)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the stream pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
