package vesting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/vesting/custody"
	"github.com/xraph/vesting/fee"
	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/lock"
	"github.com/xraph/vesting/plugin"
	"github.com/xraph/vesting/store"
	"github.com/xraph/vesting/stream"
)

// TracerName is the instrumentation scope used for engine spans.
const TracerName = "github.com/xraph/vesting"

// Engine is the main vesting engine. It serializes operations per stream,
// moves value through a custodian and persists every change with its
// lifecycle event.
type Engine struct {
	store     store.Store
	custodian custody.Custodian
	locker    lock.Locker
	plugins   *plugin.Registry
	logger    *slog.Logger
	tracer    trace.Tracer
	clock     func() time.Time

	// Fee defaults
	platformFee    fee.Config
	capPlatformFee bool

	// Background workers
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Configuration
	autoWithdrawInterval time.Duration
	autoWithdrawBatch    int
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:                s,
		locker:               lock.NewLocal(),
		plugins:              plugin.NewRegistry(),
		logger:               slog.Default(),
		tracer:               otel.Tracer(TracerName),
		clock:                time.Now,
		stopChan:             make(chan struct{}),
		autoWithdrawInterval: 30 * time.Second,
		autoWithdrawBatch:    100,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithCustodian sets where escrowed value is held. Without one, operations
// that move value fail with ErrNoCustodian and the automatic withdrawal
// worker does not run.
func WithCustodian(c custody.Custodian) Option {
	return func(e *Engine) {
		e.custodian = c
	}
}

// WithLocker sets the per-stream lock. Use a distributed locker when more
// than one process mutates the same store.
func WithLocker(l lock.Locker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithAutoWithdrawConfig configures the automatic withdrawal worker. A zero
// interval disables it.
func WithAutoWithdrawConfig(interval time.Duration, batchSize int) Option {
	return func(e *Engine) {
		e.autoWithdrawInterval = interval
		e.autoWithdrawBatch = batchSize
	}
}

// WithTracer sets the tracer for operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithPlatformFee applies a platform fee of bps, paid to recipient, to
// streams created without one.
func WithPlatformFee(bps uint16, recipient string) Option {
	return func(e *Engine) {
		e.platformFee = fee.Config{PlatformBps: bps, PlatformRecipient: recipient}
	}
}

// WithPlatformFeeCap rejects streams whose platform fee exceeds
// fee.MaxPlatformBps.
func WithPlatformFeeCap(enabled bool) Option {
	return func(e *Engine) {
		e.capPlatformFee = enabled
	}
}

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Start migrates the store, initializes plugins and begins background workers.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	switch {
	case e.autoWithdrawInterval <= 0:
	case e.custodian == nil:
		e.logger.Warn("vesting: no custodian configured, automatic withdrawals disabled")
	default:
		e.wg.Add(1)
		go e.autoWithdrawWorker(context.WithoutCancel(ctx))
	}

	e.logger.Info("vesting started",
		"auto_withdraw_interval", e.autoWithdrawInterval,
		"auto_withdraw_batch", e.autoWithdrawBatch,
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop shuts down the Engine. It waits for the worker to finish its current
// sweep and closes the store.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// Custodian returns the configured custodian, or nil.
func (e *Engine) Custodian() custody.Custodian { return e.custodian }

func (e *Engine) requireCustodian(op string) error {
	if e.custodian == nil {
		return fmt.Errorf("vesting: %s: %w", op, ErrNoCustodian)
	}
	return nil
}

func (e *Engine) now() (int64, time.Time) {
	t := e.clock().UTC()
	return t.Unix(), t
}

func (e *Engine) startSpan(ctx context.Context, op string, streamID id.StreamID) (context.Context, trace.Span) {
	ctx, span := e.tracer.Start(ctx, "vesting."+op, trace.WithSpanKind(trace.SpanKindInternal))
	if !streamID.IsNil() {
		span.SetAttributes(attribute.String("vesting.stream_id", streamID.String()))
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func streamAttrs(s *stream.Stream) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("vesting.stream_id", s.ID.String()),
		attribute.String("vesting.policy", s.Policy.String()),
		attribute.String("vesting.asset", s.Asset),
		attribute.String("vesting.status", string(s.Status)),
	}
}
