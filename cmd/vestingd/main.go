// Command vestingd runs the vesting engine as a standalone process: it
// migrates the configured store, runs the automatic withdrawal worker and
// serves Prometheus metrics until interrupted.
//
// Escrowed value is held in the custody balance table of the configured
// store. The memory driver keeps no balances, so with it vestingd moves no
// value and the withdrawal worker stays off.
//
// Configuration is read from VESTING_* environment variables, optionally
// loaded from a .env file.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"

	"github.com/xraph/vesting"
	audithook "github.com/xraph/vesting/audit_hook"
	"github.com/xraph/vesting/eventbus/amqpbus"
	"github.com/xraph/vesting/lock/redislock"
	"github.com/xraph/vesting/observability"
	"github.com/xraph/vesting/store"
	"github.com/xraph/vesting/store/backend"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "vestingd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := vesting.LoadEnvConfig()
	if err != nil {
		return err
	}

	zl, err := newZapLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	logger := slog.New(zapslog.NewHandler(zl.Core(), zapslog.WithCaller(true)))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := backend.Open(ctx, backend.FromEnv(cfg))
	if err != nil {
		return err
	}
	logger.Info("store opened", "driver", cfg.StoreDriver)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine, release, err := startEngine(ctx, cfg, st, reg, logger)
	if err != nil {
		return err
	}
	defer release()

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux(reg, engine),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Warn("interrupt received, shutting down")
	case err = <-errCh:
		logger.Error("metrics server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Error("metrics server shutdown", "error", serr)
	}
	if serr := engine.Stop(); serr != nil {
		logger.Error("engine stop", "error", serr)
	}

	logger.Info("vestingd stopped")
	return err
}

// startEngine builds and starts the engine on st. On success the engine
// owns st and release closes the connections opened here. On failure st
// and those connections are already closed.
func startEngine(
	ctx context.Context,
	cfg vesting.EnvConfig,
	st store.Store,
	reg *prometheus.Registry,
	logger *slog.Logger,
) (engine *vesting.Engine, release func(), err error) {
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}
	defer func() {
		if err != nil {
			closeAll()
			_ = st.Close()
		}
	}()

	opts := append(cfg.Options(),
		vesting.WithLogger(logger),
		vesting.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))),
		vesting.WithPlugin(audithook.New(logRecorder(logger), audithook.WithLogger(logger))),
	)
	opts = append(opts, custodyOptions(st, cfg.StoreDriver, logger)...)

	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		closers = append(closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		locker, err := redislock.New(client, redislock.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, vesting.WithLocker(locker))
		logger.Info("distributed locking enabled", "redis_addr", cfg.RedisAddr)
	}

	if cfg.AMQPURL != "" {
		conn, publisher, err := dialEventBus(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, conn.Close)
		opts = append(opts, vesting.WithPlugin(publisher))
		logger.Info("event publishing enabled", "exchange", cfg.AMQPExchange)
	}

	engine = vesting.New(st, opts...)
	if err := engine.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("start engine: %w", err)
	}
	return engine, closeAll, nil
}

// custodyOptions uses the store's balance table as the custodian. Stores
// without one leave the engine unable to move value.
func custodyOptions(st store.Store, driver string, logger *slog.Logger) []vesting.Option {
	c, ok := backend.Custodian(st)
	if !ok {
		logger.Warn("store keeps no custody balances; value-moving operations and automatic withdrawals are disabled",
			"driver", driver,
		)
		return nil
	}
	return []vesting.Option{vesting.WithCustodian(c)}
}

func newZapLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: log level %q", vesting.ErrInvalidInput, level)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func dialEventBus(cfg vesting.EnvConfig, logger *slog.Logger) (*amqp.Connection, *amqpbus.Publisher, error) {
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.AMQPExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp declare exchange %s: %w", cfg.AMQPExchange, err)
	}
	publisher, err := amqpbus.New(ch,
		amqpbus.WithExchange(cfg.AMQPExchange),
		amqpbus.WithAppID("vestingd"),
		amqpbus.WithLogger(logger),
	)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, publisher, nil
}

// logRecorder writes audit events to the process log.
func logRecorder(logger *slog.Logger) audithook.RecorderFunc {
	return func(ctx context.Context, ev *audithook.AuditEvent) error {
		logger.InfoContext(ctx, "audit",
			"action", ev.Action,
			"resource", ev.Resource,
			"resource_id", ev.ResourceID,
			"outcome", ev.Outcome,
			"severity", ev.Severity,
			"metadata", ev.Metadata,
		)
		return nil
	}
}

func metricsMux(reg *prometheus.Registry, engine *vesting.Engine) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := engine.Store().Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
