// Package redislock is a lock.Locker backed by Redis, for engines running in
// more than one process against the same store.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"

	"github.com/xraph/vesting/lock"
)

var (
	// ErrNilClient is returned when no Redis client is given.
	ErrNilClient = errors.New("redislock: redis client is nil")
	// ErrInvalidOptions is returned for out-of-range lock options.
	ErrInvalidOptions = errors.New("redislock: invalid options")
)

// Options tune lock acquisition.
type Options struct {
	// Expiry bounds how long a crashed holder can block a stream.
	Expiry time.Duration
	// Tries is the number of acquisition attempts.
	Tries int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
	// DriftFactor compensates for clock drift between Redis nodes.
	DriftFactor float64
}

// DefaultOptions returns options suited to a single stream mutation.
func DefaultOptions() Options {
	return Options{
		Expiry:      10 * time.Second,
		Tries:       32,
		RetryDelay:  50 * time.Millisecond,
		DriftFactor: 0.01,
	}
}

func (o Options) validate() error {
	switch {
	case o.Expiry <= 0:
		return fmt.Errorf("%w: expiry must be positive", ErrInvalidOptions)
	case o.Tries < 1:
		return fmt.Errorf("%w: tries must be at least 1", ErrInvalidOptions)
	case o.RetryDelay < 0:
		return fmt.Errorf("%w: retry delay cannot be negative", ErrInvalidOptions)
	case o.DriftFactor < 0 || o.DriftFactor >= 1:
		return fmt.Errorf("%w: drift factor must be in [0, 1)", ErrInvalidOptions)
	}
	return nil
}

// Locker is a redsync-backed lock.Locker.
type Locker struct {
	rs     *redsync.Redsync
	opts   Options
	logger *slog.Logger
}

var _ lock.Locker = (*Locker)(nil)

// Option configures a Locker.
type Option func(*Locker)

// WithOptions overrides DefaultOptions.
func WithOptions(o Options) Option {
	return func(l *Locker) { l.opts = o }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Locker) { l.logger = logger }
}

// New returns a Locker using client.
func New(client goredislib.UniversalClient, opts ...Option) (*Locker, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	l := &Locker{
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   DefaultOptions(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.opts.validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// WithLock implements lock.Locker.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := lock.CheckArgs(key, fn); err != nil {
		return err
	}

	mutex := l.rs.NewMutex(
		key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
		redsync.WithDriftFactor(l.opts.DriftFactor),
	)

	if err := mutex.LockContext(ctx); err != nil {
		l.logger.Debug("failed to acquire lock", "lock_key", key, "error", err)
		return fmt.Errorf("%w: %s: %w", lock.ErrNotAcquired, key, err)
	}

	defer func() {
		// Release with a fresh context so a cancelled caller still frees the key.
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.opts.Expiry)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
			l.logger.Warn("failed to release lock", "lock_key", key, "unlock_ok", ok, "error", err)
		}
	}()

	return fn(ctx)
}
