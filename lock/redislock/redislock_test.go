package redislock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/vesting/lock"
)

func setupLocker(t *testing.T, opts ...Option) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l, err := New(client, opts...)
	require.NoError(t, err)
	return l, mr
}

func TestNewRejectsNilClient(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestNewRejectsBadOptions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	o := DefaultOptions()
	o.Tries = 0
	_, err := New(client, WithOptions(o))
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestWithLock(t *testing.T) {
	l, mr := setupLocker(t)
	key := lock.StreamKey("strm_1")
	executed := false

	err := l.WithLock(context.Background(), key, func(context.Context) error {
		executed = true
		assert.True(t, mr.Exists(key), "key held while fn runs")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, executed)
	assert.False(t, mr.Exists(key), "key released")
}

func TestWithLockPropagatesError(t *testing.T) {
	l, _ := setupLocker(t)
	err := l.WithLock(context.Background(), "k", func(context.Context) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestWithLockContention(t *testing.T) {
	o := DefaultOptions()
	o.Tries = 1
	l, mr := setupLocker(t, WithOptions(o))

	require.NoError(t, mr.Set("busy", "someone-else"))
	err := l.WithLock(context.Background(), "busy", func(context.Context) error {
		t.Fatal("must not run")
		return nil
	})
	assert.ErrorIs(t, err, lock.ErrNotAcquired)
}

func TestWithLockSerializes(t *testing.T) {
	o := DefaultOptions()
	o.Tries = 200
	o.RetryDelay = 5 * time.Millisecond
	l, _ := setupLocker(t, WithOptions(o))

	var (
		inside  atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), "shared", func(context.Context) error {
				if inside.Add(1) > 1 {
					overlap.Store(true)
				}
				time.Sleep(2 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.False(t, overlap.Load())
}
