package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalWithLock(t *testing.T) {
	l := NewLocal()
	executed := false

	err := l.WithLock(context.Background(), "k", func(context.Context) error {
		executed = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, executed)
	assert.Zero(t, l.size())
}

func TestLocalPropagatesError(t *testing.T) {
	l := NewLocal()
	err := l.WithLock(context.Background(), "k", func(context.Context) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestLocalRejectsBadArgs(t *testing.T) {
	l := NewLocal()
	assert.ErrorIs(t, l.WithLock(context.Background(), " ", func(context.Context) error { return nil }), ErrEmptyKey)
	assert.ErrorIs(t, l.WithLock(context.Background(), "k", nil), ErrNilFn)
}

func TestLocalSerializesSameKey(t *testing.T) {
	l := NewLocal()
	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), "same", func(context.Context) error {
				n := inside.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Zero(t, l.size())
}

func TestLocalDifferentKeysRunInParallel(t *testing.T) {
	l := NewLocal()
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = l.WithLock(context.Background(), "a", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := l.WithLock(context.Background(), "b", func(context.Context) error { return nil })
	require.NoError(t, err)
	close(release)
}

func TestLocalHonoursContext(t *testing.T) {
	l := NewLocal()
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = l.WithLock(context.Background(), "k", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.WithLock(ctx, "k", func(context.Context) error { return errors.New("must not run") })
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}
