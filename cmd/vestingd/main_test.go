package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/vesting"
	audithook "github.com/xraph/vesting/audit_hook"
	"github.com/xraph/vesting/store"
	"github.com/xraph/vesting/store/memory"
	"github.com/xraph/vesting/store/sqlite"
)

var discard = slog.New(slog.DiscardHandler)

type closeRecorder struct {
	store.Store
	migrateErr error
	closed     int
}

func (c *closeRecorder) Migrate(ctx context.Context) error {
	if c.migrateErr != nil {
		return c.migrateErr
	}
	return c.Store.Migrate(ctx)
}

func (c *closeRecorder) Close() error {
	c.closed++
	return c.Store.Close()
}

func TestNewZapLogger(t *testing.T) {
	l, err := newZapLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = newZapLogger("chatty")
	assert.ErrorIs(t, err, vesting.ErrInvalidInput)
}

func TestMetricsMux(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "vesting_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	engine := vesting.New(memory.New())
	mux := metricsMux(reg, engine)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "vesting_test_total 1")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, engine.Stop())
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLogRecorder(t *testing.T) {
	r := logRecorder(slog.New(slog.DiscardHandler))
	assert.NoError(t, r.Record(context.Background(), &audithook.AuditEvent{Action: "stream.created"}))
}

func TestCustodyOptions(t *testing.T) {
	assert.Empty(t, custodyOptions(memory.New(), vesting.DriverMemory, discard))

	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "vesting.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	assert.Len(t, custodyOptions(s, vesting.DriverSQLite, discard), 1)
}

func TestStartEngineUsesStoreCustodian(t *testing.T) {
	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "vesting.db"))
	require.NoError(t, err)

	engine, release, err := startEngine(context.Background(), vesting.EnvConfig{}, s, prometheus.NewRegistry(), discard)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = engine.Stop()
		release()
	})
	assert.IsType(t, &sqlite.Custodian{}, engine.Custodian())
}

func TestStartEngineClosesStoreOnFailure(t *testing.T) {
	t.Run("engine start", func(t *testing.T) {
		st := &closeRecorder{Store: memory.New(), migrateErr: errors.New("schema locked")}
		_, _, err := startEngine(context.Background(), vesting.EnvConfig{}, st, prometheus.NewRegistry(), discard)
		assert.ErrorContains(t, err, "schema locked")
		assert.Equal(t, 1, st.closed)
	})

	t.Run("redis unreachable", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		st := &closeRecorder{Store: memory.New()}
		cfg := vesting.EnvConfig{RedisAddr: "127.0.0.1:1"}
		_, _, err := startEngine(ctx, cfg, st, prometheus.NewRegistry(), discard)
		assert.ErrorContains(t, err, "redis ping")
		assert.Equal(t, 1, st.closed)
	})
}
