package vesting_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/vesting"
)

func TestLoadEnvConfigDefaults(t *testing.T) {
	cfg, err := vesting.LoadEnvConfig()
	require.NoError(t, err)

	assert.Equal(t, vesting.DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 30*time.Second, cfg.AutoWithdrawInterval)
	assert.Equal(t, 100, cfg.AutoWithdrawBatch)
	assert.True(t, cfg.CapPlatformFee)
	assert.Equal(t, "vesting.events", cfg.AMQPExchange)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvConfigOverrides(t *testing.T) {
	t.Setenv("VESTING_STORE_DRIVER", "postgres")
	t.Setenv("VESTING_POSTGRES_URL", "postgres://localhost/vesting")
	t.Setenv("VESTING_AUTO_WITHDRAW_INTERVAL", "5s")
	t.Setenv("VESTING_PLATFORM_FEE_BPS", "25")
	t.Setenv("VESTING_PLATFORM_FEE_RECIPIENT", "treasury")

	cfg, err := vesting.LoadEnvConfig()
	require.NoError(t, err)
	assert.Equal(t, vesting.DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 5*time.Second, cfg.AutoWithdrawInterval)
	assert.Equal(t, uint16(25), cfg.PlatformFeeBps)
	assert.Len(t, cfg.Options(), 3)
}

func TestLoadEnvConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"VESTING_STORE_DRIVER": "cassandra"}},
		{"postgres without url", map[string]string{"VESTING_STORE_DRIVER": "postgres"}},
		{"mongo without uri", map[string]string{"VESTING_STORE_DRIVER": "mongo"}},
		{"fee without recipient", map[string]string{"VESTING_PLATFORM_FEE_BPS": "10"}},
		{"negative interval", map[string]string{"VESTING_AUTO_WITHDRAW_INTERVAL": "-1s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := vesting.LoadEnvConfig()
			assert.ErrorIs(t, err, vesting.ErrInvalidInput)
		})
	}
}

func TestLoadEnvConfigParseError(t *testing.T) {
	t.Setenv("VESTING_AUTO_WITHDRAW_BATCH", "lots")

	_, err := vesting.LoadEnvConfig()
	require.Error(t, err)
	assert.ErrorContains(t, err, "vesting: parse env")
}
