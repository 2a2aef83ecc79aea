package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/vesting"
	"github.com/xraph/vesting/store/memory"
	"github.com/xraph/vesting/store/sqlite"
)

func TestOpenMemory(t *testing.T) {
	for _, driver := range []string{"", vesting.DriverMemory} {
		s, err := Open(context.Background(), Config{Driver: driver})
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, s)
	}
}

func TestOpenSQLite(t *testing.T) {
	s, err := Open(context.Background(), Config{
		Driver:     vesting.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "vesting.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	assert.IsType(t, &sqlite.Store{}, s)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestCustodian(t *testing.T) {
	_, ok := Custodian(memory.New())
	assert.False(t, ok)

	s, err := Open(context.Background(), Config{
		Driver:     vesting.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "vesting.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	c, ok := Custodian(s)
	require.True(t, ok)
	assert.IsType(t, &sqlite.Custodian{}, c)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "cassandra"})
	assert.ErrorIs(t, err, vesting.ErrInvalidInput)
}

func TestFromEnv(t *testing.T) {
	cfg := FromEnv(vesting.EnvConfig{
		StoreDriver: vesting.DriverMongo,
		MongoURI:    "mongodb://localhost:27017",
		MongoDB:     "streams",
	})
	assert.Equal(t, Config{
		Driver:        vesting.DriverMongo,
		MongoURI:      "mongodb://localhost:27017",
		MongoDatabase: "streams",
	}, cfg)
}
