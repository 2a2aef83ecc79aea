package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/vesting/custody"
	"github.com/xraph/vesting/custody/custodytest"
	"github.com/xraph/vesting/store"
	"github.com/xraph/vesting/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openTempStore(t) })
}

func TestCustodian(t *testing.T) {
	custodytest.Run(t, func(t *testing.T) custodytest.Custodian { return openTempStore(t).Balances() })
}

func TestCustodianSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vesting.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Balances().Fund(ctx, "alice", "USDC", 500))
	require.NoError(t, s.Balances().Transfer(ctx, custody.Transfer{From: "alice", To: "escrow:1", Asset: "USDC", Amount: 200}))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	var c custody.Provider = reopened
	got, err := c.Custodian().Balance(ctx, "escrow:1", "USDC")
	require.NoError(t, err)
	assert.Equal(t, uint64(200), got)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.Error(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx))

	var n int
	require.NoError(t, s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+migrationTable).Scan(&n))
	assert.Equal(t, 3, n)
}

func TestExtractUp(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (x INT);\n-- +migrate Down\nDROP TABLE a;\n"
	assert.Equal(t, "\nCREATE TABLE a (x INT);\n", extractUp(content))
	assert.Equal(t, "SELECT 1;", extractUp("SELECT 1;"))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(errors.New("UNIQUE constraint failed: vesting_streams.id")))
	assert.False(t, isUniqueViolation(errors.New("CHECK constraint failed")))
}

func openTempStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "vesting.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
