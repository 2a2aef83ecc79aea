package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/vesting/custody/custodytest"
	"github.com/xraph/vesting/store"
	"github.com/xraph/vesting/store/storetest"
)

// openTestStore connects to VESTING_TEST_POSTGRES_URL and empties the
// vesting tables. Tests that need it are skipped when it is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("VESTING_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("VESTING_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	s, err := Connect(ctx, url)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	_, err = s.Pool().Exec(ctx,
		`TRUNCATE vesting_stream_events, vesting_streams, vesting_custody_balances`)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openTestStore(t) })
}

func TestCustodian(t *testing.T) {
	custodytest.Run(t, func(t *testing.T) custodytest.Custodian { return openTestStore(t).Balances() })
}

func TestIsCheckViolation(t *testing.T) {
	assert.True(t, isCheckViolation(fmt.Errorf("credit: %w", &pgconn.PgError{Code: "23514"})))
	assert.False(t, isCheckViolation(&pgconn.PgError{Code: "23505"}))
}

func TestMigrationsIncludeBalances(t *testing.T) {
	require.Len(t, migrations, 3)
	assert.Equal(t, "create_vesting_custody_balances", migrations[2].Name)
	for i := 1; i < len(migrations); i++ {
		assert.Less(t, migrations[i-1].Version, migrations[i].Version)
	}
}
