package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// migration is one forward schema change.
type migration struct {
	Version string
	Name    string
	Up      string
}

// migrations for the Vesting store (PostgreSQL), applied in order.
var migrations = []migration{
	{
		Version: "20260301000001",
		Name:    "create_vesting_streams",
		Up: `
CREATE TABLE IF NOT EXISTS vesting_streams (
    id                   TEXT PRIMARY KEY,
    name                 TEXT NOT NULL DEFAULT '',
    sender               TEXT NOT NULL,
    recipient            TEXT NOT NULL,
    asset                TEXT NOT NULL,
    custody_account      TEXT NOT NULL DEFAULT '',
    deposited_amount     NUMERIC(20, 0) NOT NULL,
    withdrawn_amount     NUMERIC(20, 0) NOT NULL DEFAULT 0,
    start_time           BIGINT NOT NULL,
    end_time             BIGINT NOT NULL,
    cliff_time           BIGINT,
    cliff_amount         NUMERIC(20, 0) NOT NULL DEFAULT 0,
    rate_amount          NUMERIC(20, 0) NOT NULL DEFAULT 0,
    rate_interval        NUMERIC(20, 0) NOT NULL DEFAULT 0,
    policy               TEXT NOT NULL,
    unlocks              JSONB NOT NULL DEFAULT '[]',
    status               TEXT NOT NULL,
    permissions          JSONB NOT NULL DEFAULT '{}',
    fees                 JSONB NOT NULL DEFAULT '{}',
    automatic_withdrawal BOOLEAN NOT NULL DEFAULT FALSE,
    withdrawal_frequency BIGINT NOT NULL DEFAULT 0,
    last_mutation_time   BIGINT NOT NULL,
    cancelled_at         BIGINT,
    cancelled_by         TEXT,
    metadata             JSONB NOT NULL DEFAULT '{}',
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT vesting_streams_withdrawn_le_deposited CHECK (withdrawn_amount <= deposited_amount)
);

CREATE INDEX IF NOT EXISTS idx_vesting_streams_sender ON vesting_streams (sender);
CREATE INDEX IF NOT EXISTS idx_vesting_streams_recipient ON vesting_streams (recipient);
CREATE INDEX IF NOT EXISTS idx_vesting_streams_status ON vesting_streams (status);
CREATE INDEX IF NOT EXISTS idx_vesting_streams_auto ON vesting_streams (last_mutation_time)
    WHERE automatic_withdrawal;
`,
	},
	{
		Version: "20260301000002",
		Name:    "create_vesting_stream_events",
		Up: `
CREATE TABLE IF NOT EXISTS vesting_stream_events (
    seq        BIGSERIAL PRIMARY KEY,
    id         TEXT NOT NULL UNIQUE,
    stream_id  TEXT NOT NULL REFERENCES vesting_streams (id) ON DELETE CASCADE,
    type       TEXT NOT NULL,
    timestamp  BIGINT NOT NULL,
    payload    JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_vesting_stream_events_stream ON vesting_stream_events (stream_id, seq);
`,
	},
	{
		Version: "20261016000001",
		Name:    "create_vesting_custody_balances",
		Up: `
CREATE TABLE IF NOT EXISTS vesting_custody_balances (
    account    TEXT NOT NULL,
    asset      TEXT NOT NULL,
    amount     NUMERIC(20, 0) NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (account, asset),
    CONSTRAINT vesting_custody_balances_amount_range
        CHECK (amount >= 0 AND amount <= 18446744073709551615)
);
`,
	},
}

// migrationLockID serializes concurrent Migrate calls across processes.
const migrationLockID = 0x76657374

func applyMigrations(ctx context.Context, tx pgx.Tx) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	if _, err := tx.Exec(ctx, `
CREATE TABLE IF NOT EXISTS vesting_schema_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, m := range migrations {
		var applied bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM vesting_schema_migrations WHERE version = $1)`, m.Version,
		).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", m.Name, err)
		}
		if applied {
			continue
		}
		if _, err := tx.Exec(ctx, m.Up); err != nil {
			return fmt.Errorf("exec migration %s: %w", m.Name, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO vesting_schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name,
		); err != nil {
			return fmt.Errorf("record migration %s: %w", m.Name, err)
		}
	}
	return nil
}
