// Package sqlite implements store.Store on SQLite through the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/xraph/vesting"
	"github.com/xraph/vesting/event"
	"github.com/xraph/vesting/id"
	vestingstore "github.com/xraph/vesting/store"
	"github.com/xraph/vesting/store/sqlite/migrations"
	"github.com/xraph/vesting/stream"
)

// compile-time interface check
var _ vestingstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New wraps an open database handle. Call Migrate before use.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens the database file at path with WAL journaling and foreign
// keys enabled, and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("vesting/sqlite: storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("vesting/sqlite: open: %w", err)
	}
	s := New(db)
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB returns the underlying database handle for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate applies embedded migrations that have not run yet.
func (s *Store) Migrate(ctx context.Context) error {
	if err := applyMigrations(ctx, s.db, migrations.FS); err != nil {
		return fmt.Errorf("vesting/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("vesting/sqlite: ping: %w: %w", vesting.ErrStoreNotReady, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Stream Store ====================

func (s *Store) CreateStream(ctx context.Context, st *stream.Stream, events ...*event.Event) error {
	m, err := toStreamModel(st)
	if err != nil {
		return fmt.Errorf("vesting/sqlite: %w", err)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO vesting_streams (`+streamColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.args()...,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return vesting.ErrAlreadyExists
			}
			return fmt.Errorf("vesting/sqlite: insert stream: %w", err)
		}
		return insertEvents(ctx, tx, events)
	})
}

func (s *Store) GetStream(ctx context.Context, streamID id.StreamID) (*stream.Stream, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+streamColumns+` FROM vesting_streams WHERE id = ?`, streamID.String())
	m, err := scanStream(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vesting.ErrStreamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vesting/sqlite: get stream: %w", err)
	}
	return fromStreamModel(m)
}

func (s *Store) UpdateStream(ctx context.Context, st *stream.Stream, events ...*event.Event) error {
	m, err := toStreamModel(st)
	if err != nil {
		return fmt.Errorf("vesting/sqlite: %w", err)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE vesting_streams SET
    name = ?, recipient = ?, custody_account = ?,
    deposited_amount = ?, withdrawn_amount = ?, end_time = ?,
    status = ?, last_mutation_time = ?, cancelled_at = ?, cancelled_by = ?,
    metadata = ?, updated_at = ?
WHERE id = ?`,
			m.Name, m.Recipient, m.CustodyAccount,
			m.DepositedAmount, m.WithdrawnAmount, m.EndTime,
			m.Status, m.LastMutationTime, m.CancelledAt, m.CancelledBy,
			m.Metadata, m.UpdatedAt,
			m.ID,
		)
		if err != nil {
			return fmt.Errorf("vesting/sqlite: update stream: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("vesting/sqlite: update stream: %w", err)
		}
		if n == 0 {
			return vesting.ErrStreamNotFound
		}
		return insertEvents(ctx, tx, events)
	})
}

func (s *Store) ListStreams(ctx context.Context, opts stream.ListOpts) ([]*stream.Stream, error) {
	query := `SELECT ` + streamColumns + ` FROM vesting_streams WHERE 1=1`
	var args []any
	if opts.Sender != "" {
		query += ` AND sender = ?`
		args = append(args, string(opts.Sender))
	}
	if opts.Recipient != "" {
		query += ` AND recipient = ?`
		args = append(args, string(opts.Recipient))
	}
	if opts.Asset != "" {
		query += ` AND asset = ?`
		args = append(args, opts.Asset)
	}
	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(opts.Status))
	}
	if opts.Policy != "" {
		query += ` AND policy = ?`
		args = append(args, string(opts.Policy))
	}
	query += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, sqlLimit(opts.Limit), max(opts.Offset, 0))

	return s.queryStreams(ctx, query, args...)
}

func (s *Store) ListDueWithdrawals(ctx context.Context, now int64, limit int) ([]*stream.Stream, error) {
	return s.queryStreams(ctx, `
SELECT `+streamColumns+` FROM vesting_streams
WHERE automatic_withdrawal = 1
  AND withdrawal_frequency > 0
  AND (status = ? OR (status = ? AND start_time <= ?))
  AND ? - last_mutation_time >= withdrawal_frequency
ORDER BY last_mutation_time, id
LIMIT ?`,
		string(stream.StatusStreaming), string(stream.StatusScheduled), now, now, sqlLimit(limit),
	)
}

func (s *Store) queryStreams(ctx context.Context, query string, args ...any) ([]*stream.Stream, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vesting/sqlite: list streams: %w", err)
	}
	defer rows.Close()

	result := make([]*stream.Stream, 0)
	for rows.Next() {
		m, err := scanStream(rows)
		if err != nil {
			return nil, fmt.Errorf("vesting/sqlite: scan stream: %w", err)
		}
		st, err := fromStreamModel(m)
		if err != nil {
			return nil, fmt.Errorf("vesting/sqlite: %w", err)
		}
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vesting/sqlite: list streams: %w", err)
	}
	return result, nil
}

// ==================== Event Store ====================

func (s *Store) ListEvents(ctx context.Context, streamID id.StreamID, opts event.ListOpts) ([]*event.Event, error) {
	query := `SELECT payload FROM vesting_stream_events WHERE stream_id = ?`
	args := []any{streamID.String()}
	if opts.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(opts.Type))
	}
	query += ` ORDER BY seq LIMIT ? OFFSET ?`
	args = append(args, sqlLimit(opts.Limit), max(opts.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vesting/sqlite: list events: %w", err)
	}
	defer rows.Close()

	result := make([]*event.Event, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("vesting/sqlite: scan event: %w", err)
		}
		e, err := fromEventPayload(payload)
		if err != nil {
			return nil, fmt.Errorf("vesting/sqlite: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vesting/sqlite: list events: %w", err)
	}
	return result, nil
}

func insertEvents(ctx context.Context, tx *sql.Tx, events []*event.Event) error {
	for _, e := range events {
		m, err := toEventModel(e)
		if err != nil {
			return fmt.Errorf("vesting/sqlite: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO vesting_stream_events (id, stream_id, type, timestamp, payload, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID, m.StreamID, m.Type, m.Timestamp, m.Payload, m.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return vesting.ErrAlreadyExists
			}
			return fmt.Errorf("vesting/sqlite: insert event: %w", err)
		}
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vesting/sqlite: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vesting/sqlite: commit: %w: %w", vesting.ErrTransactionFailed, err)
	}
	return nil
}

// sqlLimit maps "no limit" (<= 0) to SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
