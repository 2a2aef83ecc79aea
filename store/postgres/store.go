// Package postgres implements store.Store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/vesting"
	"github.com/xraph/vesting/event"
	"github.com/xraph/vesting/id"
	vestingstore "github.com/xraph/vesting/store"
	"github.com/xraph/vesting/stream"
)

// compile-time interface check
var _ vestingstore.Store = (*Store)(nil)

const uniqueViolation = "23505"

// Store implements store.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool. Call Migrate before use.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool for databaseURL and checks connectivity.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("vesting/postgres: create connection pool: %w", err)
	}
	s := New(pool)
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Pool returns the underlying pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return applyMigrations(ctx, tx)
	})
	if err != nil {
		return fmt.Errorf("vesting/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("vesting/postgres: ping: %w: %w", vesting.ErrStoreNotReady, err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ==================== Stream Store ====================

func (s *Store) CreateStream(ctx context.Context, st *stream.Stream, events ...*event.Event) error {
	m, err := toStreamModel(st)
	if err != nil {
		return fmt.Errorf("vesting/postgres: %w", err)
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
INSERT INTO vesting_streams (`+streamColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)`,
			m.args()...,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return vesting.ErrAlreadyExists
			}
			return fmt.Errorf("vesting/postgres: insert stream: %w", err)
		}
		return insertEvents(ctx, tx, events)
	})
}

func (s *Store) GetStream(ctx context.Context, streamID id.StreamID) (*stream.Stream, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+streamColumns+` FROM vesting_streams WHERE id = $1`, streamID.String())
	m, err := scanStream(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, vesting.ErrStreamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("vesting/postgres: get stream: %w", err)
	}
	return fromStreamModel(m)
}

func (s *Store) UpdateStream(ctx context.Context, st *stream.Stream, events ...*event.Event) error {
	m, err := toStreamModel(st)
	if err != nil {
		return fmt.Errorf("vesting/postgres: %w", err)
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE vesting_streams SET
    name = $2, recipient = $3, custody_account = $4,
    deposited_amount = $5, withdrawn_amount = $6, end_time = $7,
    status = $8, last_mutation_time = $9, cancelled_at = $10, cancelled_by = $11,
    metadata = $12, updated_at = $13
WHERE id = $1`,
			m.ID,
			m.Name, m.Recipient, m.CustodyAccount,
			m.DepositedAmount, m.WithdrawnAmount, m.EndTime,
			m.Status, m.LastMutationTime, m.CancelledAt, m.CancelledBy,
			m.Metadata, m.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("vesting/postgres: update stream: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return vesting.ErrStreamNotFound
		}
		return insertEvents(ctx, tx, events)
	})
}

func (s *Store) ListStreams(ctx context.Context, opts stream.ListOpts) ([]*stream.Stream, error) {
	query := `SELECT ` + streamColumns + ` FROM vesting_streams WHERE TRUE`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if opts.Sender != "" {
		query += ` AND sender = ` + arg(string(opts.Sender))
	}
	if opts.Recipient != "" {
		query += ` AND recipient = ` + arg(string(opts.Recipient))
	}
	if opts.Asset != "" {
		query += ` AND asset = ` + arg(opts.Asset)
	}
	if opts.Status != "" {
		query += ` AND status = ` + arg(string(opts.Status))
	}
	if opts.Policy != "" {
		query += ` AND policy = ` + arg(string(opts.Policy))
	}
	query += ` ORDER BY id LIMIT ` + arg(pgLimit(opts.Limit)) + ` OFFSET ` + arg(max(opts.Offset, 0))

	return s.queryStreams(ctx, query, args...)
}

func (s *Store) ListDueWithdrawals(ctx context.Context, now int64, limit int) ([]*stream.Stream, error) {
	return s.queryStreams(ctx, `
SELECT `+streamColumns+` FROM vesting_streams
WHERE automatic_withdrawal
  AND withdrawal_frequency > 0
  AND (status = $1 OR (status = $2 AND start_time <= $3))
  AND $3 - last_mutation_time >= withdrawal_frequency
ORDER BY last_mutation_time, id
LIMIT $4`,
		string(stream.StatusStreaming), string(stream.StatusScheduled), now, pgLimit(limit),
	)
}

func (s *Store) queryStreams(ctx context.Context, query string, args ...any) ([]*stream.Stream, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vesting/postgres: list streams: %w", err)
	}
	defer rows.Close()

	result := make([]*stream.Stream, 0)
	for rows.Next() {
		m, err := scanStream(rows)
		if err != nil {
			return nil, fmt.Errorf("vesting/postgres: scan stream: %w", err)
		}
		st, err := fromStreamModel(m)
		if err != nil {
			return nil, fmt.Errorf("vesting/postgres: %w", err)
		}
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vesting/postgres: list streams: %w", err)
	}
	return result, nil
}

// ==================== Event Store ====================

func (s *Store) ListEvents(ctx context.Context, streamID id.StreamID, opts event.ListOpts) ([]*event.Event, error) {
	query := `SELECT payload FROM vesting_stream_events WHERE stream_id = $1`
	args := []any{streamID.String()}
	if opts.Type != "" {
		args = append(args, string(opts.Type))
		query += ` AND type = $2`
	}
	args = append(args, pgLimit(opts.Limit), max(opts.Offset, 0))
	query += fmt.Sprintf(` ORDER BY seq LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vesting/postgres: list events: %w", err)
	}
	defer rows.Close()

	result := make([]*event.Event, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("vesting/postgres: scan event: %w", err)
		}
		e, err := fromEventPayload(payload)
		if err != nil {
			return nil, fmt.Errorf("vesting/postgres: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vesting/postgres: list events: %w", err)
	}
	return result, nil
}

func insertEvents(ctx context.Context, tx pgx.Tx, events []*event.Event) error {
	for _, e := range events {
		m, err := toEventModel(e)
		if err != nil {
			return fmt.Errorf("vesting/postgres: %w", err)
		}
		_, err = tx.Exec(ctx, `
INSERT INTO vesting_stream_events (id, stream_id, type, timestamp, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, m.StreamID, m.Type, m.Timestamp, m.Payload, m.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return vesting.ErrAlreadyExists
			}
			return fmt.Errorf("vesting/postgres: insert event: %w", err)
		}
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("vesting/postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("vesting/postgres: commit: %w: %w", vesting.ErrTransactionFailed, err)
	}
	return nil
}

// pgLimit maps "no limit" (<= 0) to NULL, which Postgres treats as LIMIT ALL.
func pgLimit(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
