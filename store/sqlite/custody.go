package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/xraph/vesting/custody"
	"github.com/xraph/vesting/types"
)

var (
	_ custody.Provider  = (*Store)(nil)
	_ custody.Custodian = (*Custodian)(nil)
	_ custody.Funder    = (*Custodian)(nil)
)

// Custodian keeps custody balances in the vesting_custody_balances table
// of the store's database.
type Custodian struct {
	s *Store
}

// Custodian implements custody.Provider.
func (s *Store) Custodian() custody.Custodian { return s.Balances() }

// Balances returns the store's custodian.
func (s *Store) Balances() *Custodian { return &Custodian{s: s} }

// Transfer implements custody.Custodian. Both legs commit in one
// transaction.
func (c *Custodian) Transfer(ctx context.Context, t custody.Transfer) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return c.s.inTx(ctx, func(tx *sql.Tx) error {
		from, err := readBalance(ctx, tx, t.From, t.Asset)
		if err != nil {
			return err
		}
		if from < t.Amount {
			return fmt.Errorf("%w: %s holds %d %s, need %d", custody.ErrInsufficientBalance, t.From, from, t.Asset, t.Amount)
		}
		to, err := readBalance(ctx, tx, t.To, t.Asset)
		if err != nil {
			return err
		}
		next, err := types.CheckedAdd(to, t.Amount)
		if err != nil {
			return fmt.Errorf("vesting/sqlite: credit %s: %w", t.To, err)
		}
		if err := writeBalance(ctx, tx, t.From, t.Asset, from-t.Amount); err != nil {
			return err
		}
		return writeBalance(ctx, tx, t.To, t.Asset, next)
	})
}

// Fund implements custody.Funder.
func (c *Custodian) Fund(ctx context.Context, account, asset string, amount uint64) error {
	return c.s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := readBalance(ctx, tx, account, asset)
		if err != nil {
			return err
		}
		next, err := types.CheckedAdd(current, amount)
		if err != nil {
			return fmt.Errorf("vesting/sqlite: fund %s: %w", account, err)
		}
		return writeBalance(ctx, tx, account, asset, next)
	})
}

// Balance implements custody.Custodian. Unknown accounts hold nothing.
func (c *Custodian) Balance(ctx context.Context, account, asset string) (uint64, error) {
	return readBalance(ctx, c.s.db, account, asset)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readBalance(ctx context.Context, q queryRower, account, asset string) (uint64, error) {
	var raw string
	err := q.QueryRowContext(ctx,
		`SELECT amount FROM vesting_custody_balances WHERE account = ? AND asset = ?`,
		account, asset,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("vesting/sqlite: read balance %s: %w", account, err)
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("vesting/sqlite: balance %s: %w", account, err)
	}
	return v, nil
}

func writeBalance(ctx context.Context, tx *sql.Tx, account, asset string, amount uint64) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO vesting_custody_balances (account, asset, amount, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (account, asset) DO UPDATE SET amount = excluded.amount, updated_at = excluded.updated_at`,
		account, asset, formatUint(amount), toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("vesting/sqlite: write balance %s: %w", account, err)
	}
	return nil
}
