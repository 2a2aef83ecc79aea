package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/xraph/vesting/custody"
	"github.com/xraph/vesting/types"
)

const checkViolation = "23514"

var (
	_ custody.Provider  = (*Store)(nil)
	_ custody.Custodian = (*Custodian)(nil)
	_ custody.Funder    = (*Custodian)(nil)
)

// Custodian keeps custody balances in the vesting_custody_balances table.
// Debits are conditional updates, so a balance never goes negative even
// under concurrent transfers.
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
	return c.s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE vesting_custody_balances
SET amount = amount - $3, updated_at = NOW()
WHERE account = $1 AND asset = $2 AND amount >= $3`,
			t.From, t.Asset, toNumeric(t.Amount),
		)
		if err != nil {
			return fmt.Errorf("vesting/postgres: debit %s: %w", t.From, err)
		}
		if tag.RowsAffected() == 0 && t.Amount > 0 {
			held, err := readBalance(ctx, tx, t.From, t.Asset)
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: %s holds %d %s, need %d", custody.ErrInsufficientBalance, t.From, held, t.Asset, t.Amount)
		}
		return credit(ctx, tx, t.To, t.Asset, t.Amount)
	})
}

// Fund implements custody.Funder.
func (c *Custodian) Fund(ctx context.Context, account, asset string, amount uint64) error {
	return c.s.inTx(ctx, func(tx pgx.Tx) error {
		return credit(ctx, tx, account, asset, amount)
	})
}

// Balance implements custody.Custodian. Unknown accounts hold nothing.
func (c *Custodian) Balance(ctx context.Context, account, asset string) (uint64, error) {
	return readBalance(ctx, c.s.pool, account, asset)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func readBalance(ctx context.Context, q queryRower, account, asset string) (uint64, error) {
	var n pgtype.Numeric
	err := q.QueryRow(ctx,
		`SELECT amount FROM vesting_custody_balances WHERE account = $1 AND asset = $2`,
		account, asset,
	).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("vesting/postgres: read balance %s: %w", account, err)
	}
	v, err := fromNumeric(n)
	if err != nil {
		return 0, fmt.Errorf("vesting/postgres: balance %s: %w", account, err)
	}
	return v, nil
}

func credit(ctx context.Context, tx pgx.Tx, account, asset string, amount uint64) error {
	_, err := tx.Exec(ctx, `
INSERT INTO vesting_custody_balances (account, asset, amount)
VALUES ($1, $2, $3)
ON CONFLICT (account, asset)
DO UPDATE SET amount = vesting_custody_balances.amount + EXCLUDED.amount, updated_at = NOW()`,
		account, asset, toNumeric(amount),
	)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("vesting/postgres: credit %s: %w", account, types.ErrOverflow)
		}
		return fmt.Errorf("vesting/postgres: credit %s: %w", account, err)
	}
	return nil
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == checkViolation
}
