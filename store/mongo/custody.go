package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/vesting/custody"
	"github.com/xraph/vesting/types"
)

var (
	_ custody.Provider  = (*Store)(nil)
	_ custody.Custodian = (*Custodian)(nil)
	_ custody.Funder    = (*Custodian)(nil)
)

// balanceModel is one account's holding of one asset. Amounts are decimal
// strings, like stream amounts.
type balanceModel struct {
	Account   string    `bson:"account"`
	Asset     string    `bson:"asset"`
	Amount    string    `bson:"amount"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Custodian keeps custody balances in the vesting_custody_balances
// collection. Each transfer runs in a transaction.
type Custodian struct {
	s *Store
}

// Custodian implements custody.Provider.
func (s *Store) Custodian() custody.Custodian { return s.Balances() }

// Balances returns the store's custodian.
func (s *Store) Balances() *Custodian { return &Custodian{s: s} }

// Transfer implements custody.Custodian.
func (c *Custodian) Transfer(ctx context.Context, t custody.Transfer) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return c.s.inTx(ctx, func(ctx context.Context) error {
		from, err := c.read(ctx, t.From, t.Asset)
		if err != nil {
			return err
		}
		if from < t.Amount {
			return fmt.Errorf("%w: %s holds %d %s, need %d", custody.ErrInsufficientBalance, t.From, from, t.Asset, t.Amount)
		}
		to, err := c.read(ctx, t.To, t.Asset)
		if err != nil {
			return err
		}
		next, err := types.CheckedAdd(to, t.Amount)
		if err != nil {
			return fmt.Errorf("vesting/mongo: credit %s: %w", t.To, err)
		}
		if err := c.write(ctx, t.From, t.Asset, from-t.Amount); err != nil {
			return err
		}
		return c.write(ctx, t.To, t.Asset, next)
	})
}

// Fund implements custody.Funder.
func (c *Custodian) Fund(ctx context.Context, account, asset string, amount uint64) error {
	return c.s.inTx(ctx, func(ctx context.Context) error {
		current, err := c.read(ctx, account, asset)
		if err != nil {
			return err
		}
		next, err := types.CheckedAdd(current, amount)
		if err != nil {
			return fmt.Errorf("vesting/mongo: fund %s: %w", account, err)
		}
		return c.write(ctx, account, asset, next)
	})
}

// Balance implements custody.Custodian. Unknown accounts hold nothing.
func (c *Custodian) Balance(ctx context.Context, account, asset string) (uint64, error) {
	return c.read(ctx, account, asset)
}

func (c *Custodian) read(ctx context.Context, account, asset string) (uint64, error) {
	var m balanceModel
	err := c.s.db.Collection(colBalances).
		FindOne(ctx, bson.M{"account": account, "asset": asset}).
		Decode(&m)
	if isNoDocuments(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("vesting/mongo: read balance %s: %w", account, err)
	}
	v, err := parseUint(m.Amount)
	if err != nil {
		return 0, fmt.Errorf("vesting/mongo: balance %s: %w", account, err)
	}
	return v, nil
}

func (c *Custodian) write(ctx context.Context, account, asset string, amount uint64) error {
	_, err := c.s.db.Collection(colBalances).UpdateOne(ctx,
		bson.M{"account": account, "asset": asset},
		bson.M{"$set": bson.M{
			"amount":     formatUint(amount),
			"updated_at": time.Now().UTC(),
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("vesting/mongo: write balance %s: %w", account, err)
	}
	return nil
}
