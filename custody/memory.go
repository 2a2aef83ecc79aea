package custody

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/vesting/types"
)

// Memory is an in-process Custodian keyed by account and asset. It is
// suitable for tests and single-process deployments.
type Memory struct {
	mu       sync.RWMutex
	balances map[string]map[string]uint64
}

var (
	_ Custodian = (*Memory)(nil)
	_ Funder    = (*Memory)(nil)
)

// NewMemory returns an empty custodian.
func NewMemory() *Memory {
	return &Memory{balances: make(map[string]map[string]uint64)}
}

// Deposit credits amount of asset to account from outside the ledger.
func (m *Memory) Deposit(account, asset string, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := types.CheckedAdd(m.balances[account][asset], amount)
	if err != nil {
		return fmt.Errorf("custody: deposit to %s: %w", account, err)
	}
	m.set(account, asset, next)
	return nil
}

// Fund implements Funder.
func (m *Memory) Fund(_ context.Context, account, asset string, amount uint64) error {
	return m.Deposit(account, asset, amount)
}

// Transfer moves value atomically.
func (m *Memory) Transfer(_ context.Context, t Transfer) error {
	if err := t.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.balances[t.From][t.Asset]
	if from < t.Amount {
		return fmt.Errorf("%w: %s holds %d %s, need %d", ErrInsufficientBalance, t.From, from, t.Asset, t.Amount)
	}
	to, err := types.CheckedAdd(m.balances[t.To][t.Asset], t.Amount)
	if err != nil {
		return fmt.Errorf("custody: credit %s: %w", t.To, err)
	}

	m.set(t.From, t.Asset, from-t.Amount)
	m.set(t.To, t.Asset, to)
	return nil
}

// Balance returns the balance of account in asset.
func (m *Memory) Balance(_ context.Context, account, asset string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[account][asset], nil
}

func (m *Memory) set(account, asset string, amount uint64) {
	byAsset, ok := m.balances[account]
	if !ok {
		byAsset = make(map[string]uint64)
		m.balances[account] = byAsset
	}
	byAsset[asset] = amount
}
