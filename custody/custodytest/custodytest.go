// Package custodytest is a conformance suite run against every durable
// custody.Custodian.
package custodytest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/vesting/custody"
)

const asset = "USDC"

// Custodian is a custodian that can also be funded.
type Custodian interface {
	custody.Custodian
	custody.Funder
}

// Factory returns an empty custodian.
type Factory func(t *testing.T) Custodian

// Run executes the suite.
func Run(t *testing.T, newCustodian Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, c Custodian)
	}{
		{"UnknownAccountIsEmpty", testUnknownAccount},
		{"FundAndTransfer", testFundAndTransfer},
		{"InsufficientBalance", testInsufficientBalance},
		{"InvalidTransfer", testInvalidTransfer},
		{"AssetsAreSeparate", testAssetsAreSeparate},
		{"FundOverflow", testFundOverflow},
		{"BatchRevert", testBatchRevert},
		{"ConcurrentTransfersConserve", testConcurrentTransfers},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newCustodian(t))
		})
	}
}

func balance(t *testing.T, c Custodian, account string) uint64 {
	t.Helper()
	b, err := c.Balance(context.Background(), account, asset)
	require.NoError(t, err)
	return b
}

func testUnknownAccount(t *testing.T, c Custodian) {
	assert.Zero(t, balance(t, c, "nobody"))
}

func testFundAndTransfer(t *testing.T, c Custodian) {
	ctx := context.Background()
	require.NoError(t, c.Fund(ctx, "alice", asset, 100))
	require.NoError(t, c.Fund(ctx, "alice", asset, 50))

	require.NoError(t, c.Transfer(ctx, custody.Transfer{From: "alice", To: "escrow:1", Asset: asset, Amount: 120}))
	assert.Equal(t, uint64(30), balance(t, c, "alice"))
	assert.Equal(t, uint64(120), balance(t, c, "escrow:1"))

	require.NoError(t, c.Transfer(ctx, custody.Transfer{From: "escrow:1", To: "alice", Asset: asset, Amount: 120}))
	assert.Equal(t, uint64(150), balance(t, c, "alice"))
	assert.Zero(t, balance(t, c, "escrow:1"))
}

func testInsufficientBalance(t *testing.T, c Custodian) {
	ctx := context.Background()
	require.NoError(t, c.Fund(ctx, "alice", asset, 10))

	err := c.Transfer(ctx, custody.Transfer{From: "alice", To: "bob", Asset: asset, Amount: 11})
	assert.ErrorIs(t, err, custody.ErrInsufficientBalance)
	assert.Equal(t, uint64(10), balance(t, c, "alice"))
	assert.Zero(t, balance(t, c, "bob"))
}

func testInvalidTransfer(t *testing.T, c Custodian) {
	err := c.Transfer(context.Background(), custody.Transfer{From: "alice", To: "alice", Asset: asset, Amount: 1})
	assert.ErrorIs(t, err, custody.ErrInvalidTransfer)
}

func testAssetsAreSeparate(t *testing.T, c Custodian) {
	ctx := context.Background()
	require.NoError(t, c.Fund(ctx, "alice", "EURC", 100))

	assert.Zero(t, balance(t, c, "alice"))
	err := c.Transfer(ctx, custody.Transfer{From: "alice", To: "bob", Asset: asset, Amount: 1})
	assert.ErrorIs(t, err, custody.ErrInsufficientBalance)
}

func testFundOverflow(t *testing.T, c Custodian) {
	ctx := context.Background()
	require.NoError(t, c.Fund(ctx, "alice", asset, ^uint64(0)))
	assert.Error(t, c.Fund(ctx, "alice", asset, 1))
	assert.Equal(t, ^uint64(0), balance(t, c, "alice"))
}

func testBatchRevert(t *testing.T, c Custodian) {
	ctx := context.Background()
	require.NoError(t, c.Fund(ctx, "escrow:1", asset, 100))

	var b custody.Batch
	b.Add(custody.Transfer{From: "escrow:1", To: "bob", Asset: asset, Amount: 70})
	b.Add(custody.Transfer{From: "escrow:1", To: "alice", Asset: asset, Amount: 31})

	err := b.Execute(ctx, c)
	assert.ErrorIs(t, err, custody.ErrTransferFailed)
	assert.Equal(t, uint64(100), balance(t, c, "escrow:1"))
	assert.Zero(t, balance(t, c, "bob"))
}

func testConcurrentTransfers(t *testing.T, c Custodian) {
	ctx := context.Background()
	require.NoError(t, c.Fund(ctx, "alice", asset, 50))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Transfer(ctx, custody.Transfer{From: "alice", To: "bob", Asset: asset, Amount: 10}); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, ok, 5)
	assert.Equal(t, uint64(ok*10), balance(t, c, "bob"))
	assert.Equal(t, uint64(50-ok*10), balance(t, c, "alice"))
}
