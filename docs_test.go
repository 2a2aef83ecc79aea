package vesting_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/vesting"
	"github.com/xraph/vesting/custody"
	"github.com/xraph/vesting/store/memory"
	"github.com/xraph/vesting/types"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from README
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		// Fund the sender in an in-memory custodian
		cust := custody.NewMemory()
		if err := cust.Deposit("alice", "USDC", 1_000_000); err != nil {
			t.Fatal(err)
		}

		// Initialize Vesting
		engine := vesting.New(store,
			vesting.WithLogger(slog.Default()),
			vesting.WithCustodian(cust),
			vesting.WithAutoWithdrawConfig(time.Minute, 100),
			vesting.WithPlatformFee(25, "treasury"),
		)

		// Start the engine
		ctx := context.Background()
		if err := engine.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer engine.Stop()

		// Stream 1,000,000 units to bob over a year, with a quarter-year cliff
		start := time.Now().Unix()
		cliff := start + 90*24*3600
		s, err := engine.CreateStream(ctx, vesting.CreateParams{
			Sender:          "alice",
			Recipient:       "bob",
			Asset:           "USDC",
			DepositedAmount: 1_000_000,
			StartTime:       start,
			EndTime:         start + 365*24*3600,
			CliffTime:       &cliff,
			CliffAmount:     250_000,
			Policy:          vesting.Cliff,
			Permissions:     vesting.DefaultPermissions(),
		})
		if err != nil {
			t.Fatal(err)
		}

		// Check how much has vested
		p, err := engine.Progress(ctx, s.ID)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("Stream %s is %d bps vested\n", s.ID, p.Bps)

		// Nothing is withdrawable before the cliff
		if _, err := engine.Withdraw(ctx, s.ID, "bob", nil); err != nil {
			log.Printf("Withdraw: %v\n", err)
		}

		// Cancel and settle
		st, err := engine.Cancel(ctx, s.ID, "alice")
		if err != nil {
			t.Fatal(err)
		}

		log.Printf("Sender refunded %s\n", vesting.FormatAmount(st.SenderDue, 6))
	})

	// Test amount helper examples
	t.Run("AmountExamples", func(t *testing.T) {
		// Fees in basis points, floored
		_ = types.ApplyBps(10_000, 25) // 25

		// 256-bit intermediate products
		v, err := types.MulDiv(1<<63, 4, 8) // 1<<62
		if err != nil {
			t.Fatal(err)
		}
		_ = v

		// Checked arithmetic
		if _, err := types.CheckedAdd(^uint64(0), 1); err == nil {
			t.Fatal("expected overflow")
		}

		// Formatting
		_ = types.FormatAmount(1_500_000, 6) // "1.500000"
	})
}
