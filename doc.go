// Package vesting provides a composable token-streaming and vesting ledger
// for Go applications.
//
// A stream escrows a sender's deposit and releases it to a recipient over
// time according to a vesting policy. Vesting is designed as a library: the
// engine runs inside your process against the store, custodian and locker
// you give it. It provides:
//
//   - Linear, cliff, step and custom unlock schedules with exact integer math
//   - Platform and partner fees taken from every payout
//   - Pause, resume, recipient transfer, top-up and cancellation with settlement
//   - Automatic withdrawals on a fixed cadence
//   - An append-only event log stored atomically with every change
//   - Plugin hooks for audit trails, metrics and event publishing
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/vesting"
//	    "github.com/xraph/vesting/store/postgres"
//	)
//
//	store, err := postgres.Connect(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine := vesting.New(store, vesting.WithCustodian(custodian))
//
//	// Start migrates the store and begins the auto-withdraw worker
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Core Concepts
//
// A stream is created from CreateParams. The deposit moves from the sender
// into the stream's custody account:
//
//	s, err := engine.CreateStream(ctx, vesting.CreateParams{
//	    Sender:          "alice",
//	    Recipient:       "bob",
//	    Asset:           "USDC",
//	    DepositedAmount: 1_000_000,
//	    StartTime:       start,
//	    EndTime:         start + 365*24*3600,
//	    Policy:          vesting.Linear,
//	    Permissions:     vesting.DefaultPermissions(),
//	})
//
// The recipient withdraws what has vested. Fees are paid out of the amount
// withdrawn:
//
//	w, err := engine.Withdraw(ctx, s.ID, "bob", nil)
//
// Cancelling settles the stream: the recipient gets what was earned and not
// yet withdrawn, the sender gets the rest:
//
//	st, err := engine.Cancel(ctx, s.ID, "alice")
//
// # Amounts and Time
//
// Amounts are uint64 in the asset's smallest unit. Intermediate products are
// widened to 256 bits, results are floored, and every addition is checked.
// Time is unix seconds taken from the engine clock; the stream package
// itself never reads a clock.
//
// # Concurrency
//
// Operations on one stream are serialized by a lock.Locker held across
// load, custody transfers and persistence. Use lock/redislock when more than
// one process shares a store.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	strm_01h2xcejqtf2nbrexx3vqjhp41  // Stream ID
//	sevt_01h455vb4pex5vsknk084sn02q  // Stream event ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package vesting
