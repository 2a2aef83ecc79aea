// Package custody is the boundary through which the engine moves value
// between custodial accounts. The stream core never moves value itself; it
// returns amounts and the engine turns them into transfers here.
package custody

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInsufficientBalance is returned when a source account cannot cover a transfer.
	ErrInsufficientBalance = errors.New("custody: insufficient balance")
	// ErrTransferFailed wraps any failure to apply a transfer.
	ErrTransferFailed = errors.New("custody: transfer failed")
	// ErrInvalidTransfer is returned for malformed transfer requests.
	ErrInvalidTransfer = errors.New("custody: invalid transfer")
)

// Custodian moves value between accounts of a single asset.
// Implementations must make each Transfer atomic.
type Custodian interface {
	Transfer(ctx context.Context, t Transfer) error
	Balance(ctx context.Context, account, asset string) (uint64, error)
}

// Funder credits an account with value entering custody from outside.
type Funder interface {
	Fund(ctx context.Context, account, asset string, amount uint64) error
}

// Provider is implemented by stores that keep custody balances durably
// alongside streams.
type Provider interface {
	Custodian() Custodian
}

// Transfer is a single posting: Amount of Asset moves From -> To.
type Transfer struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
	// Memo is a free-form tag, typically the stream event type.
	Memo string `json:"memo,omitempty"`
}

// Validate checks the shape of t.
func (t Transfer) Validate() error {
	switch {
	case t.From == "" || t.To == "":
		return fmt.Errorf("%w: missing account", ErrInvalidTransfer)
	case t.From == t.To:
		return fmt.Errorf("%w: %s to itself", ErrInvalidTransfer, t.From)
	case t.Asset == "":
		return fmt.Errorf("%w: missing asset", ErrInvalidTransfer)
	}
	return nil
}

// Reverse returns the compensating transfer.
func (t Transfer) Reverse() Transfer {
	return Transfer{From: t.To, To: t.From, Asset: t.Asset, Amount: t.Amount, Memo: "revert:" + t.Memo}
}

func (t Transfer) String() string {
	return fmt.Sprintf("%d %s %s -> %s", t.Amount, t.Asset, t.From, t.To)
}
