package custody

import (
	"context"
	"errors"
	"fmt"
)

// Batch is an ordered list of transfers applied as a unit. If any transfer
// fails, the ones already applied are reversed in the opposite order.
type Batch struct {
	transfers []Transfer
	applied   int
}

// Add appends a transfer. Zero-amount transfers are dropped.
func (b *Batch) Add(t Transfer) {
	if t.Amount == 0 {
		return
	}
	b.transfers = append(b.transfers, t)
}

// Transfers returns the queued transfers.
func (b *Batch) Transfers() []Transfer { return b.transfers }

// Len returns the number of queued transfers.
func (b *Batch) Len() int { return len(b.transfers) }

// Execute applies every transfer in order. On failure it reverts what was
// applied and returns an error wrapping ErrTransferFailed.
func (b *Batch) Execute(ctx context.Context, c Custodian) error {
	for _, t := range b.transfers[b.applied:] {
		if err := t.Validate(); err != nil {
			return errors.Join(fmt.Errorf("%w: %s: %w", ErrTransferFailed, t, err), b.Revert(ctx, c))
		}
		if err := c.Transfer(ctx, t); err != nil {
			return errors.Join(fmt.Errorf("%w: %s: %w", ErrTransferFailed, t, err), b.Revert(ctx, c))
		}
		b.applied++
	}
	return nil
}

// Revert reverses every applied transfer, newest first. It keeps going past
// failures and returns them joined.
func (b *Batch) Revert(ctx context.Context, c Custodian) error {
	var errs []error
	for i := b.applied - 1; i >= 0; i-- {
		r := b.transfers[i].Reverse()
		if err := c.Transfer(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("custody: revert %s: %w", r, err))
		}
	}
	b.applied = 0
	return errors.Join(errs...)
}
