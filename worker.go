package vesting

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/stream"
)

// ──────────────────────────────────────────────────
// Automatic Withdrawals
// ──────────────────────────────────────────────────

// autoWithdrawWorker periodically withdraws on behalf of recipients of
// streams with AutomaticWithdrawal set.
func (e *Engine) autoWithdrawWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.autoWithdrawInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return

		case <-ticker.C:
			if _, err := e.SweepAutoWithdrawals(ctx); err != nil {
				e.logger.Error("auto-withdraw sweep failed", "error", err)
			}
		}
	}
}

// SweepAutoWithdrawals runs one pass of the automatic withdrawal worker and
// returns the number of withdrawals made. Failures on individual streams are
// logged and do not stop the pass; a failed stream is deferred by one
// withdrawal period so it does not hold the head of the queue.
func (e *Engine) SweepAutoWithdrawals(ctx context.Context) (int, error) {
	if err := e.requireCustodian("auto-withdraw sweep"); err != nil {
		return 0, err
	}
	start := time.Now()
	now, _ := e.now()

	due, err := e.store.ListDueWithdrawals(ctx, now, e.autoWithdrawBatch)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, s := range due {
		select {
		case <-e.stopChan:
			return count, nil
		default:
		}

		w, err := e.withdraw(ctx, s.ID, nil, nil)
		switch {
		case err == nil:
			count++
			e.logger.Debug("auto-withdrawal",
				"stream_id", s.ID.String(),
				"amount", w.Amount,
			)
		case errors.Is(err, stream.ErrNoFundsAvailable):
		default:
			e.logger.Warn("auto-withdrawal failed",
				"stream_id", s.ID.String(),
				"error", err,
			)
			if derr := e.deferAutoWithdrawal(ctx, s.ID); derr != nil {
				e.logger.Warn("auto-withdrawal deferral failed",
					"stream_id", s.ID.String(),
					"error", derr,
				)
			}
		}
	}

	elapsed := time.Since(start)
	if len(due) > 0 {
		e.plugins.EmitAutoWithdrawSweep(ctx, count, elapsed)
		e.logger.Debug("auto-withdraw sweep",
			"due", len(due),
			"withdrawn", count,
			"elapsed_ms", elapsed.Milliseconds(),
		)
	}
	return count, nil
}

// deferAutoWithdrawal moves a stream's next automatic attempt one period
// out without recording an event.
func (e *Engine) deferAutoWithdrawal(ctx context.Context, streamID id.StreamID) error {
	_, err := e.mutate(ctx, "defer auto-withdrawal", streamID, func(_ context.Context, s *stream.Stream, now int64, _ time.Time, m *mutation) error {
		s.LastMutationTime = now
		m.quiet = true
		return nil
	})
	return err
}
