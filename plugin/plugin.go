// Package plugin provides an extensible plugin system for Vesting.
// Plugins can hook into stream lifecycle events to extend functionality.
// Hooks run after the change is persisted; a failing hook is logged and
// never rolls the change back.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/vesting/event"
	"github.com/xraph/vesting/policy"
	"github.com/xraph/vesting/stream"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. engine is the *vesting.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Stream lifecycle hooks
// ──────────────────────────────────────────────────

// OnStreamCreated is called when a new stream is created and funded.
type OnStreamCreated interface {
	Plugin
	OnStreamCreated(ctx context.Context, s *stream.Stream) error
}

// OnStreamWithdrawn is called after a withdrawal.
type OnStreamWithdrawn interface {
	Plugin
	OnStreamWithdrawn(ctx context.Context, s *stream.Stream, w stream.Withdrawal) error
}

// OnStreamCancelled is called after a cancellation has been settled.
type OnStreamCancelled interface {
	Plugin
	OnStreamCancelled(ctx context.Context, s *stream.Stream, st stream.Settlement) error
}

// OnStreamPaused is called when a stream is paused.
type OnStreamPaused interface {
	Plugin
	OnStreamPaused(ctx context.Context, s *stream.Stream) error
}

// OnStreamResumed is called when a paused stream is resumed.
type OnStreamResumed interface {
	Plugin
	OnStreamResumed(ctx context.Context, s *stream.Stream) error
}

// OnStreamTransferred is called when the recipient changes.
type OnStreamTransferred interface {
	Plugin
	OnStreamTransferred(ctx context.Context, s *stream.Stream, oldRecipient stream.Identity) error
}

// OnStreamToppedUp is called after a top-up of amount.
type OnStreamToppedUp interface {
	Plugin
	OnStreamToppedUp(ctx context.Context, s *stream.Stream, amount uint64) error
}

// OnStreamCompleted is called when the full deposit has been withdrawn.
type OnStreamCompleted interface {
	Plugin
	OnStreamCompleted(ctx context.Context, s *stream.Stream) error
}

// ──────────────────────────────────────────────────
// Policy hooks
// ──────────────────────────────────────────────────

// OnPolicyFallback is called when a stream's policy could not be evaluated
// as declared and a fallback curve was used instead.
type OnPolicyFallback interface {
	Plugin
	OnPolicyFallback(ctx context.Context, s *stream.Stream, declared, used policy.Kind) error
}

// ──────────────────────────────────────────────────
// Event hooks
// ──────────────────────────────────────────────────

// OnEventRecorded is called for every persisted lifecycle event.
type OnEventRecorded interface {
	Plugin
	OnEventRecorded(ctx context.Context, e *event.Event) error
}

// ──────────────────────────────────────────────────
// Worker hooks
// ──────────────────────────────────────────────────

// OnAutoWithdrawSweep is called after each automatic-withdrawal sweep.
type OnAutoWithdrawSweep interface {
	Plugin
	OnAutoWithdrawSweep(ctx context.Context, count int, elapsed time.Duration) error
}
