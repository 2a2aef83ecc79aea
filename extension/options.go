package extension

import (
	"time"

	"github.com/xraph/vesting"
	"github.com/xraph/vesting/plugin"
	"github.com/xraph/vesting/store"
	"github.com/xraph/vesting/store/backend"
)

// Option configures the Vesting Forge extension.
type Option func(*Extension)

// WithStore sets the store for the vesting engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithStoreConfig selects the backend opened on Register.
func WithStoreConfig(cfg backend.Config) Option {
	return func(e *Extension) { e.config.Store = cfg }
}

// WithEngineOption passes a vesting.Option through to the underlying engine.
func WithEngineOption(opt vesting.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a vesting plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, vesting.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithAutoWithdrawInterval sets how often automatic withdrawals are swept.
func WithAutoWithdrawInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.AutoWithdrawInterval = d }
}

// WithAutoWithdrawBatch sets the number of streams handled per sweep.
func WithAutoWithdrawBatch(size int) Option {
	return func(e *Extension) { e.config.AutoWithdrawBatch = size }
}

// WithPlatformFee sets the default platform fee.
func WithPlatformFee(bps uint16, recipient string) Option {
	return func(e *Extension) {
		e.config.PlatformFeeBps = bps
		e.config.PlatformFeeRecipient = recipient
	}
}

// WithPlatformFeeCap enables the platform fee ceiling.
func WithPlatformFeeCap() Option {
	return func(e *Extension) { e.config.CapPlatformFee = true }
}
