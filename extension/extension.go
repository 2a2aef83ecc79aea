// Package extension provides the Forge extension adapter for Vesting.
//
// It implements the forge.Extension interface to integrate Vesting
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.vesting" or "vesting" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/vesting"
	"github.com/xraph/vesting/store"
	"github.com/xraph/vesting/store/backend"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "vesting"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Token streaming and vesting engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Vesting as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *vesting.Engine
	store      store.Store
	engineOpts []vesting.Option
}

// New creates a new Vesting Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Vesting engine.
// This is nil until Register is called.
func (e *Extension) Engine() *vesting.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// opens the store, initializes the engine, and registers it in the DI
// container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := backend.Open(context.Background(), e.config.Store)
		if err != nil {
			return fmt.Errorf("vesting: open store: %w", err)
		}
		e.store = s
	}

	e.engine = vesting.New(e.store, e.buildEngineOpts()...)

	return vessel.Provide(fapp.Container(), func() (*vesting.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("vesting: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("vesting: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs vesting.Option values from the resolved config.
// A store that keeps balances supplies the custodian. Pass-through options
// come last and win.
func (e *Extension) buildEngineOpts() []vesting.Option {
	opts := make([]vesting.Option, 0, len(e.engineOpts)+4)

	if c, ok := backend.Custodian(e.store); ok {
		opts = append(opts, vesting.WithCustodian(c))
	}
	opts = append(opts,
		vesting.WithAutoWithdrawConfig(e.config.AutoWithdrawInterval, e.config.AutoWithdrawBatch),
		vesting.WithPlatformFeeCap(e.config.CapPlatformFee),
	)
	if e.config.PlatformFeeBps > 0 {
		opts = append(opts, vesting.WithPlatformFee(e.config.PlatformFeeBps, e.config.PlatformFeeRecipient))
	}

	return append(opts, e.engineOpts...)
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("vesting: configuration is required but not found in config files; " +
				"ensure 'extensions.vesting' or 'vesting' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("vesting: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("store_driver", e.config.Store.Driver),
		forge.F("auto_withdraw_interval", e.config.AutoWithdrawInterval),
		forge.F("auto_withdraw_batch", e.config.AutoWithdrawBatch),
		forge.F("platform_fee_bps", e.config.PlatformFeeBps),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.vesting", "vesting"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("vesting: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("vesting: loaded config from file",
			forge.F("key", key),
		)
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.AutoWithdrawInterval == 0 {
		cfg.AutoWithdrawInterval = defaults.AutoWithdrawInterval
	}
	if cfg.AutoWithdrawBatch == 0 {
		cfg.AutoWithdrawBatch = defaults.AutoWithdrawBatch
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = vesting.DriverMemory
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.CapPlatformFee {
		yamlConfig.CapPlatformFee = true
	}

	if yamlConfig.Store.Driver == "" {
		yamlConfig.Store = programmaticConfig.Store
	}
	if yamlConfig.PlatformFeeBps == 0 && programmaticConfig.PlatformFeeBps != 0 {
		yamlConfig.PlatformFeeBps = programmaticConfig.PlatformFeeBps
		yamlConfig.PlatformFeeRecipient = programmaticConfig.PlatformFeeRecipient
	}
	if yamlConfig.AutoWithdrawInterval == 0 && programmaticConfig.AutoWithdrawInterval != 0 {
		yamlConfig.AutoWithdrawInterval = programmaticConfig.AutoWithdrawInterval
	}
	if yamlConfig.AutoWithdrawBatch == 0 && programmaticConfig.AutoWithdrawBatch != 0 {
		yamlConfig.AutoWithdrawBatch = programmaticConfig.AutoWithdrawBatch
	}

	return mergeWithDefaults(yamlConfig)
}
