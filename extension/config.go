package extension

import (
	"time"

	"github.com/xraph/vesting/store/backend"
)

// Config holds the Vesting extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.vesting" or "vesting" keys).
type Config struct {
	// DisableMigrate prevents auto-migration and the auto-withdraw worker
	// on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Store selects the backend when no store was given with WithStore
	// (default: memory).
	Store backend.Config `json:"store" mapstructure:"store" yaml:"store"`

	// AutoWithdrawInterval is how often due automatic withdrawals are
	// swept (default: 30s).
	AutoWithdrawInterval time.Duration `json:"auto_withdraw_interval" mapstructure:"auto_withdraw_interval" yaml:"auto_withdraw_interval"`

	// AutoWithdrawBatch caps the streams handled per sweep (default: 100).
	AutoWithdrawBatch int `json:"auto_withdraw_batch" mapstructure:"auto_withdraw_batch" yaml:"auto_withdraw_batch"`

	// PlatformFeeBps is applied to streams created without a platform fee.
	PlatformFeeBps uint16 `json:"platform_fee_bps" mapstructure:"platform_fee_bps" yaml:"platform_fee_bps"`

	// PlatformFeeRecipient receives the platform fee.
	PlatformFeeRecipient string `json:"platform_fee_recipient" mapstructure:"platform_fee_recipient" yaml:"platform_fee_recipient"`

	// CapPlatformFee rejects platform fees above fee.MaxPlatformBps.
	CapPlatformFee bool `json:"cap_platform_fee" mapstructure:"cap_platform_fee" yaml:"cap_platform_fee"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		AutoWithdrawInterval: 30 * time.Second,
		AutoWithdrawBatch:    100,
	}
}
