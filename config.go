package vesting

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store drivers understood by EnvConfig.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// EnvConfig is the process configuration read from VESTING_* environment
// variables.
type EnvConfig struct {
	// Storage. The sqlite, postgres and mongo drivers also hold custody
	// balances; memory holds none.
	StoreDriver string `env:"VESTING_STORE_DRIVER" envDefault:"memory"`
	SQLitePath  string `env:"VESTING_SQLITE_PATH" envDefault:"vesting.db"`
	PostgresURL string `env:"VESTING_POSTGRES_URL"`
	MongoURI    string `env:"VESTING_MONGO_URI"`
	MongoDB     string `env:"VESTING_MONGO_DATABASE" envDefault:"vesting"`

	// Locking; empty uses the in-process locker.
	RedisAddr string `env:"VESTING_REDIS_ADDR"`

	// Event publishing; empty disables it.
	AMQPURL      string `env:"VESTING_AMQP_URL"`
	AMQPExchange string `env:"VESTING_AMQP_EXCHANGE" envDefault:"vesting.events"`

	// Automatic withdrawals
	AutoWithdrawInterval time.Duration `env:"VESTING_AUTO_WITHDRAW_INTERVAL" envDefault:"30s"`
	AutoWithdrawBatch    int           `env:"VESTING_AUTO_WITHDRAW_BATCH" envDefault:"100"`

	// Fees
	PlatformFeeBps       uint16 `env:"VESTING_PLATFORM_FEE_BPS" envDefault:"0"`
	PlatformFeeRecipient string `env:"VESTING_PLATFORM_FEE_RECIPIENT"`
	CapPlatformFee       bool   `env:"VESTING_CAP_PLATFORM_FEE" envDefault:"true"`

	// Observability
	MetricsAddr string `env:"VESTING_METRICS_ADDR" envDefault:":9090"`
	LogLevel    string `env:"VESTING_LOG_LEVEL" envDefault:"info"`
}

// LoadEnvConfig loads configuration from environment variables.
func LoadEnvConfig() (EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return EnvConfig{}, fmt.Errorf("vesting: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c EnvConfig) Validate() error {
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: VESTING_SQLITE_PATH is required", ErrInvalidInput)
		}
	case DriverPostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("%w: VESTING_POSTGRES_URL is required", ErrInvalidInput)
		}
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("%w: VESTING_MONGO_URI is required", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidInput, c.StoreDriver)
	}
	if c.PlatformFeeBps > 0 && c.PlatformFeeRecipient == "" {
		return fmt.Errorf("%w: VESTING_PLATFORM_FEE_RECIPIENT is required", ErrInvalidInput)
	}
	if c.AutoWithdrawInterval < 0 {
		return fmt.Errorf("%w: negative auto-withdraw interval", ErrInvalidInput)
	}
	return nil
}

// Options converts the engine-related settings into engine options.
func (c EnvConfig) Options() []Option {
	opts := []Option{
		WithAutoWithdrawConfig(c.AutoWithdrawInterval, c.AutoWithdrawBatch),
		WithPlatformFeeCap(c.CapPlatformFee),
	}
	if c.PlatformFeeBps > 0 {
		opts = append(opts, WithPlatformFee(c.PlatformFeeBps, c.PlatformFeeRecipient))
	}
	return opts
}
