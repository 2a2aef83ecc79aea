// Package backend opens a store.Store by driver name. It is used by the
// Forge extension and by vestingd to turn configuration into a store.
package backend

import (
	"context"
	"fmt"

	"github.com/xraph/vesting"
	"github.com/xraph/vesting/custody"
	"github.com/xraph/vesting/store"
	"github.com/xraph/vesting/store/memory"
	"github.com/xraph/vesting/store/mongo"
	"github.com/xraph/vesting/store/postgres"
	"github.com/xraph/vesting/store/sqlite"
)

// Config selects and locates a store backend.
type Config struct {
	Driver        string `json:"driver" mapstructure:"driver" yaml:"driver"`
	SQLitePath    string `json:"sqlite_path" mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PostgresURL   string `json:"postgres_url" mapstructure:"postgres_url" yaml:"postgres_url"`
	MongoURI      string `json:"mongo_uri" mapstructure:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase string `json:"mongo_database" mapstructure:"mongo_database" yaml:"mongo_database"`
}

// FromEnv copies the storage settings of cfg.
func FromEnv(cfg vesting.EnvConfig) Config {
	return Config{
		Driver:        cfg.StoreDriver,
		SQLitePath:    cfg.SQLitePath,
		PostgresURL:   cfg.PostgresURL,
		MongoURI:      cfg.MongoURI,
		MongoDatabase: cfg.MongoDB,
	}
}

// Open connects to the configured backend. An empty driver opens the
// memory store.
func Open(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.Driver {
	case "", vesting.DriverMemory:
		return memory.New(), nil

	case vesting.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("backend: open sqlite: %w", err)
		}
		return s, nil

	case vesting.DriverPostgres:
		s, err := postgres.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("backend: connect postgres: %w", err)
		}
		return s, nil

	case vesting.DriverMongo:
		name := cfg.MongoDatabase
		if name == "" {
			name = "vesting"
		}
		s, err := mongo.Connect(ctx, cfg.MongoURI, name)
		if err != nil {
			return nil, fmt.Errorf("backend: connect mongo: %w", err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", vesting.ErrInvalidInput, cfg.Driver)
	}
}

// Custodian returns the durable custodian kept by st. The memory store
// keeps none.
func Custodian(st store.Store) (custody.Custodian, bool) {
	p, ok := st.(custody.Provider)
	if !ok {
		return nil, false
	}
	return p.Custodian(), true
}
