package settings

import (
	"context"
	"fmt"

	"github.com/JakeFAU/wii-build-monitor/internal/config"
)

// Open returns the store selected by cfg.Driver, initialized and seeded.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case "", "bolt":
		store, err = OpenBolt(cfg.Path)
	case "postgres":
		store, err = OpenPostgres(ctx, postgresConfig(cfg))
	case "memory":
		store = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func postgresConfig(cfg config.StoreConfig) PostgresConfig {
	return PostgresConfig{
		DSN:             cfg.DSN,
		Table:           cfg.Table,
		MaxConns:        cfg.MaxConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
	}
}
