package app

import (
	"context"
	"fmt"

	"github.com/yungbote/bulkflow/internal/config"
	"github.com/yungbote/bulkflow/internal/data/statestore"
	"github.com/yungbote/bulkflow/internal/observability"
	"github.com/yungbote/bulkflow/internal/platform/logger"
)

// wireStore builds and initializes the bulk transaction store for the
// configured backend.
func wireStore(ctx context.Context, log *logger.Logger, cfg *config.Config, clients Clients, metrics *observability.Metrics) (statestore.Repository, error) {
	log.Info("Wiring bulk transaction store...", "backend", cfg.Store.Backend)
	var (
		store statestore.Repository
		err   error
	)
	switch cfg.Store.Backend {
	case config.StoreRedis:
		store, err = statestore.NewRedisStore(log, clients.Redis, cfg.Store.KeyPrefix)
	case config.StorePostgres, config.StoreSQLite:
		store, err = statestore.NewGormStore(log, clients.DB)
		if err == nil {
			if sqlDB, dbErr := clients.DB.DB(); dbErr == nil {
				if regErr := metrics.RegisterDB(sqlDB, cfg.Store.Backend); regErr != nil {
					log.Warn("db stats collector not registered", "error", regErr)
				}
			}
		}
	case config.StoreMemory:
		store = statestore.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s store: %w", cfg.Store.Backend, err)
	}
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init %s store: %w", cfg.Store.Backend, err)
	}
	return store, nil
}

// OpenStore connects only the bulk transaction store, for tools that inspect
// or clean up records without running any role.
func OpenStore(ctx context.Context, log *logger.Logger, cfg *config.Config) (statestore.Repository, func(), error) {
	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		return nil, nil, err
	}
	store, err := wireStore(ctx, log, cfg, clients, nil)
	if err != nil {
		clients.Close(log)
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			log.Warn("store close failed", "error", err)
		}
		clients.Close(log)
	}, nil
}
