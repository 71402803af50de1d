package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/bulkflow/internal/clients/redis"
	"github.com/yungbote/bulkflow/internal/config"
	"github.com/yungbote/bulkflow/internal/data/db"
	"github.com/yungbote/bulkflow/internal/platform/logger"
)

// Clients are the external connections shared by the store, the bus and the
// reply channels. Either may be nil when no backend needs it.
type Clients struct {
	Redis *goredis.Client
	DB    *gorm.DB
}

func wireClients(ctx context.Context, log *logger.Logger, cfg *config.Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	if cfg.UsesRedis() {
		rdb, err := redis.NewClient(ctx, log, cfg.Redis)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		out.Redis = rdb
	}

	switch cfg.Store.Backend {
	case config.StorePostgres, config.StoreSQLite:
		gdb, err := db.Open(log, cfg.Store.Backend, cfg.Store.DSN)
		if err != nil {
			out.Close(log)
			return Clients{}, fmt.Errorf("init %s: %w", cfg.Store.Backend, err)
		}
		out.DB = gdb
	}
	return out, nil
}

func (c Clients) Close(log *logger.Logger) {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Warn("db close failed", "error", err)
			}
		}
	}
}
