// Package factory opens the conversation store selected by configuration.
package factory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/menukit/core/config"
	"github.com/m3rciful/menukit/core/database"
	"github.com/m3rciful/menukit/core/logger"
	"github.com/m3rciful/menukit/store"
	"github.com/m3rciful/menukit/store/memory"
	"github.com/m3rciful/menukit/store/postgres"
	"github.com/m3rciful/menukit/store/redisstore"
)

// Open builds the store named by cfg.Driver. The returned closer releases
// driver resources and is a no-op for the memory driver.
func Open(ctx context.Context, cfg coreconfig.StorageConfig) (store.Store, func() error, error) {
	switch cfg.Driver {
	case coreconfig.StoreMemory, "":
		logOpened(ctx, coreconfig.StoreMemory)
		return memory.New(), func() error { return nil }, nil

	case coreconfig.StoreRedis:
		var opts []redisstore.Option
		if cfg.Redis.KeyPrefix != "" {
			opts = append(opts, redisstore.WithPrefix(cfg.Redis.KeyPrefix))
		}
		if cfg.Redis.TTLSeconds > 0 {
			opts = append(opts, redisstore.WithTTL(time.Duration(cfg.Redis.TTLSeconds)*time.Second))
		}
		s, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, opts...)
		if err != nil {
			return nil, nil, err
		}
		logOpened(ctx, coreconfig.StoreRedis, slog.String("addr", cfg.Redis.Addr))
		return s, s.Close, nil

	case coreconfig.StorePostgres:
		s, err := postgres.Open(database.FromStorage(cfg.Postgres))
		if err != nil {
			return nil, nil, err
		}
		logOpened(ctx, coreconfig.StorePostgres, slog.String("host", cfg.Postgres.Host))
		return s, s.Close, nil

	default:
		return nil, nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

func logOpened(ctx context.Context, driver string, attrs ...slog.Attr) {
	attrs = append([]slog.Attr{slog.String("driver", driver)}, attrs...)
	logger.LogEvent(ctx, logger.Store, slog.LevelInfo, "store.open", attrs...)
}
