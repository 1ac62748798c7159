package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/ratebench-backend/internal/data/db"
	"github.com/yungbote/ratebench-backend/internal/observability"
	"github.com/yungbote/ratebench-backend/internal/platform/lease"
	"github.com/yungbote/ratebench-backend/internal/platform/llm"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

type Clients struct {
	Postgres  *db.PostgresService
	DB        *gorm.DB
	Redis     *goredis.Client
	Lease     lease.Lease
	Providers *llm.Registry
	Metrics   *observability.Metrics

	otelShutdown func(context.Context) error
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	shutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.Init(log)
	}

	pg, err := db.NewPostgresService(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init postgres: %w", err)
	}
	if err := db.AutoMigrateAll(pg.DB()); err != nil {
		_ = pg.Close()
		return Clients{}, fmt.Errorf("postgres automigrate: %w", err)
	}
	if err := db.EnsureRatingIndexes(pg.DB()); err != nil {
		_ = pg.Close()
		return Clients{}, err
	}

	// Redis is optional; without it overlapping triggers only collapse in-process.
	var rdb *goredis.Client
	var l lease.Lease = lease.Local{}
	if cfg.RedisAddr != "" {
		rdb, err = lease.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			_ = pg.Close()
			return Clients{}, fmt.Errorf("init redis lease: %w", err)
		}
		l = lease.NewRedisLease(rdb, log)
	}

	return Clients{
		Postgres:     pg,
		DB:           pg.DB(),
		Redis:        rdb,
		Lease:        l,
		Providers:    llm.NewRegistry(cfg.LLM, log),
		Metrics:      metrics,
		otelShutdown: shutdown,
	}, nil
}

func (c *Clients) Close(ctx context.Context) {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Postgres != nil {
		_ = c.Postgres.Close()
	}
	if c.otelShutdown != nil {
		_ = c.otelShutdown(ctx)
	}
}
