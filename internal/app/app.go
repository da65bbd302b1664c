// Package app wires the report service from configuration. Both the HTTP
// server and the warm-up worker build their dependencies here.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"prorab/internal/config"
	corecache "prorab/internal/core/cache"
	"prorab/internal/domain/issues"
	rediscache "prorab/internal/infrastructure/cache"
	"prorab/internal/infrastructure/observability"
	"prorab/internal/infrastructure/storage/postgres"
	"prorab/internal/infrastructure/storage/postgres/issue_repo"
	"prorab/pkg/logger"
)

// App holds the long-lived dependencies of a process.
type App struct {
	Config  *config.Config
	Pool    *postgres.Pool
	TxM     *postgres.TxManager
	Redis   *redis.Client
	Metrics *observability.Metrics
	Reports *issues.Service
}

// New connects to PostgreSQL (and Redis when configured) and builds the
// report service. Redis being unreachable only disables the shared tier.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	txOpts := postgres.DefaultTxOptions()
	txOpts.StatementTimeout = cfg.DBStatementTimeout
	txm := postgres.NewTxManager(pool, txOpts)

	a := &App{
		Config:  cfg,
		Pool:    pool,
		TxM:     txm,
		Metrics: observability.NewMetrics(),
	}
	a.Metrics.ObservePool(func() postgres.PoolStats { return postgres.GetPoolStats(pool.Pool) })

	cacheOpts := []corecache.Option{corecache.WithMetrics(a.Metrics)}
	if cfg.RedisAddr != "" {
		client, err := rediscache.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn(ctx, "shared report cache disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			a.Redis = client
			cacheOpts = append(cacheOpts, corecache.WithShared(rediscache.NewRedisStore(client)))
			logger.Info(ctx, "shared report cache enabled", "addr", cfg.RedisAddr)
		}
	}

	caches := issues.NewCaches(corecache.Config{
		TTL:        cfg.ReportCacheTTL,
		MaxEntries: cfg.ReportCacheSize,
	}, cacheOpts...)

	a.Reports = issues.NewService(issue_repo.NewIssueRepo(txm), caches, issues.Config{
		Limits: issues.Limits{
			PageSize: cfg.ReportViewPageSize,
			MaxRows:  cfg.ReportViewMaxRows,
			MaxPages: pageCap(cfg.ReportViewMaxRows, cfg.ReportViewPageSize),
		},
		PriceScanLimit: cfg.ReportPriceScanLimit,
	}, a.Metrics)

	return a, nil
}

// Close releases connections.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	a.Pool.Close()
}

func pageCap(maxRows, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return (maxRows + pageSize - 1) / pageSize
}
