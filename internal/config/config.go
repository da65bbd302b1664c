// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the server and the warm-up worker.
type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	AppPort  string `envconfig:"APP_PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL        string        `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns         int32         `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns         int32         `envconfig:"DB_MIN_CONNS" default:"2"`
	DBStatementTimeout time.Duration `envconfig:"DB_STATEMENT_TIMEOUT" default:"30s"`

	// RedisAddr enables the shared report cache tier when set.
	RedisAddr string `envconfig:"REDIS_ADDR"`

	ReportCacheTTL       time.Duration `envconfig:"REPORT_CACHE_TTL" default:"5m"`
	ReportCacheSize      int           `envconfig:"REPORT_CACHE_SIZE" default:"40"`
	ReportPriceScanLimit int           `envconfig:"REPORT_PRICE_SCAN_LIMIT" default:"20000"`
	ReportViewPageSize   int           `envconfig:"REPORT_VIEW_PAGE_SIZE" default:"1000"`
	ReportViewMaxRows    int           `envconfig:"REPORT_VIEW_MAX_ROWS" default:"500000"`

	// WarmupInterval must stay below ReportCacheTTL so the shared tier is
	// refreshed before it expires.
	WarmupInterval time.Duration `envconfig:"WARMUP_INTERVAL" default:"4m"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks sizes and durations.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	positive := func(name string, v int64) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	positive("DB_MAX_CONNS", int64(c.DBMaxConns))
	positive("REPORT_CACHE_SIZE", int64(c.ReportCacheSize))
	positive("REPORT_PRICE_SCAN_LIMIT", int64(c.ReportPriceScanLimit))
	positive("REPORT_VIEW_PAGE_SIZE", int64(c.ReportViewPageSize))
	positive("REPORT_VIEW_MAX_ROWS", int64(c.ReportViewMaxRows))

	if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		errs = append(errs, fmt.Errorf("DB_MIN_CONNS must be within [0, DB_MAX_CONNS], got %d", c.DBMinConns))
	}
	if c.ReportCacheTTL <= 0 {
		errs = append(errs, errors.New("REPORT_CACHE_TTL must be positive"))
	}
	if c.WarmupInterval <= 0 {
		errs = append(errs, errors.New("WARMUP_INTERVAL must be positive"))
	} else if c.ReportCacheTTL > 0 && c.WarmupInterval >= c.ReportCacheTTL {
		errs = append(errs, fmt.Errorf("WARMUP_INTERVAL (%s) must be shorter than REPORT_CACHE_TTL (%s)", c.WarmupInterval, c.ReportCacheTTL))
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true when the application runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}
