// Package config содержит логику чтения конфигурации сервиса согласования начислений.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress       = "localhost:8080"
	defaultReconcileWorkers = 8
	defaultCacheTTL         = time.Hour
)

// Config содержит параметры конфигурации сервиса согласования начислений.
type Config struct {
	RunAddress               string        `env:"RUN_ADDRESS"`
	DatabaseURI              string        `env:"DATABASE_URI"`
	ProcurementSystemAddress string        `env:"PROCUREMENT_SYSTEM_ADDRESS"`
	RedisAddress             string        `env:"REDIS_ADDRESS"`
	IdentitySecret           string        `env:"IDENTITY_SECRET"`
	ReconcileWorkers         int           `env:"RECONCILE_WORKERS"`
	InternalOrderCacheTTL    time.Duration `env:"INTERNAL_ORDER_CACHE_TTL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envCfg := *cfg

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.ProcurementSystemAddress, "r", "", "procurement system address")
	flag.StringVar(&cfg.RedisAddress, "c", "", "redis address for internal order cache")
	flag.StringVar(&cfg.IdentitySecret, "s", "", "secret for identity header signature")
	flag.IntVar(&cfg.ReconcileWorkers, "w", defaultReconcileWorkers, "parallel item writes during reconciliation")
	flag.DurationVar(&cfg.InternalOrderCacheTTL, "t", defaultCacheTTL, "internal order cache TTL")

	flag.Parse()

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.ProcurementSystemAddress != "" {
		cfg.ProcurementSystemAddress = envCfg.ProcurementSystemAddress
	}
	if envCfg.RedisAddress != "" {
		cfg.RedisAddress = envCfg.RedisAddress
	}
	if envCfg.IdentitySecret != "" {
		cfg.IdentitySecret = envCfg.IdentitySecret
	}
	if envCfg.ReconcileWorkers != 0 {
		cfg.ReconcileWorkers = envCfg.ReconcileWorkers
	}
	if envCfg.InternalOrderCacheTTL != 0 {
		cfg.InternalOrderCacheTTL = envCfg.InternalOrderCacheTTL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.ReconcileWorkers <= 0 {
		return nil, fmt.Errorf("reconcile workers must be positive, got %d", cfg.ReconcileWorkers)
	}
	if cfg.InternalOrderCacheTTL <= 0 {
		cfg.InternalOrderCacheTTL = defaultCacheTTL
	}

	return cfg, nil
}
