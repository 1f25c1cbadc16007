package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/jdholdren/satelit/internal/satelit"
)

const (
	driverLoop     = "loop"
	driverTemporal = "temporal"
)

type config struct {
	// A postgres:// URL, or a sqlite file path prefixed with "sqlite:"
	DatabaseURL         string        `env:"DATABASE_URL, required"`
	DBMaxConnections    int           `env:"DB_MAX_CONNECTIONS, default=10"`
	DBConnectionTimeout time.Duration `env:"DB_CONNECTION_TIMEOUT, default=5s"`

	// The catalog source to sync
	Source string `env:"SOURCE, default=anidb"`

	IndexerURL     string        `env:"INDEXER_URL, required"`
	IndexerTimeout time.Duration `env:"INDEXER_TIMEOUT, default=30s"`
	// text/template overrides of the indexer's URLs
	IndexURLLatest string `env:"INDEX_URL_LATEST"`
	IndexURLFile   string `env:"INDEX_URL_FILE"`

	ImporterURL     string        `env:"IMPORTER_URL, required"`
	ImporterTimeout time.Duration `env:"IMPORTER_TIMEOUT, default=1h"`
	ScraperURL      string        `env:"SCRAPER_URL, required"`
	ScraperTimeout  time.Duration `env:"SCRAPER_TIMEOUT, default=1h"`

	// Pause once there's nothing left to scrape, and after a failed run
	IdleInterval  time.Duration `env:"IDLE_INTERVAL, default=24h"`
	ErrorInterval time.Duration `env:"ERROR_INTERVAL, default=1h"`

	// 0 turns the status server off
	StatusPort int `env:"STATUS_PORT, default=4444"`

	// Either loop or temporal
	Driver           string `env:"DRIVER, default=loop"`
	TemporalHostPort string `env:"TEMPORAL_HOST_PORT, default=localhost:7233"`

	// Which format to use for logging: either text or json
	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`
}

func loadConfig(ctx context.Context, l envconfig.Lookuper) (config, error) {
	var cfg config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return config{}, err
	}

	if cfg.Driver != driverLoop && cfg.Driver != driverTemporal {
		return config{}, fmt.Errorf("unknown driver %q: must be %s or %s", cfg.Driver, driverLoop, driverTemporal)
	}
	if _, err := satelit.ParseSource(cfg.Source); err != nil {
		return config{}, err
	}
	if cfg.DBMaxConnections < 1 {
		return config{}, fmt.Errorf("DB_MAX_CONNECTIONS must be at least 1, got %d", cfg.DBMaxConnections)
	}

	return cfg, nil
}
