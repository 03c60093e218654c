package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

// Config is the settlement daemon's environment-driven configuration.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`
	MetricsPort int    `env:"METRICS_PORT" envDefault:"9090"`

	// Optional feed of operations applied at startup, one JSON
	// instruction per line. Empty means no feed.
	InstructionsPath string `env:"INSTRUCTIONS_PATH"`

	SettlementIntervalMS  int `env:"SETTLEMENT_INTERVAL_MS" envDefault:"2000"`
	SettlementBatchSize   int `env:"SETTLEMENT_BATCH_SIZE" envDefault:"50"`
	SettlementMaxAttempts int `env:"SETTLEMENT_MAX_ATTEMPTS" envDefault:"3"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// SettlementInterval returns the worker tick interval as a duration.
func (c *Config) SettlementInterval() time.Duration {
	return time.Duration(c.SettlementIntervalMS) * time.Millisecond
}

func (c *Config) DBConnMaxLifetime() time.Duration {
	return time.Duration(c.DBConnMaxLifetimeS) * time.Second
}

func (c *Config) DBConnMaxIdleTime() time.Duration {
	return time.Duration(c.DBConnMaxIdleTimeS) * time.Second
}
