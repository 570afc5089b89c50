package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"RADAR_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"RADAR_DB_MAX_CONNS" default:"8"`

	ServerHost            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	ServerPort            int           `envconfig:"SERVER_PORT" default:"8090"`
	ServerReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	ServerWriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"120s"`
	ServerShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`

	CronSecret string `envconfig:"CRON_SECRET" default:""`

	NoveltyWeight float64 `envconfig:"NOVELTY_WEIGHT" default:"0.5"`
	QualityWeight float64 `envconfig:"QUALITY_WEIGHT" default:"0.35"`
	RecencyWeight float64 `envconfig:"RECENCY_WEIGHT" default:"0.15"`

	SimhashThreshold int `envconfig:"SIMHASH_THRESHOLD" default:"5"`
	ContentMaxLength int `envconfig:"CONTENT_MAX_LENGTH" default:"10000"`
	MaxItemsPerRun   int `envconfig:"MAX_ITEMS_PER_RUN" default:"50"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("RADAR_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("RADAR_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("RADAR_DB_MIN_CONNS (%d) cannot exceed RADAR_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT must be a valid port")
	}

	for name, weight := range map[string]float64{
		"NOVELTY_WEIGHT": c.NoveltyWeight,
		"QUALITY_WEIGHT": c.QualityWeight,
		"RECENCY_WEIGHT": c.RecencyWeight,
	} {
		if weight < 0 || weight > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	if sum := c.NoveltyWeight + c.QualityWeight + c.RecencyWeight; math.Abs(sum-1) > 0.001 {
		return fmt.Errorf("score weights must sum to 1, got %.3f", sum)
	}

	if c.SimhashThreshold < 0 || c.SimhashThreshold > 64 {
		return fmt.Errorf("SIMHASH_THRESHOLD must be between 0 and 64")
	}
	if c.ContentMaxLength < 1 {
		return fmt.Errorf("CONTENT_MAX_LENGTH must be >= 1")
	}
	if c.MaxItemsPerRun < 1 {
		return fmt.Errorf("MAX_ITEMS_PER_RUN must be >= 1")
	}
	return nil
}
