// Package config loads run-independent settings from an optional file, the
// HAZIDX_* environment, and defaults. Run selections (state, year,
// geography) are CLI flags, not settings.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all tool settings.
type Config struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
	CacheDir          string        `mapstructure:"cache_dir"`
	LogLevel          string        `mapstructure:"log_level"`
	LogFormat         string        `mapstructure:"log_format"`
	MinCompositeRanks int           `mapstructure:"min_composite_ranks"`
	MetricsAddr       string        `mapstructure:"metrics_addr"`
}

// Load reads configuration. Precedence: env > config file > defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HAZIDX")
	v.AutomaticEnv()

	v.SetDefault("base_url", "https://api.census.gov/data")
	v.SetDefault("api_key", "")
	v.SetDefault("http_timeout", "60s")
	v.SetDefault("cache_dir", "cache")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("min_composite_ranks", 1)
	v.SetDefault("metrics_addr", "")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.BaseURL == "" {
		return nil, errors.New("base_url is required")
	}
	if cfg.HTTPTimeout <= 0 {
		return nil, errors.New("http_timeout must be positive")
	}
	if cfg.MinCompositeRanks < 1 {
		return nil, errors.New("min_composite_ranks must be at least 1")
	}
	return &cfg, nil
}
