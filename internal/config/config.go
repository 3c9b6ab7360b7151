// Package config loads daemon configuration from an optional YAML file
// with environment-variable overrides (DUKKAN_ prefix).
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	// Remote is the record-store endpoint (PostgREST-style base URL).
	Remote RemoteConfig `yaml:"remote" envPrefix:"REMOTE_"`
	// Forecast is the hosted text-generation endpoint.
	Forecast ForecastConfig `yaml:"forecast" envPrefix:"FORECAST_"`

	// DBPath is the SQLite file for snapshots and the offline queue.
	DBPath string `yaml:"db_path" env:"DB_PATH"`
	// ListenAddr is the local control-surface address.
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`
	// Bucket is the binary-asset bucket name.
	Bucket string `yaml:"bucket" env:"BUCKET"`

	// CacheTTL is the freshness window for in-process reads.
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	// MaxRetries is the retry budget after the first fetch attempt.
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// ProbeTimeout bounds the startup session probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout" env:"PROBE_TIMEOUT"`
	// SyncInterval is the periodic queue-drain cadence.
	SyncInterval time.Duration `yaml:"sync_interval" env:"SYNC_INTERVAL"`
}

// RemoteConfig locates the hosted record and asset store. Token is the
// signed-in user's access token; empty runs the daemon signed out.
type RemoteConfig struct {
	URL   string `yaml:"url" env:"URL"`
	Key   string `yaml:"key" env:"KEY"`
	Token string `yaml:"token" env:"TOKEN"`
}

// ForecastConfig locates the hosted generation service.
type ForecastConfig struct {
	URL string `yaml:"url" env:"URL"`
	Key string `yaml:"key" env:"KEY"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DBPath:       "dukkan.db",
		ListenAddr:   "127.0.0.1:7333",
		Bucket:       "product-images",
		CacheTTL:     30 * time.Second,
		MaxRetries:   2,
		ProbeTimeout: 7 * time.Second,
		SyncInterval: 30 * time.Second,
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (missing file is fine when path is the default empty string), then
// DUKKAN_-prefixed environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		case err != nil:
			return Config{}, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "DUKKAN_"}); err != nil {
		return Config{}, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive, got %s", c.CacheTTL)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be positive, got %s", c.ProbeTimeout)
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync_interval must be positive, got %s", c.SyncInterval)
	}
	return nil
}
