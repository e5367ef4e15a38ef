package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all Facetrace configuration.
type Config struct {
	Listen   string        `yaml:"listen"    env:"FACETRACE_LISTEN"`
	DBPath   string        `yaml:"db_path"   env:"FACETRACE_DB_PATH"`
	LogLevel string        `yaml:"log_level" env:"FACETRACE_LOG_LEVEL"`
	Cache    CacheConfig   `yaml:"cache"`
	Render   RenderConfig  `yaml:"render"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// CacheConfig controls result reuse and eviction.
type CacheConfig struct {
	TTLSuccess          time.Duration `yaml:"ttl_success"          env:"FACETRACE_CACHE_TTL_SUCCESS"`
	TTLFailure          time.Duration `yaml:"ttl_failure"          env:"FACETRACE_CACHE_TTL_FAILURE"`
	SimilarityThreshold int           `yaml:"similarity_threshold" env:"FACETRACE_CACHE_SIMILARITY_THRESHOLD"`
	PerceptualGridSize  int           `yaml:"perceptual_grid_size" env:"FACETRACE_CACHE_PERCEPTUAL_GRID_SIZE"`
	FailureRetention    time.Duration `yaml:"failure_retention"    env:"FACETRACE_CACHE_FAILURE_RETENTION"`
	StaleRetention      time.Duration `yaml:"stale_retention"      env:"FACETRACE_CACHE_STALE_RETENTION"`
	SweepInterval       time.Duration `yaml:"sweep_interval"       env:"FACETRACE_CACHE_SWEEP_INTERVAL"`
}

// RenderConfig sets defaults applied to incoming render requests.
type RenderConfig struct {
	DefaultOpacity     float64 `yaml:"default_opacity"      env:"FACETRACE_RENDER_DEFAULT_OPACITY"`
	DefaultStrokeWidth float64 `yaml:"default_stroke_width" env:"FACETRACE_RENDER_DEFAULT_STROKE_WIDTH"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"FACETRACE_METRICS_ENABLED"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:   ":8080",
		DBPath:   "facetrace.db",
		LogLevel: "info",
		Cache: CacheConfig{
			TTLSuccess:          24 * time.Hour,
			TTLFailure:          time.Hour,
			SimilarityThreshold: 10,
			PerceptualGridSize:  8,
			FailureRetention:    24 * time.Hour,
			StaleRetention:      7 * 24 * time.Hour,
			SweepInterval:       time.Hour,
		},
		Render: RenderConfig{
			DefaultOpacity: 0.65,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// FACETRACE_* environment overrides, in that order of precedence. An empty
// path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the cache cannot operate under.
func (c *Config) Validate() error {
	if c.Cache.PerceptualGridSize < 2 {
		return fmt.Errorf("config: perceptual_grid_size must be at least 2, got %d", c.Cache.PerceptualGridSize)
	}
	keyBits := c.Cache.PerceptualGridSize * c.Cache.PerceptualGridSize
	if c.Cache.SimilarityThreshold < 0 || c.Cache.SimilarityThreshold > keyBits {
		return fmt.Errorf("config: similarity_threshold must be between 0 and %d, got %d", keyBits, c.Cache.SimilarityThreshold)
	}
	if c.Cache.TTLSuccess <= 0 || c.Cache.TTLFailure <= 0 {
		return fmt.Errorf("config: cache TTLs must be positive")
	}
	if c.Cache.FailureRetention <= 0 || c.Cache.StaleRetention <= 0 {
		return fmt.Errorf("config: retention windows must be positive")
	}
	if c.Cache.SweepInterval <= 0 {
		return fmt.Errorf("config: sweep_interval must be positive")
	}
	if c.Render.DefaultOpacity < 0 || c.Render.DefaultOpacity > 1 {
		return fmt.Errorf("config: default_opacity must be within [0, 1], got %g", c.Render.DefaultOpacity)
	}
	return nil
}
