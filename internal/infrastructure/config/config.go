package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Store       StoreConfig      `yaml:"store"`
	Transient   TransientConfig  `yaml:"transient"`
	Permissions PermissionConfig `yaml:"permissions"`
	Logging     LogConfig        `yaml:"logging"`
}

// StoreConfig holds durable store configuration.
type StoreConfig struct {
	Dir              string        `envconfig:"SELECTION_STORE_DIR" yaml:"dir"`
	Name             string        `envconfig:"SELECTION_STORE_NAME" yaml:"name"`
	Version          int           `envconfig:"SELECTION_STORE_VERSION" yaml:"version"`
	MaxAttempts      int           `envconfig:"SELECTION_STORE_MAX_ATTEMPTS" yaml:"max_attempts"`
	BusyTimeout      time.Duration `envconfig:"SELECTION_STORE_BUSY_TIMEOUT" yaml:"busy_timeout"`
	Compress         bool          `envconfig:"SELECTION_STORE_COMPRESS" yaml:"compress"`
	ReconcileOnStart bool          `envconfig:"SELECTION_RECONCILE_ON_START" yaml:"reconcile_on_start"`
	ReconcileGrace   time.Duration `envconfig:"SELECTION_RECONCILE_GRACE" yaml:"reconcile_grace"`
}

// Path returns the database file location.
func (s StoreConfig) Path() string {
	return filepath.Join(s.Dir, s.Name+".db")
}

// TransientConfig holds in-memory session configuration.
type TransientConfig struct {
	WatchSignals bool `envconfig:"SELECTION_WATCH_SIGNALS" yaml:"watch_signals"`
}

// PermissionConfig holds permission probe configuration.
type PermissionConfig struct {
	ProbeConcurrency int `envconfig:"SELECTION_PROBE_CONCURRENCY" yaml:"probe_concurrency"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development"`
}

// Load loads configuration from environment variables over defaults.
func Load() (*Config, error) {
	cfg := Default()
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadFile loads a YAML or TOML file (chosen by extension) over defaults,
// then applies environment variables on top.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if ext := strings.ToLower(filepath.Ext(path)); ext == ".toml" {
		if data, err = tomlToYAML(data); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, cfg.Validate()
}

// tomlToYAML re-encodes a TOML document as YAML so both formats share the
// yaml tags and duration parsing.
func tomlToYAML(data []byte) ([]byte, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects values the store cannot work with.
func (c *Config) Validate() error {
	if c.Store.Name == "" {
		return fmt.Errorf("store name is required")
	}
	if c.Store.Version < 0 {
		return fmt.Errorf("store version must be >= 0, got %d", c.Store.Version)
	}
	if c.Store.MaxAttempts < 1 {
		return fmt.Errorf("store max attempts must be >= 1, got %d", c.Store.MaxAttempts)
	}
	if c.Permissions.ProbeConcurrency < 1 {
		return fmt.Errorf("probe concurrency must be >= 1, got %d", c.Permissions.ProbeConcurrency)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Dir:              "data",
			Name:             "selections",
			Version:          0,
			MaxAttempts:      3,
			BusyTimeout:      5 * time.Second,
			Compress:         false,
			ReconcileOnStart: true,
			ReconcileGrace:   0,
		},
		Transient: TransientConfig{
			WatchSignals: true,
		},
		Permissions: PermissionConfig{
			ProbeConcurrency: 8,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
