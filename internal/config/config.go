// Package config handles configuration parsing for pty-shell-mcp.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/acolita/pty-shell-mcp/internal/fscache"
)

// DefaultConfigPath returns the default config file path:
// $XDG_CONFIG_HOME/pty-shell-mcp/config.yaml or ~/.config/pty-shell-mcp/config.yaml
func DefaultConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "pty-shell-mcp", "config.yaml")
}

// Config represents the top-level configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Terminal TerminalConfig `yaml:"terminal"`
	Cache    CacheConfig    `yaml:"cache"`
	Limits   LimitsConfig   `yaml:"limits"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`    // "debug", "info", "warn", "error"
	Sanitize bool   `yaml:"sanitize"` // sanitize sensitive data from logs
}

// TerminalConfig defines default PTY settings for new runs. Per-run values
// from tool calls override these; the engine clamps both.
type TerminalConfig struct {
	Cols             uint16 `yaml:"cols"`
	Rows             uint16 `yaml:"rows"`
	PollIntervalMs   int    `yaml:"poll_interval_ms"`
	DefaultTimeoutMs int    `yaml:"default_timeout_ms"`
}

// CacheConfig defines the filesystem scan cache policy.
type CacheConfig struct {
	TTLMs          int `yaml:"ttl_ms"`           // 0 disables caching
	EmptyRecheckMs int `yaml:"empty_recheck_ms"` // stale-empty recheck threshold
	MaxEntries     int `yaml:"max_entries"`      // cached scans kept before eviction
}

// LimitsConfig defines resource limits.
type LimitsConfig struct {
	MaxSessions int `yaml:"max_sessions"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    "info",
			Sanitize: true,
		},
		Terminal: TerminalConfig{
			Cols:             120,
			Rows:             40,
			PollIntervalMs:   16,
			DefaultTimeoutMs: 30000,
		},
		Cache: CacheConfig{
			TTLMs:          1000,
			EmptyRecheckMs: 200,
			MaxEntries:     16,
		},
		Limits: LimitsConfig{
			MaxSessions: 10,
		},
	}
}

// cacheEnv carries the environment overrides of the scan cache policy.
// Pointer fields distinguish "unset" from an explicit zero.
type cacheEnv struct {
	CacheTTLMs      *int `envconfig:"CACHE_TTL_MS"`
	EmptyRecheckMs  *int `envconfig:"EMPTY_RECHECK_MS"`
	CacheMaxEntries *int `envconfig:"CACHE_MAX_ENTRIES"`
}

// applyEnv overlays FS_SCAN_* environment overrides onto the cache policy.
// The environment is consulted once here, at the boundary, never inside the
// cache itself.
func (c *Config) applyEnv() error {
	var env cacheEnv
	if err := envconfig.Process("FS_SCAN", &env); err != nil {
		return fmt.Errorf("parse cache env overrides: %w", err)
	}
	if env.CacheTTLMs != nil {
		c.Cache.TTLMs = *env.CacheTTLMs
	}
	if env.EmptyRecheckMs != nil {
		c.Cache.EmptyRecheckMs = *env.EmptyRecheckMs
	}
	if env.CacheMaxEntries != nil {
		c.Cache.MaxEntries = *env.CacheMaxEntries
	}
	return nil
}

// Load loads configuration from a YAML file, then overlays environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalizes out-of-range values back to the defaults.
func (c *Config) Validate() error {
	if c.Limits.MaxSessions <= 0 {
		c.Limits.MaxSessions = 10
	}
	if c.Terminal.PollIntervalMs <= 0 {
		c.Terminal.PollIntervalMs = 16
	}
	if c.Terminal.DefaultTimeoutMs < 0 {
		c.Terminal.DefaultTimeoutMs = 0
	}
	if c.Cache.TTLMs < 0 {
		c.Cache.TTLMs = 0
	}
	if c.Cache.EmptyRecheckMs < 0 {
		c.Cache.EmptyRecheckMs = 0
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 16
	}
	return nil
}

// CachePolicy converts the cache section into the fscache policy.
func (c *Config) CachePolicy() fscache.Policy {
	return fscache.Policy{
		TTL:          time.Duration(c.Cache.TTLMs) * time.Millisecond,
		EmptyRecheck: time.Duration(c.Cache.EmptyRecheckMs) * time.Millisecond,
		MaxEntries:   c.Cache.MaxEntries,
	}
}

// PollInterval returns the run-loop tick as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Terminal.PollIntervalMs) * time.Millisecond
}

// DefaultTimeout returns the default per-run timeout as a duration.
func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.Terminal.DefaultTimeoutMs) * time.Millisecond
}

// Save writes the configuration to a YAML file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
