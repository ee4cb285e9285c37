// Package config loads service configuration from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/muster/internal/auth"
	"github.com/dukerupert/muster/internal/model"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Backfill  BackfillConfig  `yaml:"backfill"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Points seeds the point schedule on startup, keyed by point key.
	Points map[string]int `yaml:"points"`
	Keys   []KeyConfig    `yaml:"keys"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// AllowedOrigins are host patterns accepted on websocket upgrades.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// PublicReads serves member attendance, point balances and the live
	// feed without an API key, for trusted kiosk displays.
	PublicReads bool `yaml:"public_reads"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	Console    bool   `yaml:"console"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type BackfillConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Schedule   string        `yaml:"schedule"`
	Lookback   time.Duration `yaml:"lookback"`
	RunOnStart bool          `yaml:"run_on_start"`
}

// RateLimitConfig bounds self-marking per member.
type RateLimitConfig struct {
	SelfMarkLimit  int           `yaml:"self_mark_limit"`
	SelfMarkWindow time.Duration `yaml:"self_mark_window"`
}

// KeyConfig provisions an API key. Hash is a bcrypt hash of the token.
type KeyConfig struct {
	Kind string `yaml:"kind"`
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
	Hash string `yaml:"hash"`
}

var defaultPaths = []string{"muster.yaml", "/etc/muster/config.yaml"}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Path: "muster.db"},
		Log:      LogConfig{Level: "info", Console: true, MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 30},
		Backfill: BackfillConfig{Enabled: true, Schedule: "@every 5m", RunOnStart: true},
		RateLimit: RateLimitConfig{
			SelfMarkLimit:  5,
			SelfMarkWindow: time.Minute,
		},
		Points: map[string]int{
			model.PointKeyWeeklyMeetings: 10,
			model.PointKeyTrainings:      10,
		},
	}
}

// Load reads configuration from path, or from the first default location
// that exists when path is empty, and then applies MUSTER_* environment
// overrides. A missing file at a default location is not an error.
func Load(path string) (*Config, error) {
	c := defaults()

	paths := defaultPaths
	if path != "" {
		paths = []string{path}
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) && path == "" {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", p, err)
		}
		break
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	envOverride(&c.Database.Path, "MUSTER_DB_PATH")
	envOverride(&c.Log.Level, "MUSTER_LOG_LEVEL")
	envOverride(&c.Log.File, "MUSTER_LOG_FILE")
	envOverride(&c.Backfill.Schedule, "MUSTER_BACKFILL_SCHEDULE")

	if err := envOverrideInt(&c.Server.Port, "MUSTER_PORT"); err != nil {
		return err
	}
	if err := envOverrideBool(&c.Backfill.Enabled, "MUSTER_BACKFILL_ENABLED"); err != nil {
		return err
	}
	if err := envOverrideBool(&c.Server.PublicReads, "MUSTER_PUBLIC_READS"); err != nil {
		return err
	}
	if err := envOverrideDuration(&c.Backfill.Lookback, "MUSTER_BACKFILL_LOOKBACK"); err != nil {
		return err
	}

	// A single admin key may be provisioned from the environment.
	if hash := os.Getenv("MUSTER_ADMIN_KEY_HASH"); hash != "" {
		c.Keys = append(c.Keys, KeyConfig{Kind: string(auth.KindAdmin), ID: 0, Name: "env", Hash: hash})
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Backfill.Enabled && c.Backfill.Schedule == "" {
		return fmt.Errorf("backfill schedule is required when backfill is enabled")
	}
	if c.Backfill.Lookback < 0 {
		return fmt.Errorf("backfill lookback must not be negative")
	}
	if c.RateLimit.SelfMarkLimit <= 0 || c.RateLimit.SelfMarkWindow <= 0 {
		return fmt.Errorf("self-mark rate limit must be positive")
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// AuthKeys converts the provisioned keys for auth.NewKeyring.
func (c *Config) AuthKeys() []auth.Key {
	keys := make([]auth.Key, 0, len(c.Keys))
	for _, k := range c.Keys {
		keys = append(keys, auth.Key{Kind: auth.Kind(k.Kind), ID: k.ID, Name: k.Name, Hash: k.Hash})
	}
	return keys
}

func envOverride(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOverrideInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envOverrideBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func envOverrideDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
