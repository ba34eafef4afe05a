// Package config loads ledgerly settings from defaults, an optional YAML file
// and LEDGERLY_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the config file when no -config flag is given.
const EnvConfigPath = "LEDGERLY_CONFIG"

// Config is the full client and server configuration.
type Config struct {
	// DBPath is the client's local SQLite database.
	DBPath string `yaml:"db_path"`
	// SessionPath is where the signed-in identity is kept.
	SessionPath string `yaml:"session_path"`
	// RemoteURL is the base URL of the record server.
	RemoteURL string `yaml:"remote_url"`
	LogLevel  string `yaml:"log_level"`

	Sync   SyncConfig   `yaml:"sync"`
	Server ServerConfig `yaml:"server"`
}

// SyncConfig holds the sync schedule and matching tolerances.
type SyncConfig struct {
	Interval             time.Duration `yaml:"interval"`
	MinGap               time.Duration `yaml:"min_gap"`
	ProbeTimeout         time.Duration `yaml:"probe_timeout"`
	IdentityDebounce     time.Duration `yaml:"identity_debounce"`
	ConnectivityInterval time.Duration `yaml:"connectivity_interval"`
	UploadConcurrency    int           `yaml:"upload_concurrency"`
	BillWindow           time.Duration `yaml:"bill_window"`
	SavingsGoalWindow    time.Duration `yaml:"savings_goal_window"`
}

// ServerConfig configures cmd/server.
type ServerConfig struct {
	Addr        string        `yaml:"addr"`
	DBPath      string        `yaml:"db_path"`
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	MetricsPath string        `yaml:"metrics_path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DBPath:      "./data/ledgerly.db",
		SessionPath: "./data/session.yaml",
		RemoteURL:   "http://localhost:8080",
		LogLevel:    "info",
		Sync: SyncConfig{
			Interval:             300 * time.Second,
			MinGap:               60 * time.Second,
			ProbeTimeout:         10 * time.Second,
			IdentityDebounce:     time.Second,
			ConnectivityInterval: 30 * time.Second,
			UploadConcurrency:    8,
			BillWindow:           60 * time.Second,
			SavingsGoalWindow:    24 * time.Hour,
		},
		Server: ServerConfig{
			Addr:        ":8080",
			DBPath:      "./data/server.db",
			TokenTTL:    24 * time.Hour,
			MetricsPath: "/metrics",
		},
	}
}

// Path returns the config file to load: the flag value if set, otherwise
// LEDGERLY_CONFIG. Empty means no file.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(EnvConfigPath)
}

// Load builds the configuration. A missing file is an error only when path
// was given explicitly.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func (c *Config) applyEnv() error {
	c.DBPath = getEnv("LEDGERLY_DB_PATH", c.DBPath)
	c.SessionPath = getEnv("LEDGERLY_SESSION_PATH", c.SessionPath)
	c.RemoteURL = getEnv("LEDGERLY_REMOTE_URL", c.RemoteURL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Server.Addr = getEnv("LEDGERLY_SERVER_ADDR", c.Server.Addr)
	c.Server.DBPath = getEnv("LEDGERLY_SERVER_DB_PATH", c.Server.DBPath)
	c.Server.JWTSecret = getEnv("LEDGERLY_JWT_SECRET", c.Server.JWTSecret)

	var err error
	if c.Sync.Interval, err = getEnvDuration("LEDGERLY_SYNC_INTERVAL", c.Sync.Interval); err != nil {
		return err
	}
	if c.Sync.MinGap, err = getEnvDuration("LEDGERLY_SYNC_MIN_GAP", c.Sync.MinGap); err != nil {
		return err
	}
	if c.Server.TokenTTL, err = getEnvDuration("LEDGERLY_TOKEN_TTL", c.Server.TokenTTL); err != nil {
		return err
	}
	if v := os.Getenv("LEDGERLY_UPLOAD_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid LEDGERLY_UPLOAD_CONCURRENCY: %w", err)
		}
		c.Sync.UploadConcurrency = n
	}
	return nil
}

// Validate rejects settings that would stall or disable sync.
func (c Config) Validate() error {
	switch {
	case c.Sync.Interval <= 0:
		return errors.New("sync.interval must be positive")
	case c.Sync.MinGap < 0:
		return errors.New("sync.min_gap must not be negative")
	case c.Sync.ProbeTimeout <= 0:
		return errors.New("sync.probe_timeout must be positive")
	case c.Sync.UploadConcurrency <= 0:
		return errors.New("sync.upload_concurrency must be positive")
	case c.Sync.BillWindow < 0 || c.Sync.SavingsGoalWindow < 0:
		return errors.New("near-duplicate windows must not be negative")
	}
	return nil
}
