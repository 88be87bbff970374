package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"nopg/internal/sockpath"
)

//go:embed sample_config.toml
var sampleConfig string

// Store contains settings for the SQLite document store.
type Store struct {
	DSN                   string `toml:"dsn"`
	PollIntervalMS        int    `toml:"poll_interval_ms"`
	BusyTimeoutMS         int    `toml:"busy_timeout_ms"`
	EventRetentionMinutes int    `toml:"event_retention_minutes"`
}

// Session contains defaults applied to every daemon session.
type Session struct {
	// TimeoutMS arms an automatic rollback when no trait overrides it. Zero disables.
	TimeoutMS int `toml:"timeout_ms"`
}

// Listeners sizes the subprocess spawner.
type Listeners struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
}

// Launcher contains settings for spawning daemons.
type Launcher struct {
	ReadyTimeoutSeconds int `toml:"ready_timeout_seconds"`
}

// Logging contains configuration for daemon log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// CLI contains defaults for the command line client.
type CLI struct {
	ArrayFS string `toml:"array_fs"`
	Format  string `toml:"format"`
}

// Config encapsulates all configuration values for nopg.
//
// Configuration sections by subsystem:
//   - Store: database location, event polling and retention
//   - Session: default auto-rollback timeout
//   - Listeners: subprocess worker pool sizing
//   - Launcher: daemon readiness wait
//   - Logging: daemon log format, level, and retention
//   - CLI: array field separator and output format
type Config struct {
	Store     Store     `toml:"store"`
	Session   Session   `toml:"session"`
	Listeners Listeners `toml:"listeners"`
	Launcher  Launcher  `toml:"launcher"`
	Logging   Logging   `toml:"logging"`
	CLI       CLI       `toml:"cli"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() string {
	return filepath.Join(sockpath.AppDir(), "config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and environment overrides applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if strings.TrimSpace(path) == "" {
		path = strings.TrimSpace(os.Getenv("NOPG_CONFIG"))
	}
	if path == "" {
		path = DefaultConfigPath()
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %q is a directory", expanded)
	}
	return expanded, true, nil
}

// PollInterval returns the store event poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Store.PollIntervalMS) * time.Millisecond
}

// BusyTimeout returns the SQLite busy timeout.
func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.Store.BusyTimeoutMS) * time.Millisecond
}

// EventRetention returns how long delivered store events are kept.
func (c *Config) EventRetention() time.Duration {
	return time.Duration(c.Store.EventRetentionMinutes) * time.Minute
}

// SessionTimeout returns the default session timeout, zero when disabled.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Session.TimeoutMS) * time.Millisecond
}

// ReadyTimeout returns the bound on the daemon readiness handshake.
func (c *Config) ReadyTimeout() time.Duration {
	return time.Duration(c.Launcher.ReadyTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home := sockpath.HomeDir()
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
