package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"nopg/internal/sockpath"
)

func (c *Config) normalize() error {
	if err := c.normalizeStore(); err != nil {
		return err
	}
	if err := c.normalizeSession(); err != nil {
		return err
	}
	c.normalizeListeners()
	c.normalizeLogging()
	c.normalizeCLI()
	if c.Launcher.ReadyTimeoutSeconds <= 0 {
		c.Launcher.ReadyTimeoutSeconds = defaultReadyTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeStore() error {
	if c.Store.DSN == "" {
		if value, ok := os.LookupEnv("PGCONFIG"); ok {
			c.Store.DSN = strings.TrimSpace(value)
		}
	}
	dsn, err := ResolveDSN(c.Store.DSN)
	if err != nil {
		return fmt.Errorf("store.dsn: %w", err)
	}
	c.Store.DSN = dsn
	if c.Store.PollIntervalMS <= 0 {
		c.Store.PollIntervalMS = defaultPollIntervalMS
	}
	if c.Store.BusyTimeoutMS <= 0 {
		c.Store.BusyTimeoutMS = defaultBusyTimeoutMS
	}
	if c.Store.EventRetentionMinutes <= 0 {
		c.Store.EventRetentionMinutes = defaultEventRetentionMinutes
	}
	return nil
}

// ResolveDSN expands a store location given on the command line or in the
// environment. Empty means the default database under the app directory.
func ResolveDSN(dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return filepath.Join(sockpath.AppDir(), defaultStoreFile), nil
	}
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return dsn, nil
	}
	return expandPath(dsn)
}

func (c *Config) normalizeSession() error {
	value, ok := os.LookupEnv("NOPG_TIMEOUT")
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	ms, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("NOPG_TIMEOUT: %w", err)
	}
	c.Session.TimeoutMS = ms
	return nil
}

func (c *Config) normalizeListeners() {
	if c.Listeners.Workers <= 0 {
		c.Listeners.Workers = defaultListenerWorkers
	}
	if c.Listeners.QueueSize <= 0 {
		c.Listeners.QueueSize = defaultListenerQueueSize
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeCLI() {
	if c.CLI.ArrayFS == "" {
		c.CLI.ArrayFS = defaultArrayFS
	}
	format := strings.ToLower(strings.TrimSpace(c.CLI.Format))
	if format == "" {
		format = defaultCLIFormat
	}
	c.CLI.Format = format
}
