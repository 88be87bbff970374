package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"nopg/internal/config"
)

func TestLoadDefaultConfigUsesAppDir(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("PGCONFIG", "")
	t.Setenv("NOPG_TIMEOUT", "")
	t.Setenv("NOPG_CONFIG", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if resolved != filepath.Join(tempHome, ".nopg", "config.toml") {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if cfg.Store.DSN != filepath.Join(tempHome, ".nopg", "store.db") {
		t.Fatalf("unexpected dsn %q", cfg.Store.DSN)
	}
	if cfg.PollInterval() != 250*time.Millisecond {
		t.Fatalf("unexpected poll interval %s", cfg.PollInterval())
	}
	if cfg.SessionTimeout() != 0 {
		t.Fatalf("expected no default timeout, got %s", cfg.SessionTimeout())
	}
	if cfg.Listeners.Workers != 4 || cfg.Listeners.QueueSize != 64 {
		t.Fatalf("unexpected listener pool %+v", cfg.Listeners)
	}
	if cfg.CLI.ArrayFS != "," || cfg.CLI.Format != "table" {
		t.Fatalf("unexpected cli defaults %+v", cfg.CLI)
	}
}

func TestLoadCustomFileAndEnvOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("PGCONFIG", "")
	t.Setenv("NOPG_TIMEOUT", "1500")

	cfg := config.Default()
	cfg.Store.DSN = "~/data/docs.db"
	cfg.Listeners.Workers = 2
	cfg.Logging.Format = "Console"
	cfg.CLI.ArrayFS = ";"
	payload, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(tempHome, "nopg.toml")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loaded, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected %q to be used, got %q (exists=%v)", path, resolved, exists)
	}
	if loaded.Store.DSN != filepath.Join(tempHome, "data", "docs.db") {
		t.Fatalf("dsn not expanded: %q", loaded.Store.DSN)
	}
	if loaded.Listeners.Workers != 2 {
		t.Fatalf("workers = %d", loaded.Listeners.Workers)
	}
	if loaded.Logging.Format != "console" {
		t.Fatalf("format not normalized: %q", loaded.Logging.Format)
	}
	if loaded.SessionTimeout() != 1500*time.Millisecond {
		t.Fatalf("NOPG_TIMEOUT not applied: %s", loaded.SessionTimeout())
	}
	if loaded.CLI.ArrayFS != ";" {
		t.Fatalf("array_fs = %q", loaded.CLI.ArrayFS)
	}
}

func TestLoadUsesPGConfigWhenDSNUnset(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("NOPG_TIMEOUT", "")
	t.Setenv("PGCONFIG", filepath.Join(tempHome, "env.db"))

	cfg, _, _, err := config.Load(filepath.Join(tempHome, "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.DSN != filepath.Join(tempHome, "env.db") {
		t.Fatalf("dsn = %q", cfg.Store.DSN)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"cli", func(c *config.Config) { c.CLI.Format = "csv" }, "cli.format"},
		{"timeout", func(c *config.Config) { c.Session.TimeoutMS = -1 }, "session.timeout_ms"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("PGCONFIG", "")
	t.Setenv("NOPG_TIMEOUT", "")
	path := filepath.Join(tempHome, "conf", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("Load sample: exists=%v err=%v", exists, err)
	}
}
