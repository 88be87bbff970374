package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nopg/internal/config"
	"nopg/internal/logging"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestNewFromConfigWritesJSON(t *testing.T) {
	cfg := config.Default()
	logPath := filepath.Join(t.TempDir(), "4242.log")

	logger, closer, err := logging.NewFromConfig(&cfg, logPath)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("daemon ready", logging.Int(logging.FieldPID, 4242))
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &record); err != nil {
		t.Fatalf("expected one json line: %v", err)
	}
	if record["msg"] != "daemon ready" || record["level"] != "info" {
		t.Fatalf("unexpected record %v", record)
	}
	if record["pid"] != float64(4242) {
		t.Fatalf("pid attr missing: %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key: %v", record)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, closer, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer closer.Close()

	logging.NewComponentLogger(logger, "session").Info("transaction started", logging.String(logging.FieldCommand, "start"))
	logger.Debug("hidden")

	content := readLog(t, logPath)
	if strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
	if !strings.Contains(content, "INFO session: transaction started command=start") {
		t.Fatalf("unexpected console line %q", content)
	}
	if strings.Contains(content, "hidden") {
		t.Fatalf("debug line should be filtered: %q", content)
	}
}

func TestConsoleLoggerLeadsWithPID(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "pid.log")
	logger, closer, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger = logger.With(logging.Int(logging.FieldPID, 4242))
	logging.NewComponentLogger(logger, "listeners").Info("spawned", logging.String(logging.FieldEvent, "create"))
	closer.Close()

	content := readLog(t, logPath)
	if !strings.Contains(content, "INFO [4242] listeners: spawned event=create") {
		t.Fatalf("unexpected console line %q", content)
	}
	if strings.Contains(content, "pid=") {
		t.Fatalf("pid should not repeat as a field: %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, closer, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logging.WarnWithContext(logger, "listener exited", "listener_failed", logging.Error(errors.New("exit status 3")))
	closer.Close()

	content := readLog(t, logPath)
	for _, key := range []string{`"event_type":"listener_failed"`, `"error_hint"`, `"impact"`, `"error":"exit status 3"`} {
		if !strings.Contains(content, key) {
			t.Fatalf("expected %s in %s", key, content)
		}
	}
}

func TestWithContextAddsRequestFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ctx.log")
	logger, closer, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := logging.WithCommand(logging.WithRequestID(context.Background(), "r1"), "search")
	logging.WithContext(ctx, logger).Info("served")
	closer.Close()

	content := readLog(t, logPath)
	if !strings.Contains(content, "request_id=r1") || !strings.Contains(content, "command=search") {
		t.Fatalf("missing context fields: %q", content)
	}
}

func TestCleanupOldLogsHonoursKeep(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().AddDate(0, 0, -30)
	for _, name := range []string{"100.log", "200.log", "notes.txt"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := os.Chtimes(path, old, old); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 14, logging.RetentionTarget{
		Dir:     dir,
		Pattern: "*.log",
		Keep:    func(name string) bool { return name == "200.log" },
	})
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "100.log")); !os.IsNotExist(err) {
		t.Fatalf("expected 100.log removed: %v", err)
	}
	for _, name := range []string{"200.log", "notes.txt"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s kept: %v", name, err)
		}
	}
}
