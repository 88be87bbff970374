package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"nopg/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	cfg *config.Config
}

// NewConfig points HOME at a fresh directory and returns a config whose store
// lives there. The directory name is kept short so socket paths under it stay
// within the platform's sun_path limit.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	home := ShortTempDir(t)
	t.Setenv("HOME", home)
	t.Setenv("NOPG_CONFIG", "")
	t.Setenv("NOPG_TIMEOUT", "")
	t.Setenv("PGCONFIG", "")

	cfgVal := config.Default()
	cfgVal.Store.DSN = filepath.Join(home, "store.db")
	cfgVal.Store.PollIntervalMS = 10
	cfgVal.Logging.Level = "debug"

	builder := &configBuilder{cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithSessionTimeout sets the default session timeout in milliseconds.
func WithSessionTimeout(ms int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Session.TimeoutMS = ms
	}
}

// WithListenerPool overrides the listener worker pool shape.
func WithListenerPool(workers, queueSize int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Listeners.Workers = workers
		b.cfg.Listeners.QueueSize = queueSize
	}
}

// ShortTempDir creates a temp directory directly under the system temp root.
func ShortTempDir(t testing.TB) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "nopg")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}
