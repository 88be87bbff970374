package testsupport

import (
	"context"
	"testing"

	"nopg/internal/config"
	"nopg/internal/logging"
	"nopg/internal/store"
)

// NewBackend returns a SQLite backend tuned by cfg.
func NewBackend(cfg *config.Config) *store.SQLiteBackend {
	return store.NewSQLiteBackend(store.Options{
		PollInterval:   cfg.PollInterval(),
		BusyTimeout:    cfg.BusyTimeout(),
		EventRetention: cfg.EventRetention(),
	}, logging.NewNop())
}

// MustStart opens a transactional store session and rolls it back on cleanup.
func MustStart(t testing.TB, cfg *config.Config) store.Session {
	t.Helper()

	session, err := NewBackend(cfg).Start(context.Background(), store.Config{DSN: cfg.Store.DSN})
	if err != nil {
		t.Fatalf("store Start: %v", err)
	}
	t.Cleanup(func() {
		_ = session.Rollback(context.Background())
	})
	return session
}

// MustCreate inserts a document and fails the test on error.
func MustCreate(t testing.TB, session store.Session, typeName string, content map[string]any) *store.Document {
	t.Helper()

	doc, err := session.Create(context.Background(), typeName, content)
	if err != nil {
		t.Fatalf("Create %s: %v", typeName, err)
	}
	return doc
}
