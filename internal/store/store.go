package store

import (
	"context"
	"time"
)

// Config describes one store session.
type Config struct {
	// DSN is the SQLite database location.
	DSN string
	// Timeout arms an automatic rollback when positive.
	Timeout time.Duration
}

// Backend opens store sessions.
type Backend interface {
	// Start opens a session inside a transaction.
	Start(ctx context.Context, cfg Config) (Session, error)
	// Connect opens a session without a transaction; writes commit immediately
	// and committed changes from other processes raise events.
	Connect(ctx context.Context, cfg Config) (Session, error)
}

// Session is a single open store handle. It is finished by Commit, Rollback,
// or timeout expiry; every call after that fails with nopgerr.ErrSessionClosed.
type Session interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Count honors the Limit and Offset traits; other traits are ignored.
	Count(ctx context.Context, typeName string, where map[string]any, traits Traits) (int, error)
	Search(ctx context.Context, typeName string, where map[string]any, traits Traits) ([]*Document, error)
	Create(ctx context.Context, typeName string, content map[string]any) (*Document, error)
	// Update overwrites the top-level content keys of doc present in set;
	// a nil value removes the key.
	Update(ctx context.Context, doc *Document, set map[string]any) (*Document, error)
	Delete(ctx context.Context, doc *Document) error

	SearchTypes(ctx context.Context, where map[string]any) ([]*Type, error)
	GetType(ctx context.Context, name string) (*Type, error)
	DeclareType(ctx context.Context, name string, schema, meta map[string]any) (*Type, error)

	On(event string, fn Listener) SubscriptionID
	Once(event string, fn Listener) SubscriptionID
	RemoveListener(id SubscriptionID) bool

	// InTransaction reports whether the session was opened with Start.
	InTransaction() bool
	// Done is closed once the session is finished.
	Done() <-chan struct{}
}
