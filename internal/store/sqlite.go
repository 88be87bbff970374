package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"nopg/internal/logging"
	"nopg/internal/nopgerr"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Options tune the SQLite backend.
type Options struct {
	PollInterval   time.Duration
	BusyTimeout    time.Duration
	EventRetention time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = 5 * time.Second
	}
	if o.EventRetention <= 0 {
		o.EventRetention = time.Hour
	}
	return o
}

// SQLiteBackend opens document store sessions on SQLite databases.
type SQLiteBackend struct {
	opts   Options
	logger *slog.Logger
}

// NewSQLiteBackend returns a Backend backed by modernc.org/sqlite.
func NewSQLiteBackend(opts Options, logger *slog.Logger) *SQLiteBackend {
	return &SQLiteBackend{
		opts:   opts.withDefaults(),
		logger: logging.NewComponentLogger(logger, "store"),
	}
}

// Start opens a transactional session.
func (b *SQLiteBackend) Start(ctx context.Context, cfg Config) (Session, error) {
	db, err := b.open(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	// The transaction outlives the request that opened it; it ends only by
	// commit, rollback or timeout.
	tx, err := db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		_ = db.Close()
		return nil, nopgerr.Wrap(nopgerr.ErrStore, "begin transaction", err)
	}
	return newSession(b, db, tx, 0, cfg), nil
}

// Connect opens a session without a transaction.
func (b *SQLiteBackend) Connect(ctx context.Context, cfg Config) (Session, error) {
	db, err := b.open(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	cursor, err := latestEventID(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, nopgerr.Wrap(nopgerr.ErrStore, "read event cursor", err)
	}
	return newSession(b, db, nil, cursor, cfg), nil
}

func (b *SQLiteBackend) open(ctx context.Context, dsn string) (*sql.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("%w: store dsn is empty", nopgerr.ErrInvalidArguments)
	}
	memory := dsn == ":memory:" || strings.Contains(dsn, "mode=memory")

	db, err := sql.Open("sqlite", b.connectionString(dsn))
	if err != nil {
		return nil, nopgerr.Wrap(nopgerr.ErrStore, "open sqlite db", err)
	}
	if memory {
		db.SetMaxOpenConns(1)
	} else if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, nopgerr.Wrap(nopgerr.ErrStore, "apply pragma journal_mode", err)
	}

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	b.logger.Debug("store opened", logging.String("dsn", dsn))
	return db, nil
}

// connectionString appends per-connection pragmas so every pooled
// connection gets them.
func (b *SQLiteBackend) connectionString(dsn string) string {
	pragmas := fmt.Sprintf("_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)", b.opts.BusyTimeout.Milliseconds())
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + pragmas
	}
	return dsn + "?" + pragmas
}

func initSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nopgerr.Wrap(nopgerr.ErrStore, "begin schema tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return nopgerr.Wrap(nopgerr.ErrStore, "create schema", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_version (version) SELECT ? WHERE NOT EXISTS (SELECT 1 FROM schema_version)",
		schemaVersion,
	); err != nil {
		return nopgerr.Wrap(nopgerr.ErrStore, "record schema version", err)
	}

	var version int
	if err := tx.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return nopgerr.Wrap(nopgerr.ErrStore, "read schema version", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete the database to recreate it)",
			ErrSchemaMismatch, version, schemaVersion)
	}

	if err := tx.Commit(); err != nil {
		return nopgerr.Wrap(nopgerr.ErrStore, "commit schema", err)
	}
	return nil
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
