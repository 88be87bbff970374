package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"nopg/internal/docpath"
	"nopg/internal/logging"
	"nopg/internal/nopgerr"
)

var typeKeyCaser = cases.Fold()

// typeKey is the case-insensitive lookup key for a type name.
func typeKey(name string) string {
	return typeKeyCaser.String(strings.TrimSpace(name))
}

type sqliteSession struct {
	opts   Options
	logger *slog.Logger
	db     *sql.DB
	tx     *sql.Tx
	q      queryer

	mu       sync.Mutex
	finished bool
	done     chan struct{}
	timer    *time.Timer

	hub *eventHub
}

// newSession wraps an open database. Non-transactional sessions deliver
// events committed after cursor.
func newSession(b *SQLiteBackend, db *sql.DB, tx *sql.Tx, cursor int64, cfg Config) *sqliteSession {
	s := &sqliteSession{
		opts:   b.opts,
		logger: b.logger,
		db:     db,
		tx:     tx,
		q:      db,
		done:   make(chan struct{}),
		hub:    newEventHub(),
	}
	if tx != nil {
		s.q = tx
	} else {
		go s.pollEvents(cursor)
	}
	if cfg.Timeout > 0 {
		s.timer = time.AfterFunc(cfg.Timeout, s.expire)
	}
	return s
}

func (s *sqliteSession) InTransaction() bool { return s.tx != nil }

func (s *sqliteSession) Done() <-chan struct{} { return s.done }

func (s *sqliteSession) Commit(ctx context.Context) error {
	return s.finish(func() error {
		if s.tx == nil {
			return nil
		}
		if err := s.tx.Commit(); err != nil {
			return nopgerr.Wrap(nopgerr.ErrStore, "commit", err)
		}
		return nil
	})
}

func (s *sqliteSession) Rollback(ctx context.Context) error {
	return s.finish(s.rollbackTx)
}

func (s *sqliteSession) rollbackTx() error {
	if s.tx == nil {
		return nil
	}
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return nopgerr.Wrap(nopgerr.ErrStore, "rollback", err)
	}
	return nil
}

func (s *sqliteSession) finish(end func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return nopgerr.ErrSessionClosed
	}
	return s.finishLocked(end)
}

func (s *sqliteSession) finishLocked(end func() error) error {
	err := end()
	if err != nil && s.tx != nil {
		_ = s.tx.Rollback()
	}
	s.finished = true
	if s.timer != nil {
		s.timer.Stop()
	}
	close(s.done)
	if closeErr := s.db.Close(); closeErr != nil && err == nil {
		err = nopgerr.Wrap(nopgerr.ErrStore, "close store", closeErr)
	}
	return err
}

func (s *sqliteSession) expire() {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	if err := s.finishLocked(s.rollbackTx); err != nil {
		logging.WarnWithContext(s.logger, "timeout rollback failed", "store_timeout_rollback_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "pending changes may not have been discarded cleanly"),
		)
	}
	s.mu.Unlock()
	s.logger.Info("session timed out; rolled back", logging.String(logging.FieldEventType, "store_timeout"))
	s.hub.emit(EventTimeout, Event{Name: EventTimeout})
}

// guard locks the session for one operation.
func (s *sqliteSession) guard() (func(), error) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return nil, nopgerr.ErrSessionClosed
	}
	return s.mu.Unlock, nil
}

func (s *sqliteSession) Count(ctx context.Context, typeName string, where map[string]any, traits Traits) (int, error) {
	unlock, err := s.guard()
	if err != nil {
		return 0, err
	}
	defer unlock()

	clause, args, ok, err := s.documentFilter(ctx, typeName, where)
	if err != nil || !ok {
		return 0, err
	}
	query := "SELECT COUNT(1) FROM documents WHERE " + clause
	if traits.Limit > 0 || traits.Offset > 0 {
		limit := traits.Limit
		if limit <= 0 {
			limit = -1
		}
		query = "SELECT COUNT(1) FROM (SELECT 1 FROM documents WHERE " + clause + " LIMIT ? OFFSET ?)"
		args = append(args, limit, traits.Offset)
	}
	var count int
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, nopgerr.Wrap(nopgerr.ErrStore, "count documents", err)
	}
	return count, nil
}

func (s *sqliteSession) Search(ctx context.Context, typeName string, where map[string]any, traits Traits) ([]*Document, error) {
	unlock, err := s.guard()
	if err != nil {
		return nil, err
	}
	defer unlock()

	clause, args, ok, err := s.documentFilter(ctx, typeName, where)
	if err != nil || !ok {
		return []*Document{}, err
	}
	order, orderArgs, err := buildOrder(traits.Order)
	if err != nil {
		return nil, err
	}
	query := "SELECT id, type_name, content_json, created_at, updated_at FROM documents WHERE " + clause + " ORDER BY " + order
	args = append(args, orderArgs...)
	if traits.Limit > 0 || traits.Offset > 0 {
		limit := traits.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, traits.Offset)
	}

	docs, err := s.queryDocuments(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(traits.Documents) > 0 {
		if err := s.loadRelated(ctx, docs, traits.Documents); err != nil {
			return nil, err
		}
	}
	if len(traits.Fields) > 0 {
		for _, doc := range docs {
			doc.Content = selectFields(doc.Content, traits.Fields)
		}
	}
	return docs, nil
}

// documentFilter builds the WHERE clause for a type and content filter. ok is
// false when the named type does not exist, so nothing can match.
func (s *sqliteSession) documentFilter(ctx context.Context, typeName string, where map[string]any) (string, []any, bool, error) {
	clauses := []string{"1=1"}
	var args []any
	if strings.TrimSpace(typeName) != "" {
		typ, err := s.typeByName(ctx, typeName)
		if errors.Is(err, nopgerr.ErrNotFound) {
			return "", nil, false, nil
		}
		if err != nil {
			return "", nil, false, err
		}
		clauses = append(clauses, "type_id = ?")
		args = append(args, typ.ID)
	}
	whereClauses, whereArgs, err := buildWhere(where)
	if err != nil {
		return "", nil, false, err
	}
	clauses = append(clauses, whereClauses...)
	args = append(args, whereArgs...)
	return strings.Join(clauses, " AND "), args, true, nil
}

func (s *sqliteSession) queryDocuments(ctx context.Context, query string, args ...any) ([]*Document, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nopgerr.Wrap(nopgerr.ErrStore, "search documents", err)
	}
	defer rows.Close()

	docs := []*Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, nopgerr.Wrap(nopgerr.ErrStore, "search documents", err)
	}
	return docs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc                  Document
		content              string
		createdAt, updatedAt string
	)
	if err := row.Scan(&doc.ID, &doc.Type, &content, &createdAt, &updatedAt); err != nil {
		return nil, nopgerr.Wrap(nopgerr.ErrStore, "scan document", err)
	}
	if err := json.Unmarshal([]byte(content), &doc.Content); err != nil {
		return nil, nopgerr.Wrap(nopgerr.ErrStore, "decode document content", err)
	}
	if doc.Content == nil {
		doc.Content = map[string]any{}
	}
	doc.Created = parseTime(createdAt)
	doc.Updated = parseTime(updatedAt)
	return &doc, nil
}

func (s *sqliteSession) documentByID(ctx context.Context, id string) (*Document, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT id, type_name, content_json, created_at, updated_at FROM documents WHERE id = ?", id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: document %s", nopgerr.ErrNotFound, id)
		}
		return nil, err
	}
	return doc, nil
}

func (s *sqliteSession) Create(ctx context.Context, typeName string, content map[string]any) (*Document, error) {
	unlock, err := s.guard()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if strings.TrimSpace(typeName) == "" {
		return nil, nopgerr.Invalid("create requires a type")
	}
	typ, err := s.typeByName(ctx, typeName)
	if errors.Is(err, nopgerr.ErrNotFound) {
		typ, err = s.upsertType(ctx, typeName, nil, nil)
	}
	if err != nil {
		return nil, err
	}
	if content == nil {
		content = map[string]any{}
	}
	payload, err := json.Marshal(content)
	if err != nil {
		return nil, nopgerr.Invalid("encode content: %v", err)
	}
	id := uuid.NewString()
	now := formatTime(time.Now())
	if _, err := s.q.ExecContext(ctx,
		`INSERT INTO documents (id, type_id, type_name, content_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		id, typ.ID, typ.Name, string(payload), now, now,
	); err != nil {
		return nil, nopgerr.Wrap(nopgerr.ErrStore, "create document", err)
	}
	return s.documentByID(ctx, id)
}

func (s *sqliteSession) Update(ctx context.Context, doc *Document, set map[string]any) (*Document, error) {
	unlock, err := s.guard()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if doc == nil || doc.ID == "" {
		return nil, nopgerr.Invalid("update requires a document")
	}
	current, err := s.documentByID(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	for key, value := range set {
		if strings.HasPrefix(key, "$") {
			continue
		}
		if value == nil {
			delete(current.Content, key)
			continue
		}
		current.Content[key] = value
	}
	payload, err := json.Marshal(current.Content)
	if err != nil {
		return nil, nopgerr.Invalid("encode content: %v", err)
	}
	if _, err := s.q.ExecContext(ctx,
		"UPDATE documents SET content_json = ?, updated_at = ? WHERE id = ?",
		string(payload), formatTime(time.Now()), doc.ID,
	); err != nil {
		return nil, nopgerr.Wrap(nopgerr.ErrStore, "update document", err)
	}
	return s.documentByID(ctx, doc.ID)
}

func (s *sqliteSession) Delete(ctx context.Context, doc *Document) error {
	unlock, err := s.guard()
	if err != nil {
		return err
	}
	defer unlock()

	if doc == nil || doc.ID == "" {
		return nopgerr.Invalid("delete requires a document")
	}
	res, err := s.q.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", doc.ID)
	if err != nil {
		return nopgerr.Wrap(nopgerr.ErrStore, "delete document", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: document %s", nopgerr.ErrNotFound, doc.ID)
	}
	return nil
}

func (s *sqliteSession) loadRelated(ctx context.Context, docs []*Document, refs []string) error {
	for _, doc := range docs {
		doc.Documents = map[string]*Document{}
		for _, ref := range refs {
			path, typeName, _ := strings.Cut(ref, "|")
			value, ok := docpath.Get(doc.Content, docpath.Split(path))
			if !ok {
				continue
			}
			for _, id := range relatedIDs(value) {
				if _, seen := doc.Documents[id]; seen {
					continue
				}
				child, err := s.documentByID(ctx, id)
				if errors.Is(err, nopgerr.ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				if typeName != "" && typeKey(child.Type) != typeKey(typeName) {
					continue
				}
				doc.Documents[id] = child
			}
		}
	}
	return nil
}

func relatedIDs(value any) []string {
	switch v := value.(type) {
	case string:
		return []string{v}
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			if id, ok := item.(string); ok {
				ids = append(ids, id)
			}
		}
		return ids
	default:
		return nil
	}
}

func selectFields(content map[string]any, fields []string) map[string]any {
	out := map[string]any{}
	for _, field := range fields {
		path := docpath.Split(field)
		if value, ok := docpath.Get(content, path); ok {
			docpath.Set(out, path, value)
		}
	}
	return out
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
