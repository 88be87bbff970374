package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"nopg/internal/docpath"
	"nopg/internal/nopgerr"
)

func (s *sqliteSession) SearchTypes(ctx context.Context, where map[string]any) ([]*Type, error) {
	unlock, err := s.guard()
	if err != nil {
		return nil, err
	}
	defer unlock()

	rows, err := s.q.QueryContext(ctx,
		"SELECT id, name, schema_json, meta_json, created_at, updated_at FROM types ORDER BY name_key")
	if err != nil {
		return nil, nopgerr.Wrap(nopgerr.ErrStore, "search types", err)
	}
	defer rows.Close()

	types := []*Type{}
	for rows.Next() {
		typ, err := scanType(rows)
		if err != nil {
			return nil, err
		}
		if matchesType(typ, where) {
			types = append(types, typ)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nopgerr.Wrap(nopgerr.ErrStore, "search types", err)
	}
	return types, nil
}

// matchesType compares each flattened where key against the type's name or
// its meta fields.
func matchesType(typ *Type, where map[string]any) bool {
	flat := docpath.Flatten(where)
	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		want := flat[key]
		var got any
		var ok bool
		switch key {
		case "$name":
			got, ok = typ.Name, true
		case "$id":
			got, ok = typ.ID, true
		default:
			got, ok = docpath.Get(typ.Meta, docpath.Split(key))
		}
		if !ok || !looseEqual(got, want) {
			return false
		}
	}
	return true
}

func looseEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func (s *sqliteSession) GetType(ctx context.Context, name string) (*Type, error) {
	unlock, err := s.guard()
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.typeByName(ctx, name)
}

func (s *sqliteSession) DeclareType(ctx context.Context, name string, schema, meta map[string]any) (*Type, error) {
	unlock, err := s.guard()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if strings.TrimSpace(name) == "" {
		return nil, nopgerr.Invalid("declare requires a type name")
	}
	return s.upsertType(ctx, name, schema, meta)
}

func (s *sqliteSession) typeByName(ctx context.Context, name string) (*Type, error) {
	row := s.q.QueryRowContext(ctx,
		"SELECT id, name, schema_json, meta_json, created_at, updated_at FROM types WHERE name_key = ?",
		typeKey(name))
	typ, err := scanType(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: type %s", nopgerr.ErrNotFound, name)
		}
		return nil, err
	}
	return typ, nil
}

// upsertType declares name, replacing schema and meta when given. A nil
// schema or meta keeps the stored value.
func (s *sqliteSession) upsertType(ctx context.Context, name string, schema, meta map[string]any) (*Type, error) {
	name = strings.TrimSpace(name)
	existing, err := s.typeByName(ctx, name)
	if err != nil && !errors.Is(err, nopgerr.ErrNotFound) {
		return nil, err
	}
	now := formatTime(time.Now())

	if existing == nil {
		schemaJSON, metaJSON, err := encodeTypeFields(schema, meta)
		if err != nil {
			return nil, err
		}
		if _, err := s.q.ExecContext(ctx,
			`INSERT INTO types (id, name_key, name, schema_json, meta_json, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), typeKey(name), name, schemaJSON, metaJSON, now, now,
		); err != nil {
			return nil, nopgerr.Wrap(nopgerr.ErrStore, "declare type", err)
		}
		return s.typeByName(ctx, name)
	}

	if schema == nil {
		schema = existing.Schema
	}
	if meta == nil {
		meta = existing.Meta
	}
	schemaJSON, metaJSON, err := encodeTypeFields(schema, meta)
	if err != nil {
		return nil, err
	}
	if _, err := s.q.ExecContext(ctx,
		"UPDATE types SET schema_json = ?, meta_json = ?, updated_at = ? WHERE id = ?",
		schemaJSON, metaJSON, now, existing.ID,
	); err != nil {
		return nil, nopgerr.Wrap(nopgerr.ErrStore, "update type", err)
	}
	return s.typeByName(ctx, name)
}

func encodeTypeFields(schema, meta map[string]any) (string, string, error) {
	if schema == nil {
		schema = map[string]any{}
	}
	if meta == nil {
		meta = map[string]any{}
	}
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return "", "", nopgerr.Invalid("encode schema: %v", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", "", nopgerr.Invalid("encode meta: %v", err)
	}
	return string(schemaJSON), string(metaJSON), nil
}

func scanType(row rowScanner) (*Type, error) {
	var (
		typ                  Type
		schema, meta         string
		createdAt, updatedAt string
	)
	if err := row.Scan(&typ.ID, &typ.Name, &schema, &meta, &createdAt, &updatedAt); err != nil {
		return nil, nopgerr.Wrap(nopgerr.ErrStore, "scan type", err)
	}
	if err := json.Unmarshal([]byte(schema), &typ.Schema); err != nil {
		return nil, nopgerr.Wrap(nopgerr.ErrStore, "decode type schema", err)
	}
	if err := json.Unmarshal([]byte(meta), &typ.Meta); err != nil {
		return nil, nopgerr.Wrap(nopgerr.ErrStore, "decode type meta", err)
	}
	if typ.Schema == nil {
		typ.Schema = map[string]any{}
	}
	if typ.Meta == nil {
		typ.Meta = map[string]any{}
	}
	typ.Created = parseTime(createdAt)
	typ.Updated = parseTime(updatedAt)
	return &typ, nil
}
