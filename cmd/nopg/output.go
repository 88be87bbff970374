package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"nopg/internal/docpath"
)

const (
	formatTable = "table"
	formatBatch = "batch"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// render writes a command result in the requested format. A null result
// prints nothing.
func render(w io.Writer, format string, quiet bool, raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var result any
	if err := json.Unmarshal(trimmed, &result); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}

	switch format {
	case formatJSON:
		return writeJSON(w, result)
	case formatYAML:
		return writeYAML(w, result)
	case formatBatch:
		return renderBatch(w, quiet, result)
	default:
		return renderTableResult(w, quiet, result)
	}
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// rowsOf returns the objects of a result and whether it had that shape.
func rowsOf(result any) ([]map[string]any, bool) {
	switch v := result.(type) {
	case map[string]any:
		return []map[string]any{v}, true
	case []any:
		rows := make([]map[string]any, 0, len(v))
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			rows = append(rows, obj)
		}
		return rows, true
	}
	return nil, false
}

func cells(keys []string, doc map[string]any) []string {
	flat := docpath.Flatten(doc)
	out := make([]string, len(keys))
	for i, key := range keys {
		value, ok := flat[key]
		if !ok {
			continue
		}
		out[i] = formatCell(value)
	}
	return out
}

func formatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = formatCell(item)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	default:
		return fmt.Sprint(v)
	}
}

func renderBatch(w io.Writer, quiet bool, result any) error {
	rows, ok := rowsOf(result)
	if !ok {
		return renderScalar(w, result)
	}
	keys := docpath.Keys(rows)
	if !quiet && len(keys) > 0 {
		if _, err := fmt.Fprintln(w, strings.Join(keys, "\t")); err != nil {
			return err
		}
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(w, strings.Join(cells(keys, row), "\t")); err != nil {
			return err
		}
	}
	return nil
}

func renderScalar(w io.Writer, result any) error {
	if list, ok := result.([]any); ok {
		for _, item := range list {
			if _, err := fmt.Fprintln(w, formatCell(item)); err != nil {
				return err
			}
		}
		return nil
	}
	_, err := fmt.Fprintln(w, formatCell(result))
	return err
}

func renderTableResult(w io.Writer, quiet bool, result any) error {
	style := tableStyleFor(w)
	switch v := result.(type) {
	case map[string]any:
		flat := docpath.Flatten(v)
		keys := docpath.Keys([]map[string]any{v})
		rows := make([][]string, 0, len(keys))
		for _, key := range keys {
			rows = append(rows, []string{key, formatCell(flat[key])})
		}
		_, err := fmt.Fprintln(w, renderTable(nil, rows, nil, style))
		return err
	case []any:
		rows, ok := rowsOf(v)
		if !ok {
			return renderScalar(w, v)
		}
		if len(rows) == 0 {
			return nil
		}
		keys := docpath.Keys(rows)
		body := make([][]string, 0, len(rows))
		for _, row := range rows {
			body = append(body, cells(keys, row))
		}
		headers := keys
		if quiet {
			headers = nil
		}
		_, err := fmt.Fprintln(w, renderTable(headers, body, alignments(body), style))
		return err
	}
	return renderScalar(w, result)
}
