package store

import (
	"sort"
	"strings"

	"nopg/internal/docpath"
	"nopg/internal/nopgerr"
)

var metaColumns = map[string]string{
	"$id":      "id",
	"$type":    "type_name",
	"$created": "created_at",
	"$updated": "updated_at",
}

// jsonPath quotes each segment so keys may contain dots or dashes.
func jsonPath(segments []string) (string, error) {
	var b strings.Builder
	b.WriteString("$")
	for _, segment := range segments {
		if strings.ContainsAny(segment, `"\`) {
			return "", nopgerr.Invalid("field name %q contains a quote or backslash", segment)
		}
		b.WriteString(`."`)
		b.WriteString(segment)
		b.WriteString(`"`)
	}
	return b.String(), nil
}

// fieldExpr returns the SQL expression for a where/order key and its bound
// arguments.
func fieldExpr(key string) (string, []any, error) {
	if strings.HasPrefix(key, "$") {
		column, ok := metaColumns[key]
		if !ok {
			return "", nil, nopgerr.Invalid("unknown field %q", key)
		}
		return column, nil, nil
	}
	path, err := jsonPath(docpath.Split(key))
	if err != nil {
		return "", nil, err
	}
	return "json_extract(content_json, ?)", []any{path}, nil
}

// buildWhere turns a nested where object into equality clauses on the
// flattened paths. An array value matches any of its elements.
func buildWhere(where map[string]any) ([]string, []any, error) {
	flat := docpath.Flatten(where)
	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var clauses []string
	var args []any
	for _, key := range keys {
		expr, exprArgs, err := fieldExpr(key)
		if err != nil {
			return nil, nil, err
		}
		switch value := flat[key].(type) {
		case nil:
			clauses = append(clauses, expr+" IS NULL")
			args = append(args, exprArgs...)
		case []any:
			if len(value) == 0 {
				clauses = append(clauses, "0")
				continue
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(value)), ", ")
			clauses = append(clauses, expr+" IN ("+placeholders+")")
			args = append(args, exprArgs...)
			for _, item := range value {
				args = append(args, sqlValue(item))
			}
		case map[string]any:
			return nil, nil, nopgerr.Invalid("where.%s: empty object cannot be matched", key)
		default:
			clauses = append(clauses, expr+" = ?")
			args = append(args, exprArgs...)
			args = append(args, sqlValue(value))
		}
	}
	return clauses, args, nil
}

// sqlValue maps JSON scalars onto what json_extract returns for them.
func sqlValue(value any) any {
	if b, ok := value.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return value
}

func buildOrder(order []string) (string, []any, error) {
	if len(order) == 0 {
		return "created_at, rowid", nil, nil
	}
	parts := make([]string, 0, len(order)+1)
	var args []any
	for _, item := range order {
		direction := "ASC"
		key := item
		if strings.HasPrefix(key, "-") {
			direction = "DESC"
			key = key[1:]
		} else if strings.HasPrefix(key, "+") {
			key = key[1:]
		}
		expr, exprArgs, err := fieldExpr(key)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, expr+" "+direction)
		args = append(args, exprArgs...)
	}
	parts = append(parts, "rowid")
	return strings.Join(parts, ", "), args, nil
}
