// Package docpath walks nested JSON-shaped values by dotted key paths.
package docpath

import (
	"sort"
	"strings"
)

// Separator joins path segments.
const Separator = "."

// Flatten maps every leaf of nested to its dotted path. Arrays and scalars are
// leaves; empty objects are kept as leaves so they survive a round trip.
func Flatten(nested map[string]any) map[string]any {
	out := make(map[string]any)
	flattenInto(out, "", nested)
	return out
}

func flattenInto(out map[string]any, prefix string, value map[string]any) {
	for key, v := range value {
		path := key
		if prefix != "" {
			path = prefix + Separator + key
		}
		child, ok := v.(map[string]any)
		if ok && len(child) > 0 {
			flattenInto(out, path, child)
			continue
		}
		out[path] = v
	}
}

// Set assigns value at path inside root, creating intermediate objects and
// replacing non-object intermediates.
func Set(root map[string]any, path []string, value any) {
	if len(path) == 0 {
		return
	}
	node := root
	for _, segment := range path[:len(path)-1] {
		next, ok := node[segment].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[segment] = next
		}
		node = next
	}
	node[path[len(path)-1]] = value
}

// Get returns the value at path.
func Get(root map[string]any, path []string) (any, bool) {
	var current any = root
	for _, segment := range path {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Split breaks a dotted path into segments, dropping empty ones.
func Split(path string) []string {
	parts := strings.Split(path, Separator)
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Keys returns the union of flattened keys over docs in first-seen order,
// with keys beginning with "$" moved ahead of content keys.
func Keys(docs []map[string]any) []string {
	seen := make(map[string]struct{})
	var meta, content []string
	for _, doc := range docs {
		flat := Flatten(doc)
		keys := make([]string, 0, len(flat))
		for key := range flat {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			if strings.HasPrefix(key, "$") {
				meta = append(meta, key)
			} else {
				content = append(content, key)
			}
		}
	}
	return append(meta, content...)
}
