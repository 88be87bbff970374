package cliargs

import (
	"slices"
	"strings"

	"nopg/internal/docpath"
)

// Unflatten expands dashed or dotted keys into nested objects. Without a type
// descriptor the mapping is returned unchanged. Already-nested values are
// merged in as copies, so nested input comes back equal.
func Unflatten(mapping map[string]any, td *TypeDescriptor) map[string]any {
	if td == nil || mapping == nil {
		return mapping
	}
	keys := make([]string, 0, len(mapping))
	for key := range mapping {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	out := make(map[string]any, len(mapping))
	for _, key := range keys {
		path := docpath.Split(strings.ReplaceAll(key, "-", docpath.Separator))
		if len(path) == 0 {
			continue
		}
		assign(out, path, mapping[key])
	}
	return out
}

// assign sets value at path, merging object values into objects already
// present.
func assign(root map[string]any, path []string, value any) {
	incoming, isObject := value.(map[string]any)
	if !isObject {
		docpath.Set(root, path, value)
		return
	}
	existing, ok := docpath.Get(root, path)
	current, currentIsObject := existing.(map[string]any)
	if !ok || !currentIsObject {
		current = map[string]any{}
		docpath.Set(root, path, current)
	}
	for key, child := range incoming {
		assign(current, []string{key}, child)
	}
}

// Flatten is the inverse of Unflatten: nested objects become dot-joined keys.
func Flatten(nested map[string]any) map[string]any {
	return docpath.Flatten(nested)
}
