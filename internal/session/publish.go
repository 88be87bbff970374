package session

import (
	"strings"

	"nopg/internal/store"
)

// Publish turns a raw document or type map into its client shape: $events
// is dropped, $content and $meta are lifted into the top level, and related
// $documents are published recursively. The input is not modified.
func Publish(raw map[string]any) map[string]any {
	if raw == nil {
		return nil
	}
	out := make(map[string]any, len(raw))
	for _, lifted := range []string{"$content", "$meta"} {
		if inner, ok := raw[lifted].(map[string]any); ok {
			for key, value := range inner {
				out[key] = value
			}
		}
	}
	for key, value := range raw {
		switch key {
		case "$events", "$content", "$meta":
			continue
		case "$documents":
			if children, ok := value.(map[string]any); ok {
				published := make(map[string]any, len(children))
				for id, child := range children {
					if childMap, ok := child.(map[string]any); ok {
						published[id] = Publish(childMap)
					} else {
						published[id] = child
					}
				}
				out[key] = published
				continue
			}
		}
		if strings.HasPrefix(key, "$") {
			out[key] = value
			continue
		}
		if _, taken := out[key]; !taken {
			out[key] = value
		}
	}
	return out
}

func publishDocuments(docs []*store.Document) []map[string]any {
	out := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		out = append(out, Publish(doc.Map()))
	}
	return out
}

func publishTypes(types []*store.Type) []map[string]any {
	out := make([]map[string]any, 0, len(types))
	for _, typ := range types {
		out = append(out, Publish(typ.Map()))
	}
	return out
}
