package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Document is one stored document with its bookkeeping fields.
type Document struct {
	ID      string
	Type    string
	Created time.Time
	Updated time.Time
	Content map[string]any
	// Documents holds related documents loaded through the documents trait,
	// keyed by id.
	Documents map[string]*Document
}

// Map renders the document in its raw wire shape, bookkeeping included.
func (d *Document) Map() map[string]any {
	if d == nil {
		return nil
	}
	out := map[string]any{
		"$id":      d.ID,
		"$type":    d.Type,
		"$created": formatTime(d.Created),
		"$updated": formatTime(d.Updated),
		"$content": cloneMap(d.Content),
		"$events":  map[string]any{},
	}
	if d.Documents != nil {
		children := make(map[string]any, len(d.Documents))
		for id, child := range d.Documents {
			children[id] = child.Map()
		}
		out["$documents"] = children
	}
	return out
}

// Type is a declared document type.
type Type struct {
	ID      string
	Name    string
	Schema  map[string]any
	Meta    map[string]any
	Created time.Time
	Updated time.Time
}

// Map renders the type in its raw wire shape, bookkeeping included.
func (t *Type) Map() map[string]any {
	if t == nil {
		return nil
	}
	return map[string]any{
		"$id":      t.ID,
		"$name":    t.Name,
		"$schema":  cloneMap(t.Schema),
		"$meta":    cloneMap(t.Meta),
		"$events":  map[string]any{},
		"$created": formatTime(t.Created),
		"$updated": formatTime(t.Updated),
	}
}

// Event is a change notification delivered to listeners.
type Event struct {
	Name         string
	DocumentID   string
	DocumentType string
}

// Listener receives store events. Listeners run on the session's event
// goroutine; a slow listener delays delivery of later events.
type Listener func(Event)

// SubscriptionID identifies a listener registered on a session.
type SubscriptionID int64

// Well-known event names.
const (
	EventCreate       = "create"
	EventUpdate       = "update"
	EventDelete       = "delete"
	EventNotification = "notification"
	EventTimeout      = "timeout"
)

// TypedEvent returns the per-type spelling of an event, e.g. "User#create".
func TypedEvent(typeName, event string) string {
	return typeName + "#" + event
}

// Traits tune a search.
type Traits struct {
	Limit  int
	Offset int
	// Fields restricts the content keys returned.
	Fields []string
	// Order lists content keys (or $id, $created, $updated); a leading "-"
	// sorts descending.
	Order []string
	// Documents lists "path" or "path|Type" entries whose values are ids of
	// related documents to load into Document.Documents.
	Documents []string
}

// ParseTraits reads the search traits out of a decoded traits payload.
// Unknown keys are ignored so session-level traits such as timeout can share
// the same object.
func ParseTraits(raw map[string]any) (Traits, error) {
	var traits Traits
	var err error
	if traits.Limit, err = intTrait(raw, "limit"); err != nil {
		return Traits{}, err
	}
	if traits.Offset, err = intTrait(raw, "offset"); err != nil {
		return Traits{}, err
	}
	traits.Fields = listTrait(raw, "fields")
	traits.Order = listTrait(raw, "order")
	traits.Documents = listTrait(raw, "documents")
	return traits, nil
}

func intTrait(raw map[string]any, key string) (int, error) {
	value, ok := raw[key]
	if !ok || value == nil {
		return 0, nil
	}
	switch v := value.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("traits.%s: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("traits.%s: unsupported value %v", key, value)
	}
}

func listTrait(raw map[string]any, key string) []string {
	value, ok := raw[key]
	if !ok || value == nil {
		return nil
	}
	var items []string
	switch v := value.(type) {
	case string:
		items = strings.Split(v, ",")
	case []any:
		for _, item := range v {
			items = append(items, fmt.Sprint(item))
		}
	case []string:
		items = v
	default:
		items = []string{fmt.Sprint(v)}
	}
	out := items[:0:0]
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if child, ok := v.(map[string]any); ok {
			out[k] = cloneMap(child)
			continue
		}
		out[k] = v
	}
	return out
}
