package cliargs

import (
	"slices"
	"strings"
)

// Payload prefixes recognized on the command line.
const (
	PrefixWhere  = "where-"
	PrefixSet    = "set-"
	PrefixTraits = "traits-"
)

// TypeDescriptor is the part of a published type the marshaller needs.
type TypeDescriptor struct {
	Name   string         `json:"$name"`
	Schema map[string]any `json:"$schema"`
}

// Kind is the decoding applied to a flag's value.
type Kind int

const (
	KindUntyped Kind = iota
	KindBoolean
	KindArray
	KindString
)

// ArgSchema lists flag spellings by the decoding they need. Each field path
// appears under set- and where-, dotted and dashed; top-level paths have a
// single spelling per prefix.
type ArgSchema struct {
	Booleans []string
	Arrays   []string
	Strings  []string
}

// Kind reports how flag (without leading dashes) should be decoded.
func (s *ArgSchema) Kind(flag string) Kind {
	if s == nil {
		return KindUntyped
	}
	switch {
	case slices.Contains(s.Booleans, flag):
		return KindBoolean
	case slices.Contains(s.Arrays, flag):
		return KindArray
	case slices.Contains(s.Strings, flag):
		return KindString
	}
	return KindUntyped
}

// DeriveArgSchema walks every leaf of td's schema properties. Booleans are
// parsed as flags, arrays are split, strings stay strings. Numeric leaves are
// left untyped so they keep numeric coercion.
func DeriveArgSchema(td *TypeDescriptor) ArgSchema {
	var schema ArgSchema
	if td == nil {
		return schema
	}
	walkProperties(td.Schema, "", func(path, kind string) {
		var target *[]string
		switch kind {
		case "boolean":
			target = &schema.Booleans
		case "array":
			target = &schema.Arrays
		case "number", "integer":
			return
		default:
			target = &schema.Strings
		}
		*target = append(*target, spellings(path)...)
	})
	for _, list := range []*[]string{&schema.Booleans, &schema.Arrays, &schema.Strings} {
		slices.Sort(*list)
		*list = slices.Compact(*list)
	}
	return schema
}

func walkProperties(node map[string]any, prefix string, visit func(path, kind string)) {
	props, ok := node["properties"].(map[string]any)
	if !ok {
		return
	}
	for name, raw := range props {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		def, _ := raw.(map[string]any)
		kind := schemaKind(def)
		if kind == "object" {
			if _, nested := def["properties"].(map[string]any); nested {
				walkProperties(def, path, visit)
				continue
			}
		}
		visit(path, kind)
	}
}

// schemaKind reads a JSON-schema "type", which may be a list such as
// ["string", "null"].
func schemaKind(def map[string]any) string {
	switch v := def["type"].(type) {
	case string:
		return v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "null" {
				return s
			}
		}
	}
	return ""
}

func spellings(path string) []string {
	dashed := strings.ReplaceAll(path, ".", "-")
	return []string{
		PrefixSet + path,
		PrefixSet + dashed,
		PrefixWhere + path,
		PrefixWhere + dashed,
	}
}
