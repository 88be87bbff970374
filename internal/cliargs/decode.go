package cliargs

import (
	"regexp"
	"strconv"
	"strings"

	"nopg/internal/nopgerr"
)

// DefaultFieldSeparator splits array flag values.
const DefaultFieldSeparator = ","

// Decoded holds the payload flags pulled out of argv. Keys keep their
// command-line spelling with the prefix dropped.
type Decoded struct {
	Where  map[string]any
	Set    map[string]any
	Traits map[string]any
	// Rest is argv without the payload flags, in order.
	Rest []string
}

var numericPattern = regexp.MustCompile(`^(?:0[xX][0-9a-fA-F]+|[-+]?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][-+]?\d+)?)$`)

// FlattenDecode extracts --where-*, --set-* and --traits-* flags (and their
// --no- negations) from argv. Without a schema a bare flag is true and
// numeric values become numbers. With a schema, boolean keys never consume
// the next word, array keys are split on fieldSep and accumulate, and string
// keys are kept verbatim. Everything after a bare "--" is passed through.
func FlattenDecode(argv []string, schema *ArgSchema, fieldSep string) (Decoded, error) {
	if fieldSep == "" {
		fieldSep = DefaultFieldSeparator
	}
	out := Decoded{
		Where:  map[string]any{},
		Set:    map[string]any{},
		Traits: map[string]any{},
	}

	for i := 0; i < len(argv); i++ {
		word := argv[i]
		if word == "--" {
			out.Rest = append(out.Rest, argv[i:]...)
			break
		}
		if !strings.HasPrefix(word, "--") {
			out.Rest = append(out.Rest, word)
			continue
		}

		name, value, hasValue := strings.Cut(word[2:], "=")
		negated := false
		if rest, ok := strings.CutPrefix(name, "no-"); ok && payloadPrefix(rest) != "" {
			name, negated = rest, true
		}
		prefix := payloadPrefix(name)
		if prefix == "" {
			out.Rest = append(out.Rest, word)
			continue
		}
		key := strings.TrimPrefix(name, prefix)
		if key == "" {
			return Decoded{}, nopgerr.Invalid("flag --%s has no key", name)
		}
		target := out.target(prefix)

		if negated {
			if hasValue {
				return Decoded{}, nopgerr.Invalid("flag --no-%s does not take a value", name)
			}
			target[key] = false
			continue
		}

		switch schema.Kind(name) {
		case KindBoolean:
			if !hasValue {
				target[key] = true
				continue
			}
			b, err := strconv.ParseBool(value)
			if err != nil {
				return Decoded{}, nopgerr.Invalid("flag --%s expects a boolean, got %q", name, value)
			}
			target[key] = b
		case KindArray:
			if !hasValue {
				if i+1 >= len(argv) {
					return Decoded{}, nopgerr.Invalid("flag --%s expects a value", name)
				}
				i++
				value = argv[i]
			}
			list, _ := target[key].([]any)
			for _, item := range strings.Split(value, fieldSep) {
				list = append(list, item)
			}
			target[key] = list
		case KindString:
			if !hasValue {
				if i+1 >= len(argv) {
					return Decoded{}, nopgerr.Invalid("flag --%s expects a value", name)
				}
				i++
				value = argv[i]
			}
			target[key] = value
		default:
			var decoded any = true
			switch {
			case hasValue:
				decoded = Coerce(value)
			case i+1 < len(argv) && !strings.HasPrefix(argv[i+1], "-"):
				i++
				decoded = Coerce(argv[i])
			}
			accumulate(target, key, decoded)
		}
	}
	return out, nil
}

func (d Decoded) target(prefix string) map[string]any {
	switch prefix {
	case PrefixWhere:
		return d.Where
	case PrefixSet:
		return d.Set
	default:
		return d.Traits
	}
}

func payloadPrefix(name string) string {
	for _, prefix := range []string{PrefixWhere, PrefixSet, PrefixTraits} {
		if strings.HasPrefix(name, prefix) {
			return prefix
		}
	}
	return ""
}

// accumulate turns a repeated untyped key into a list.
func accumulate(target map[string]any, key string, value any) {
	existing, ok := target[key]
	if !ok {
		target[key] = value
		return
	}
	if list, ok := existing.([]any); ok {
		target[key] = append(list, value)
		return
	}
	target[key] = []any{existing, value}
}

// Coerce converts an untyped command-line value: numeric strings become
// numbers and true/false become booleans.
func Coerce(value string) any {
	switch value {
	case "true":
		return true
	case "false":
		return false
	}
	if !numericPattern.MatchString(value) {
		return value
	}
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		if n, err := strconv.ParseInt(value[2:], 16, 64); err == nil {
			return float64(n)
		}
		return value
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

// SplitPositional separates the leading pid words from the command words.
func SplitPositional(words []string) ([]int, []string) {
	var pids []int
	for i, word := range words {
		pid, err := strconv.Atoi(word)
		if err != nil || pid <= 0 {
			return pids, words[i:]
		}
		pids = append(pids, pid)
	}
	return pids, nil
}
