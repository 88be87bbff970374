package session

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"nopg/internal/nopgerr"
)

// Args is the content of every command request.
type Args struct {
	Positional []string       `json:"_,omitempty"`
	Where      map[string]any `json:"where,omitempty"`
	Set        map[string]any `json:"set,omitempty"`
	Traits     map[string]any `json:"traits,omitempty"`
	PG         string         `json:"pg,omitempty"`
	Schema     map[string]any `json:"schema,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

func decodeArgs(content json.RawMessage) (Args, error) {
	var args Args
	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" || trimmed == "null" {
		return args, nil
	}
	if err := json.Unmarshal(content, &args); err != nil {
		return Args{}, nopgerr.Wrap(nopgerr.ErrInvalidArguments, "decode arguments", err)
	}
	return args, nil
}

// arg returns the i-th positional word or "".
func (a Args) arg(i int) string {
	if i < len(a.Positional) {
		return a.Positional[i]
	}
	return ""
}

func (a Args) require(i int, what string) (string, error) {
	value := a.arg(i)
	if value == "" {
		return "", nopgerr.Invalid("missing %s", what)
	}
	return value, nil
}

// parseTimeout reads traits.timeout in milliseconds. Numbers and numeric
// strings are accepted; absent means fallback.
func parseTimeout(traits map[string]any, fallback time.Duration) (time.Duration, error) {
	raw, ok := traits["timeout"]
	if !ok || raw == nil {
		return fallback, nil
	}
	var ms float64
	switch v := raw.(type) {
	case float64:
		ms = v
	case int:
		ms = float64(v)
	case int64:
		ms = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, nopgerr.Invalid("timeout %q is not a number", v.String())
		}
		ms = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, nopgerr.Invalid("timeout %q is not a number", v)
		}
		ms = f
	default:
		return 0, nopgerr.Invalid("timeout has unsupported type %s", fmt.Sprintf("%T", raw))
	}
	if ms <= 0 {
		return 0, nil
	}
	return time.Duration(ms * float64(time.Millisecond)), nil
}
