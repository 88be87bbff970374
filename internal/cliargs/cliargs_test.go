package cliargs_test

import (
	"errors"
	"reflect"
	"slices"
	"testing"

	"nopg/internal/cliargs"
	"nopg/internal/nopgerr"
)

func userType() *cliargs.TypeDescriptor {
	return &cliargs.TypeDescriptor{
		Name: "User",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"active": map[string]any{"type": "boolean"},
				"tags":   map[string]any{"type": "array"},
				"title":  map[string]any{"type": "string"},
				"age":    map[string]any{"type": "integer"},
				"profile": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"verified": map[string]any{"type": []any{"boolean", "null"}},
					},
				},
			},
		},
	}
}

func TestFlattenDecodeUntyped(t *testing.T) {
	argv := []string{"search", "User", "--where-name=x", "--where-age", "42", "--set-flag", "--traits-limit=5", "--format", "json", "--no-where-done", "--", "--set-ignored"}
	got, err := cliargs.FlattenDecode(argv, nil, "")
	if err != nil {
		t.Fatalf("FlattenDecode: %v", err)
	}
	wantWhere := map[string]any{"name": "x", "age": 42.0, "done": false}
	if !reflect.DeepEqual(got.Where, wantWhere) {
		t.Fatalf("where = %v", got.Where)
	}
	if !reflect.DeepEqual(got.Set, map[string]any{"flag": true}) {
		t.Fatalf("set = %v", got.Set)
	}
	if !reflect.DeepEqual(got.Traits, map[string]any{"limit": 5.0}) {
		t.Fatalf("traits = %v", got.Traits)
	}
	wantRest := []string{"search", "User", "--format", "json", "--", "--set-ignored"}
	if !slices.Equal(got.Rest, wantRest) {
		t.Fatalf("rest = %v", got.Rest)
	}
}

func TestFlattenDecodeRepeatedUntypedKeyAccumulates(t *testing.T) {
	got, err := cliargs.FlattenDecode([]string{"--where-id=a", "--where-id=b", "--where-id=c"}, nil, "")
	if err != nil {
		t.Fatalf("FlattenDecode: %v", err)
	}
	if !reflect.DeepEqual(got.Where["id"], []any{"a", "b", "c"}) {
		t.Fatalf("id = %v", got.Where["id"])
	}
}

func TestFlattenDecodeWithSchema(t *testing.T) {
	schema := cliargs.DeriveArgSchema(userType())
	argv := []string{"update", "User", "--set-active", "Bob", "--set-tags=a,b", "--set-tags", "c", "--set-title", "007", "--where-profile-verified=false", "--set-age=3"}
	got, err := cliargs.FlattenDecode(argv, &schema, ",")
	if err != nil {
		t.Fatalf("FlattenDecode: %v", err)
	}
	want := map[string]any{"active": true, "tags": []any{"a", "b", "c"}, "title": "007", "age": 3.0}
	if !reflect.DeepEqual(got.Set, want) {
		t.Fatalf("set = %#v", got.Set)
	}
	if got.Where["profile-verified"] != false {
		t.Fatalf("where = %v", got.Where)
	}
	if !slices.Equal(got.Rest, []string{"update", "User", "Bob"}) {
		t.Fatalf("boolean flag must not consume the next word, rest = %v", got.Rest)
	}
}

func TestFlattenDecodeCustomSeparator(t *testing.T) {
	schema := cliargs.DeriveArgSchema(userType())
	got, err := cliargs.FlattenDecode([]string{"--set-tags=a;b"}, &schema, ";")
	if err != nil {
		t.Fatalf("FlattenDecode: %v", err)
	}
	if !reflect.DeepEqual(got.Set["tags"], []any{"a", "b"}) {
		t.Fatalf("tags = %v", got.Set["tags"])
	}
}

func TestFlattenDecodeErrors(t *testing.T) {
	schema := cliargs.DeriveArgSchema(userType())
	for _, argv := range [][]string{
		{"--set-"},
		{"--set-active=maybe"},
		{"--set-tags"},
		{"--no-set-active=true"},
	} {
		if _, err := cliargs.FlattenDecode(argv, &schema, ","); !errors.Is(err, nopgerr.ErrInvalidArguments) {
			t.Fatalf("FlattenDecode(%v) err = %v", argv, err)
		}
	}
}

func TestDeriveArgSchema(t *testing.T) {
	schema := cliargs.DeriveArgSchema(userType())
	wantBooleans := []string{
		"set-active", "set-profile-verified", "set-profile.verified",
		"where-active", "where-profile-verified", "where-profile.verified",
	}
	if !slices.Equal(schema.Booleans, wantBooleans) {
		t.Fatalf("booleans = %v", schema.Booleans)
	}
	if !slices.Equal(schema.Arrays, []string{"set-tags", "where-tags"}) {
		t.Fatalf("arrays = %v", schema.Arrays)
	}
	if !slices.Equal(schema.Strings, []string{"set-title", "where-title"}) {
		t.Fatalf("strings = %v", schema.Strings)
	}
	if empty := cliargs.DeriveArgSchema(nil); len(empty.Booleans)+len(empty.Arrays)+len(empty.Strings) != 0 {
		t.Fatalf("nil descriptor should derive nothing: %+v", empty)
	}
}

func TestUnflatten(t *testing.T) {
	td := userType()
	flat := map[string]any{"profile-name": "A", "profile.age": 2.0, "title": "t"}
	got := cliargs.Unflatten(flat, td)
	want := map[string]any{"profile": map[string]any{"name": "A", "age": 2.0}, "title": "t"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Unflatten = %v", got)
	}

	if again := cliargs.Unflatten(got, td); !reflect.DeepEqual(again, want) {
		t.Fatalf("Unflatten on nested input changed it: %v", again)
	}
	if same := cliargs.Unflatten(flat, nil); !reflect.DeepEqual(same, flat) {
		t.Fatalf("Unflatten without descriptor must be identity: %v", same)
	}
}

func TestUnflattenInvertsFlatten(t *testing.T) {
	nested := map[string]any{
		"a":     1.0,
		"b":     map[string]any{"c": "x", "d": map[string]any{"e": true}},
		"empty": map[string]any{},
		"list":  []any{"p", "q"},
	}
	got := cliargs.Unflatten(cliargs.Flatten(nested), userType())
	if !reflect.DeepEqual(got, nested) {
		t.Fatalf("round trip = %v", got)
	}
}

func TestSplitPositional(t *testing.T) {
	pids, rest := cliargs.SplitPositional([]string{"123", "456", "search", "User", "7"})
	if !slices.Equal(pids, []int{123, 456}) || !slices.Equal(rest, []string{"search", "User", "7"}) {
		t.Fatalf("SplitPositional = %v, %v", pids, rest)
	}
	pids, rest = cliargs.SplitPositional([]string{"start"})
	if len(pids) != 0 || !slices.Equal(rest, []string{"start"}) {
		t.Fatalf("SplitPositional = %v, %v", pids, rest)
	}
}

func TestCoerce(t *testing.T) {
	tests := map[string]any{
		"42":    42.0,
		"-1.5":  -1.5,
		"1e3":   1000.0,
		"0x10":  16.0,
		"true":  true,
		"false": false,
		"abc":   "abc",
		"1.2.3": "1.2.3",
		"":      "",
	}
	for in, want := range tests {
		if got := cliargs.Coerce(in); got != want {
			t.Fatalf("Coerce(%q) = %#v, want %#v", in, got, want)
		}
	}
}
