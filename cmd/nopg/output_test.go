package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func renderString(t *testing.T, format string, quiet bool, result string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := render(&buf, format, quiet, json.RawMessage(result)); err != nil {
		t.Fatalf("render %s: %v", format, err)
	}
	return buf.String()
}

const docsResult = `[{"$id":"a","$type":"User","name":"x","profile":{"age":1}},{"$id":"b","$type":"User","name":"y","tags":["p","q"]}]`

func TestRenderBatch(t *testing.T) {
	out := renderString(t, formatBatch, false, docsResult)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %q", out)
	}
	if lines[0] != "$id\t$type\tname\tprofile.age\ttags" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != "a\tUser\tx\t1\t" || lines[2] != "b\tUser\ty\t\tp,q" {
		t.Fatalf("rows = %q", lines[1:])
	}

	quiet := renderString(t, formatBatch, true, docsResult)
	if strings.Contains(quiet, "$id") {
		t.Fatalf("quiet batch kept header: %q", quiet)
	}
}

func TestRenderTable(t *testing.T) {
	out := renderString(t, formatTable, false, docsResult)
	for _, want := range []string{"$ID", "PROFILE.AGE", "p,q"} {
		if !strings.Contains(strings.ToUpper(out), strings.ToUpper(want)) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}

	single := renderString(t, formatTable, false, `{"pid":12,"state":"idle"}`)
	if !strings.Contains(single, "state") || !strings.Contains(single, "idle") {
		t.Fatalf("object table missing rows:\n%s", single)
	}
}

func TestRenderScalarsAndNull(t *testing.T) {
	if out := renderString(t, formatTable, false, `4242`); out != "4242\n" {
		t.Fatalf("scalar = %q", out)
	}
	if out := renderString(t, formatTable, false, `"4242@1"`); out != "4242@1\n" {
		t.Fatalf("string = %q", out)
	}
	if out := renderString(t, formatTable, false, `null`); out != "" {
		t.Fatalf("null = %q", out)
	}
	if out := renderString(t, formatBatch, false, `[]`); out != "" {
		t.Fatalf("empty list = %q", out)
	}
}

func TestRenderStructured(t *testing.T) {
	out := renderString(t, formatJSON, false, `{"b":1,"a":[true]}`)
	var decoded map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("json output %q: %v", out, err)
	}
	if !strings.Contains(out, "\n  \"a\"") {
		t.Fatalf("json output not indented: %q", out)
	}

	yml := renderString(t, formatYAML, false, `{"name":"x","tags":["p"]}`)
	if yml != "name: x\ntags:\n  - p\n" {
		t.Fatalf("yaml = %q", yml)
	}
}

func TestAlignments(t *testing.T) {
	got := alignments([][]string{{"a", "1", ""}, {"b", "2.5", "x"}})
	want := []columnAlignment{alignLeft, alignRight, alignLeft}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("alignments = %v, want %v", got, want)
		}
	}
}
