package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetLevel(LevelInfo)
	SetOutput(&buf)
	return &buf
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		m := map[string]any{}
		if err := json.Unmarshal([]byte(l), &m); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", l, err)
		}
		out = append(out, m)
	}
	return out
}

func TestInfoWritesPairs(t *testing.T) {
	buf := capture(t)

	Info("import completed", "format", "CSV", "events", 2, "dangling")

	got := lines(t, buf)
	if len(got) != 1 {
		t.Fatalf("expected 1 line, got %d", len(got))
	}
	if got[0]["message"] != "import completed" || got[0]["level"] != "info" {
		t.Errorf("unexpected line: %v", got[0])
	}
	if got[0]["format"] != "CSV" || got[0]["events"] != float64(2) {
		t.Errorf("pairs missing: %v", got[0])
	}
	if _, ok := got[0]["dangling"]; ok {
		t.Errorf("odd trailing key should be ignored: %v", got[0])
	}
}

func TestErrorCarriesErr(t *testing.T) {
	buf := capture(t)

	Error("feed refresh failed", errors.New("boom"), "url", "https://example.com/cal.ics")

	got := lines(t, buf)
	if len(got) != 1 || got[0]["error"] != "boom" || got[0]["level"] != "error" {
		t.Errorf("unexpected line: %v", got)
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)

	Debug("hidden")
	SetLevel(LevelError)
	Info("also hidden")
	Error("shown", nil)
	SetLevel(LevelDebug)
	Debug("visible")
	SetLevel(LevelInfo)

	got := lines(t, buf)
	if len(got) != 2 || got[0]["message"] != "shown" || got[1]["message"] != "visible" {
		t.Errorf("unexpected lines: %v", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":  LevelDebug,
		" INFO ": LevelInfo,
		"Error":  LevelError,
		"":       LevelInfo,
		"trace":  LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %q, want %q", in, got, want)
		}
	}
}
