package ingest

import (
	"errors"
	"testing"
)

func TestDetect_CSVScenario(t *testing.T) {
	text := "Title,Date,Location\nTeam Meeting,2025-06-01 10:00,Room 4\n,2025-06-02,Unused\nStandup,2025-06-03,Room 1"

	out := Detect(text, testStamp)
	if out.Format != FormatCSV {
		t.Fatalf("format = %q, want %q", out.Format, FormatCSV)
	}
	if len(out.Events) != 2 || !out.Found() {
		t.Fatalf("expected 2 events, got %d", len(out.Events))
	}
	if len(out.Attempts) != 1 || out.Attempts[0].Format != FormatCSV {
		t.Errorf("unexpected attempts: %+v", out.Attempts)
	}
}

func TestDetect_CalendarMarkerWins(t *testing.T) {
	// JSON-shaped text that embeds a calendar is read as a calendar.
	text := "{\"note\": \"BEGIN:VEVENT\nSUMMARY:Hidden\nDTSTART:20250601T100000Z\nEND:VEVENT\"}"

	out := Detect(text, testStamp)
	if out.Format != FormatICS {
		t.Fatalf("format = %q, want %q", out.Format, FormatICS)
	}
	if len(out.Events) != 1 || out.Events[0].Title != "Hidden" {
		t.Fatalf("unexpected events: %+v", out.Events)
	}
	for _, a := range out.Attempts {
		if a.Format == FormatJSON {
			t.Errorf("JSON parser should not run once a calendar marker is seen")
		}
	}
}

func TestDetect_CalendarWithoutEventsIsFinal(t *testing.T) {
	text := "BEGIN:VCALENDAR\nVERSION:2.0\nEND:VCALENDAR\nTitle,Date\nA,2025-01-01"

	out := Detect(text, testStamp)
	if out.Format != FormatNone || out.Found() {
		t.Fatalf("expected no result, got %q with %d events", out.Format, len(out.Events))
	}
	if len(out.Attempts) != 1 || out.Attempts[0].Format != FormatICS {
		t.Errorf("delimited parser should not run: %+v", out.Attempts)
	}
}

func TestDetect_FallsThroughWhenEmpty(t *testing.T) {
	// Valid JSON with no usable records, spread over several lines, is
	// handed on to the delimited parser.
	text := "[\n  {\"note\": 1}\n]"

	out := Detect(text, testStamp)
	if len(out.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %+v", out.Attempts)
	}
	if a := out.Attempts[0]; a.Format != FormatJSON || a.Events != 0 || a.Err != nil {
		t.Errorf("unexpected JSON attempt: %+v", a)
	}
	if out.Format != FormatCSV {
		t.Errorf("format = %q, want %q", out.Format, FormatCSV)
	}
}

func TestDetect_NothingFound(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		attempts int
	}{
		{"empty", "", 0},
		{"whitespace", "  \n\t ", 0},
		{"single line", "hello world", 0},
		{"empty array", "[]", 1},
		{"empty rss", "<rss><channel></channel></rss>", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Detect(tt.text, testStamp)
			if out.Format != FormatNone || out.Found() {
				t.Errorf("expected nothing, got %q with %d events", out.Format, len(out.Events))
			}
			if len(out.Attempts) != tt.attempts {
				t.Errorf("attempts = %d, want %d", len(out.Attempts), tt.attempts)
			}
		})
	}
}

func TestDetect_MalformedIsRecorded(t *testing.T) {
	out := Detect(`{"events": [`, testStamp)
	if out.Found() {
		t.Fatalf("expected no events")
	}
	if len(out.Attempts) != 1 || !errors.Is(out.Attempts[0].Err, ErrMalformed) {
		t.Errorf("expected a malformed JSON attempt, got %+v", out.Attempts)
	}
}

func TestDetect_Idempotent(t *testing.T) {
	inputs := []string{
		"Title,Date,Location\nTeam Meeting,2025-06-01 10:00,Room 4\nStandup,2025-06-03,Room 1",
		`{"events": [{"title": "A", "start": "2025-02-01"}, {"title": "B"}]}`,
		`<rss><channel><item><title>X</title><pubDate>Mon, 02 Jun 2025 10:00:00 GMT</pubDate></item></channel></rss>`,
		"BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nSUMMARY:Once\r\nRRULE:FREQ=DAILY;COUNT=2\r\nEND:VEVENT\r\nEND:VCALENDAR",
	}
	for _, text := range inputs {
		a := Detect(text, testStamp)
		b := Detect(text, testStamp)
		if a.Format != b.Format {
			t.Errorf("format changed between runs: %q vs %q", a.Format, b.Format)
		}
		if !equalStrings(summarize(a.Events), summarize(b.Events)) {
			t.Errorf("events changed between runs for %q", text)
		}
		if len(a.Events) == 0 {
			t.Errorf("expected events for %q", text)
		}
	}
}
