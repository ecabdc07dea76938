package ingest

import (
	"errors"
	"testing"
	"time"
)

func TestParseJSON_RootArray(t *testing.T) {
	text := `[
		{"title": "Game 1", "start": "2025-04-01T19:05:00Z", "end": "2025-04-01T22:00:00Z", "venue": "Citizens Bank Park"},
		{"summary": "  ", "name": "Game 2", "date": "04/02/2025 1:05 PM", "notes": "Day game"},
		{"location": "Nowhere"},
		{"startDate": "2025-04-05"},
		"not an object",
		{"subject": "Bad date", "when": "sometime soon"}
	]`

	events, err := ParseJSON(text, testStamp)
	if err != nil {
		t.Fatalf("ParseJSON error: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}

	if events[0].Title != "Game 1" || events[0].Location != "Citizens Bank Park" {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[0].End == nil || events[0].End.Hour() != 22 {
		t.Errorf("unexpected end: %v", events[0].End)
	}
	if events[1].Title != "Game 2" || events[1].Description != "Day game" {
		t.Errorf("blank summary should fall through to name: %+v", events[1])
	}
	want := time.Date(2025, 4, 2, 13, 5, 0, 0, time.UTC)
	if events[1].Start == nil || !events[1].Start.Equal(want) {
		t.Errorf("start = %v, want %v", events[1].Start, want)
	}
	// Untitled but dated records are kept with the placeholder.
	if events[2].Title != "Untitled" || events[2].Start == nil {
		t.Errorf("expected dated placeholder record, got %+v", events[2])
	}
	// Titled records survive an unreadable date.
	if events[3].Title != "Bad date" || events[3].Start != nil {
		t.Errorf("unexpected last event: %+v", events[3])
	}
}

func TestParseJSON_WrapperKeys(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"events", `{"events": [{"title": "a"}]}`, 1},
		{"items before data", `{"data": [{"title": "a"}, {"title": "b"}], "items": [{"title": "c"}]}`, 1},
		{"skips non-array wrapper", `{"events": {"title": "x"}, "results": [{"title": "a"}, {"title": "b"}]}`, 2},
		{"calendar", `{"calendar": [{"event": "Party", "when": "2025-12-31 21:00"}]}`, 1},
		{"no wrapper", `{"foo": [{"title": "a"}]}`, 0},
		{"scalar root", `"hello"`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := ParseJSON(tt.text, testStamp)
			if err != nil {
				t.Fatalf("ParseJSON error: %v", err)
			}
			if len(events) != tt.want {
				t.Errorf("got %d events, want %d", len(events), tt.want)
			}
		})
	}
}

func TestParseJSON_GoogleCalendarShape(t *testing.T) {
	text := `{"items": [{
		"summary": "Review",
		"start": {"dateTime": "2025-06-10T15:00:00+02:00"},
		"end": {"date": "2025-06-11"}
	}]}`

	events, err := ParseJSON(text, testStamp)
	if err != nil || len(events) != 1 {
		t.Fatalf("unexpected result: %v, %d", err, len(events))
	}
	if events[0].Start == nil || !events[0].Start.Equal(time.Date(2025, 6, 10, 13, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start: %v", events[0].Start)
	}
	if events[0].End == nil || events[0].End.Day() != 11 {
		t.Errorf("unexpected end: %v", events[0].End)
	}
}

func TestParseJSON_Malformed(t *testing.T) {
	for _, text := range []string{`{"events": [`, `[1, 2] trailing`, ``} {
		events, err := ParseJSON(text, testStamp)
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseJSON(%q) err = %v, want ErrMalformed", text, err)
		}
		if len(events) != 0 {
			t.Errorf("ParseJSON(%q) returned %d events", text, len(events))
		}
	}
}
