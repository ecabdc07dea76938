package ics

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"

	"evstage/internal/model"
)

var encodeNow = time.Date(2025, 5, 20, 8, 0, 0, 0, time.UTC)

func TestEncode_RoundTrip(t *testing.T) {
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 1, 11, 30, 0, 0, time.UTC)
	in := model.Event{
		ID:          "evt-1",
		Title:       "Team Meeting",
		Start:       &start,
		End:         &end,
		Location:    "Room 4",
		Description: "Agenda:\nLine one\r\nLine two",
	}

	out := Encode([]model.Event{in}, encodeNow)

	events, err := Parse(out, testStamp)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	got := events[0]
	if got.Title != in.Title || got.Location != in.Location {
		t.Errorf("title/location mismatch: %+v", got)
	}
	if got.Start == nil || !got.Start.Equal(start) {
		t.Errorf("start mismatch: %v", got.Start)
	}
	if got.End == nil || !got.End.Equal(end) {
		t.Errorf("end mismatch: %v", got.End)
	}
	if got.Description != "Agenda:\nLine one\nLine two" {
		t.Errorf("description mismatch: %q", got.Description)
	}
}

func TestEncode_Envelope(t *testing.T) {
	events := []model.Event{
		{ID: "a", Title: "Rock, Paper; Scissors\\"},
		{ID: "b", Title: "Second"},
	}
	out := Encode(events, encodeNow)

	if !strings.HasPrefix(out, "BEGIN:VCALENDAR\r\n") {
		t.Errorf("missing envelope header: %q", out[:min(len(out), 40)])
	}
	if !strings.Contains(out, "END:VCALENDAR") {
		t.Error("missing envelope footer")
	}
	if strings.Count(out, "\n") != strings.Count(out, "\r\n") {
		t.Error("found bare LF line endings")
	}
	for _, want := range []string{
		"PRODID:-//EventStaging//EN",
		"METHOD:PUBLISH",
		"CALSCALE:GREGORIAN",
		"UID:a@eventstaging",
		"UID:b@eventstaging",
		"DTSTAMP:20250520T080000Z",
		"SUMMARY:Rock  Paper  Scissors ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Count(out, "BEGIN:VEVENT") != 2 {
		t.Errorf("expected 2 VEVENT blocks")
	}
	if strings.Contains(out, "LOCATION") || strings.Contains(out, "DESCRIPTION") {
		t.Error("empty optional fields should be omitted")
	}

	// The output must also be readable by a full iCalendar implementation.
	cal, err := ical.ParseCalendar(strings.NewReader(out))
	if err != nil {
		t.Fatalf("golang-ical could not parse output: %v", err)
	}
	if n := len(cal.Events()); n != 2 {
		t.Errorf("golang-ical saw %d events, want 2", n)
	}
}

func TestEncode_BareCarriageReturn(t *testing.T) {
	out := Encode([]model.Event{{ID: "cr", Title: "Notes", Description: "one\rtwo\r\nthree"}}, encodeNow)

	if strings.Count(out, "\r") != strings.Count(out, "\r\n") {
		t.Errorf("found a bare CR in output: %q", out)
	}
	events, _ := Parse(out, testStamp)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Description != "one\ntwo\nthree" {
		t.Errorf("description = %q", events[0].Description)
	}
}

func TestEncode_DefaultsForUndatedEvent(t *testing.T) {
	out := Encode([]model.Event{{ID: "x", Title: "Someday"}}, encodeNow)

	events, _ := Parse(out, testStamp)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	wantStart := encodeNow.Add(time.Hour)
	if events[0].Start == nil || !events[0].Start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", events[0].Start, wantStart)
	}
	if events[0].End == nil || !events[0].End.Equal(wantStart.Add(time.Hour)) {
		t.Errorf("end = %v, want start+1h", events[0].End)
	}
}

func TestEncode_StartOnly(t *testing.T) {
	start := time.Date(2025, 7, 4, 18, 0, 0, 0, time.UTC)
	out := Encode([]model.Event{{ID: "x", Title: "Fireworks", Start: &start}}, encodeNow)
	events, _ := Parse(out, testStamp)
	if len(events) != 1 || events[0].End == nil || !events[0].End.Equal(start.Add(time.Hour)) {
		t.Fatalf("expected end one hour after start, got %+v", events)
	}
}

func TestEncode_Recurrence(t *testing.T) {
	start := time.Date(2025, 7, 4, 18, 0, 0, 0, time.UTC)
	out := Encode([]model.Event{{ID: "r", Title: "Weekly", Start: &start, Recurrence: "FREQ=WEEKLY;COUNT=4"}}, encodeNow)
	if !strings.Contains(out, "RRULE:FREQ=WEEKLY;COUNT=4") {
		t.Errorf("missing RRULE in %q", out)
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		events []model.Event
		want   string
	}{
		{[]model.Event{{Title: "Team Meeting #3"}}, "Team_Meeting__3.ics"},
		{[]model.Event{{Title: ""}}, "event.ics"},
		{[]model.Event{{Title: "a"}, {Title: "b"}}, "selected_events.ics"},
		{nil, "selected_events.ics"},
	}
	for _, tt := range tests {
		if got := Filename(tt.events); got != tt.want {
			t.Errorf("Filename(%v) = %q, want %q", tt.events, got, tt.want)
		}
	}
}
