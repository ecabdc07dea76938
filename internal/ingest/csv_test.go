package ingest

import (
	"sort"
	"testing"
	"time"

	"evstage/internal/model"
)

var testStamp = model.Stamp{Category: "Home", Source: "upload"}

func TestParseDelimited_DropsBlankTitleRows(t *testing.T) {
	text := "Title,Date,Location\nTeam Meeting,2025-06-01 10:00,Room 4\n,2025-06-02,Unused\nStandup,2025-06-03,Room 1"

	events, err := ParseDelimited(text, testStamp)
	if err != nil {
		t.Fatalf("ParseDelimited error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Title != "Team Meeting" || events[1].Title != "Standup" {
		t.Errorf("unexpected titles: %q, %q", events[0].Title, events[1].Title)
	}
	want := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if events[0].Start == nil || !events[0].Start.Equal(want) {
		t.Errorf("start = %v, want %v", events[0].Start, want)
	}
	if events[0].Location != "Room 4" || events[1].Location != "Room 1" {
		t.Errorf("unexpected locations: %q, %q", events[0].Location, events[1].Location)
	}
	if events[0].Category != "Home" || events[0].Source != "upload" {
		t.Errorf("stamp not applied: %+v", events[0])
	}
}

func TestParseDelimited_HeaderOrderIndependent(t *testing.T) {
	a := "Title,Start,Location\nConcert,2025-07-01 20:00,Arena\nPicnic,07/04/2025,Park"
	b := "Location,Title,Start\nArena,Concert,2025-07-01 20:00\nPark,Picnic,07/04/2025"

	ea, _ := ParseDelimited(a, testStamp)
	eb, _ := ParseDelimited(b, testStamp)

	if got, want := summarize(eb), summarize(ea); !equalStrings(got, want) {
		t.Errorf("reordered columns changed the result:\n got %v\nwant %v", got, want)
	}
	if len(ea) != 2 {
		t.Fatalf("expected 2 events, got %d", len(ea))
	}
}

func TestParseDelimited_PositionalFallback(t *testing.T) {
	text := "col1\tcol2\tcol3\tcol4\tcol5\n" +
		"Yoga\t2025-06-01 07:00\t2025-06-01 08:00\tStudio\tBring a mat\n" +
		"\t2025-06-02\n" +
		"Swim"

	events, err := ParseDelimited(text, testStamp)
	if err != nil {
		t.Fatalf("ParseDelimited error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	yoga := events[0]
	if yoga.Title != "Yoga" || yoga.Location != "Studio" || yoga.Description != "Bring a mat" {
		t.Errorf("positional mapping wrong: %+v", yoga)
	}
	if yoga.End == nil || yoga.End.Hour() != 8 {
		t.Errorf("unexpected end: %v", yoga.End)
	}
	if events[1].Title != "Swim" || events[1].Start != nil {
		t.Errorf("unexpected second row: %+v", events[1])
	}
}

func TestParseDelimited_SemicolonsAndQuotes(t *testing.T) {
	text := "Subject;When;Venue;Notes\r\n" +
		"\"Dinner; with friends\";25/03/2025 7:30 PM;\"Bistro, Main St\";bring wine\r\n"

	events, err := ParseDelimited(text, testStamp)
	if err != nil {
		t.Fatalf("ParseDelimited error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Title != "Dinner; with friends" {
		t.Errorf("quoted separator not preserved: %q", ev.Title)
	}
	if ev.Location != "Bistro, Main St" || ev.Description != "bring wine" {
		t.Errorf("unexpected fields: %+v", ev)
	}
	want := time.Date(2025, 3, 25, 19, 30, 0, 0, time.UTC)
	if ev.Start == nil || !ev.Start.Equal(want) {
		t.Errorf("start = %v, want %v", ev.Start, want)
	}
}

// Known limitation: doubled quotes inside a quoted cell are not restored to
// a literal quote; they simply toggle quoting off and on again.
func TestSplitRecord_DoubledQuotesNotUnescaped(t *testing.T) {
	got := splitRecord(`"She said ""hi""",x`)
	if len(got) != 2 {
		t.Fatalf("expected 2 cells, got %d: %q", len(got), got)
	}
	if got[0] != "She said hi" {
		t.Errorf("cell = %q; doubled quotes are dropped, not unescaped", got[0])
	}
}

func TestParseDelimited_TooShort(t *testing.T) {
	events, err := ParseDelimited("Title,Date\n\n   \n", testStamp)
	if err == nil || len(events) != 0 {
		t.Errorf("expected malformed error and no events, got %v, %d", err, len(events))
	}
}

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"Start Date":   "startdate",
		" EVENT_NAME ": "eventname",
		"Lieu (Où)":    "lieuo",
	}
	for in, want := range tests {
		if got := normalizeHeader(in); got != want {
			t.Errorf("normalizeHeader(%q) = %q, want %q", in, got, want)
		}
	}
}

// summarize renders events without id/createdAt so two parses can be
// compared field by field.
func summarize(events []model.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, fingerprint(ev))
	}
	sort.Strings(out)
	return out
}

func fingerprint(ev model.Event) string {
	ts := func(p *time.Time) string {
		if p == nil {
			return "-"
		}
		return p.Format(time.RFC3339)
	}
	return ev.Title + "|" + ev.Category + "|" + ts(ev.Start) + "|" + ts(ev.End) + "|" +
		ev.Location + "|" + ev.Description + "|" + ev.Source + "|" + ev.Recurrence
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
