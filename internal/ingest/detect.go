package ingest

import (
	"strings"

	"evstage/internal/ics"
	"evstage/internal/model"
)

// Format names the parser whose output was accepted.
type Format string

const (
	FormatNone Format = ""
	FormatICS  Format = "iCalendar"
	FormatJSON Format = "JSON"
	FormatXML  Format = "XML/RSS"
	FormatCSV  Format = "CSV"
)

var (
	icsMarkers  = []string{"BEGIN:VCALENDAR", "BEGIN:VEVENT"}
	xmlPrefixes = []string{"<?xml", "<rss", "<feed", "<events"}
)

// Attempt records one parser run, for diagnostics. Err is nil when the
// input was readable as the format, even if it held no events.
type Attempt struct {
	Format Format
	Events int
	Err    error
}

// Outcome is the result of detection. Format is FormatNone whenever Events
// is empty.
type Outcome struct {
	Format   Format
	Events   []model.Event
	Attempts []Attempt
}

// Found reports whether any events were extracted.
func (o Outcome) Found() bool {
	return len(o.Events) > 0
}

// Detect picks a parser from structural signals in text and returns what it
// extracted. Checks run in this order:
//
//  1. an iCalendar begin marker anywhere: iCalendar, final either way
//  2. leading '{' or '[': JSON, kept only if it yields events
//  3. leading XML declaration or <rss, <feed, <events: XML, same rule
//  4. two or more non-blank lines: delimited text, same rule
//
// The iCalendar marker check deliberately ignores the leading character, so
// a JSON document embedding a calendar is read as a calendar.
func Detect(text string, stamp model.Stamp) Outcome {
	trimmed := strings.TrimSpace(text)
	var out Outcome

	if containsAny(trimmed, icsMarkers) {
		events, err := ics.Parse(trimmed, stamp)
		out.record(FormatICS, events, err)
		return out.accept(FormatICS, events)
	}

	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		events, err := ParseJSON(trimmed, stamp)
		out.record(FormatJSON, events, err)
		if len(events) > 0 {
			return out.accept(FormatJSON, events)
		}
	}

	if hasAnyPrefix(trimmed, xmlPrefixes) {
		events, err := ParseXML(trimmed, stamp)
		out.record(FormatXML, events, err)
		if len(events) > 0 {
			return out.accept(FormatXML, events)
		}
	}

	if len(nonBlankLines(trimmed)) >= 2 {
		events, err := ParseDelimited(trimmed, stamp)
		out.record(FormatCSV, events, err)
		if len(events) > 0 {
			return out.accept(FormatCSV, events)
		}
	}

	return out
}

func (o *Outcome) record(f Format, events []model.Event, err error) {
	o.Attempts = append(o.Attempts, Attempt{Format: f, Events: len(events), Err: err})
}

func (o Outcome) accept(f Format, events []model.Event) Outcome {
	if len(events) == 0 {
		o.Format = FormatNone
		o.Events = nil
		return o
	}
	o.Format = f
	o.Events = events
	return o
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
