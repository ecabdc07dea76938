package ics

import (
	"regexp"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"evstage/internal/model"
)

const (
	// MediaType is the declared type of an encoded export.
	MediaType = "text/calendar; charset=utf-8"

	productID = "-//EventStaging//EN"
	uidSuffix = "@eventstaging"

	multiEventFilename = "selected_events.ics"
	defaultDuration    = time.Hour
)

var (
	reservedChars  = strings.NewReplacer(",", " ", ";", " ", `\`, " ")
	lineBreaks     = strings.NewReplacer("\r\n", "\n", "\r", "\n")
	filenameUnsafe = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// Encode renders events as one VCALENDAR document with CRLF line endings.
//
// Every VEVENT is schedulable even when the event has no dates: a missing
// start becomes now+1h and a missing end becomes start+1h. Commas,
// semicolons and backslashes in text fields are replaced by a space rather
// than escaped; description newlines survive as the \n escape. Titles are
// not re-validated here.
func Encode(events []model.Event, now time.Time) string {
	now = now.UTC()

	cal := ical.NewCalendar()
	cal.SetVersion("2.0")
	cal.SetProductId(productID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ical.MethodPublish)

	for _, ev := range events {
		addEvent(cal, ev, now)
	}

	return cal.Serialize(ical.WithNewLineWindows)
}

func addEvent(cal *ical.Calendar, ev model.Event, now time.Time) {
	start := now.Add(defaultDuration)
	if ev.Start != nil {
		start = ev.Start.UTC()
	}
	end := start.Add(defaultDuration)
	if ev.End != nil {
		end = ev.End.UTC()
	}

	vev := cal.AddEvent(ev.ID + uidSuffix)
	vev.SetDtStampTime(now)
	vev.SetStartAt(start)
	vev.SetEndAt(end)
	vev.SetSummary(plainText(ev.Title))
	if ev.Location != "" {
		vev.SetLocation(plainText(ev.Location))
	}
	if ev.Description != "" {
		vev.SetDescription(plainText(ev.Description))
	}
	if ev.Recurrence != "" {
		vev.AddRrule(ev.Recurrence)
	}
}

// plainText drops the characters iCalendar would otherwise need escaped.
// Newlines, including a bare CR, are kept; the library writes them as \n.
func plainText(s string) string {
	s = lineBreaks.Replace(s)
	return reservedChars.Replace(s)
}

// Filename is the download name for an export: the sanitized title for a
// single event, a fixed name otherwise.
func Filename(events []model.Event) string {
	if len(events) != 1 {
		return multiEventFilename
	}
	title := events[0].Title
	if title == "" {
		title = "event"
	}
	return filenameUnsafe.ReplaceAllString(title, "_") + ".ics"
}
