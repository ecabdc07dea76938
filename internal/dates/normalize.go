// Package dates turns date/time text from event sources into UTC
// timestamps.
//
// Two decoders exist. Normalize is the lenient one used for human-authored
// input (spreadsheets, JSON exports, feeds). DecodeICS is the strict
// fixed-width decoder used only for iCalendar values, which are never
// ambiguous. Neither returns an error: a value that cannot be read is simply
// absent.
package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// minPlausibleYear guards the generic parser, which happily reads garbage
// such as "0" or "12" as a year.
const minPlausibleYear = 1970

var numericDateRe = regexp.MustCompile(
	`(?i)^(\d{1,2})[/-](\d{1,2})[/-](\d{2,4})(?:\s+(\d{1,2}):(\d{2})(?::(\d{2}))?\s*(AM|PM)?)?$`,
)

// Normalize interprets s as a date or date-time. Timezone-less values are
// read as UTC. The result is always in UTC.
//
// Order:
//  1. a generic parse of the whole string, kept only when year > 1970
//  2. A/B/Y numeric dates with optional "H:MM[:SS] [AM|PM]"; month-first
//     unless the first component is > 12
func Normalize(s string) (time.Time, bool) {
	v := strings.TrimSpace(s)
	if v == "" {
		return time.Time{}, false
	}

	if t, ok := generic(v); ok && t.Year() > minPlausibleYear {
		return t.UTC(), true
	}

	if t, ok := numeric(v); ok {
		return t, true
	}
	return time.Time{}, false
}

// NormalizePtr is Normalize for callers that store optional dates.
func NormalizePtr(s string) *time.Time {
	t, ok := Normalize(s)
	if !ok {
		return nil
	}
	return &t
}

func generic(v string) (t time.Time, ok bool) {
	// dateparse has panicked on pathological input in the past.
	defer func() {
		if r := recover(); r != nil {
			t, ok = time.Time{}, false
		}
	}()

	parsed, err := dateparse.ParseIn(v, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

func numeric(v string) (time.Time, bool) {
	m := numericDateRe.FindStringSubmatch(v)
	if m == nil {
		return time.Time{}, false
	}

	a, _ := strconv.Atoi(m[1])
	b, _ := strconv.Atoi(m[2])
	yr := m[3]
	if len(yr) == 2 {
		yr = "20" + yr
	}
	year, _ := strconv.Atoi(yr)

	month, day := a, b
	if month > 12 {
		month, day = b, a
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	hour, minute, sec := 0, 0, 0
	if m[4] != "" {
		hour, _ = strconv.Atoi(m[4])
		minute, _ = strconv.Atoi(m[5])
		if m[6] != "" {
			sec, _ = strconv.Atoi(m[6])
		}
	}
	switch strings.ToUpper(m[7]) {
	case "PM":
		if hour < 12 {
			hour += 12
		}
	case "AM":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 || minute > 59 || sec > 59 {
		return time.Time{}, false
	}

	return time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.UTC), true
}
