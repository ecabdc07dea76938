package dates

import (
	"strings"
	"time"
)

// DecodeICS reads an iCalendar DATE or DATE-TIME value
// (YYYYMMDD[THHMM[SS]][Z]). Everything except digits and 'T' is dropped
// first, so parameter debris and the UTC marker do not matter. Missing
// hour, minute and second default to zero. Values are treated as UTC.
func DecodeICS(v string) (time.Time, bool) {
	var b strings.Builder
	for _, r := range v {
		if (r >= '0' && r <= '9') || r == 'T' {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if len(clean) < 8 {
		return time.Time{}, false
	}

	hh, mm, ss := "00", "00", "00"
	if len(clean) >= 11 {
		hh = clean[9:11]
	}
	if len(clean) >= 13 {
		mm = clean[11:13]
	}
	if len(clean) >= 15 {
		ss = clean[13:15]
	}

	// time.Parse rejects out-of-range fields, which is the validation we want.
	t, err := time.Parse("20060102 150405", clean[:8]+" "+hh+mm+ss)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DecodeICSPtr is DecodeICS for optional fields.
func DecodeICSPtr(v string) *time.Time {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	t, ok := DecodeICS(v)
	if !ok {
		return nil
	}
	return &t
}
