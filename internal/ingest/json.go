package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"evstage/internal/dates"
	"evstage/internal/model"
)

// untitled is the placeholder title for records that name no title field.
const untitled = "Untitled"

// wrapperKeys are tried in order when the JSON root is an object.
var wrapperKeys = []string{"events", "items", "data", "results", "entries", "calendar"}

// Candidate keys per canonical field, first present value wins.
var (
	jsonTitleKeys    = []string{"title", "summary", "name", "subject", "event"}
	jsonStartKeys    = []string{"start", "startDate", "start_date", "date", "when", "dtstart"}
	jsonEndKeys      = []string{"end", "endDate", "end_date", "dtend"}
	jsonLocationKeys = []string{"location", "place", "venue", "where"}
	jsonDescKeys     = []string{"description", "details", "notes", "body"}

	// nestedDateKeys covers {"start": {"dateTime": "..."}} as exported by
	// Google Calendar.
	nestedDateKeys = []string{"dateTime", "date"}
)

// ParseJSON reads an array of event objects, either at the root or under one
// of the common wrapper keys. A record is kept when it has a real title, a
// start date, or both.
func ParseJSON(text string, stamp model.Stamp) ([]model.Event, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, malformed("json", err.Error())
	}
	if err := dec.Decode(new(json.RawMessage)); !errors.Is(err, io.EOF) {
		return nil, malformed("json", "trailing data after top-level value")
	}

	items, ok := eventArray(root)
	if !ok {
		return nil, nil
	}

	events := make([]model.Event, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}

		title := firstText(obj, jsonTitleKeys)
		if title == "" {
			title = untitled
		}
		ev := stamp.New(title)
		ev.Start = firstDate(obj, jsonStartKeys)
		ev.End = firstDate(obj, jsonEndKeys)
		ev.Location = firstText(obj, jsonLocationKeys)
		ev.Description = firstText(obj, jsonDescKeys)

		if ev.Title == untitled && ev.Start == nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func eventArray(root any) ([]any, bool) {
	switch v := root.(type) {
	case []any:
		return v, true
	case map[string]any:
		for _, key := range wrapperKeys {
			if arr, ok := v[key].([]any); ok {
				return arr, true
			}
		}
	}
	return nil, false
}

// firstText returns the first candidate whose value is a non-blank string
// or a number.
func firstText(obj map[string]any, keys []string) string {
	for _, k := range keys {
		if s := scalarText(obj[k]); s != "" {
			return s
		}
	}
	return ""
}

// firstDate normalizes the first candidate that carries a value. A value
// that does not normalize leaves the date absent; later candidates are not
// consulted.
func firstDate(obj map[string]any, keys []string) *time.Time {
	for _, k := range keys {
		v, present := obj[k]
		if !present {
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			if s := firstText(nested, nestedDateKeys); s != "" {
				return dates.NormalizePtr(s)
			}
			continue
		}
		if s := scalarText(v); s != "" {
			return dates.NormalizePtr(s)
		}
	}
	return nil
}

func scalarText(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
