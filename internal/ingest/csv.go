package ingest

import (
	"strings"

	"evstage/internal/dates"
	"evstage/internal/model"
)

// Header synonyms, matched as substrings of the normalized header cell.
var (
	titleHeaders    = []string{"title", "subject", "summary", "event", "name"}
	startHeaders    = []string{"start", "date", "begin", "when", "dtstart"}
	endHeaders      = []string{"end", "finish", "dtend", "enddate", "endtime"}
	locationHeaders = []string{"location", "place", "where", "venue"}
	descHeaders     = []string{"description", "details", "notes", "body", "desc"}
)

// columns maps canonical fields to cell indexes; -1 means not present.
type columns struct {
	title, start, end, location, desc int
}

// positionalColumns is used when the header row names neither a title nor a
// start column.
var positionalColumns = columns{title: 0, start: 1, end: 2, location: 3, desc: 4}

// ParseDelimited reads comma, tab or semicolon separated text whose first
// non-blank line is a header row.
//
// Column identity comes from the header names, so column order does not
// matter, unless no title-like and no start-like header exists; then the
// columns are read positionally. Rows with an empty title cell are dropped.
func ParseDelimited(text string, stamp model.Stamp) ([]model.Event, error) {
	lines := nonBlankLines(text)
	if len(lines) < 2 {
		return nil, malformed("csv", "need a header and at least one data line")
	}

	headers := splitRecord(lines[0])
	for i, h := range headers {
		headers[i] = normalizeHeader(h)
	}

	cols := columns{
		title:    findColumn(headers, titleHeaders),
		start:    findColumn(headers, startHeaders),
		end:      findColumn(headers, endHeaders),
		location: findColumn(headers, locationHeaders),
		desc:     findColumn(headers, descHeaders),
	}
	if cols.title < 0 && cols.start < 0 {
		cols = positionalColumns
	} else if cols.title < 0 {
		cols.title = 0
	}

	events := make([]model.Event, 0, len(lines)-1)
	for _, line := range lines[1:] {
		cells := splitRecord(line)

		ev := stamp.New(cell(cells, cols.title))
		if !ev.HasTitle() {
			continue
		}
		ev.Start = dates.NormalizePtr(cell(cells, cols.start))
		ev.End = dates.NormalizePtr(cell(cells, cols.end))
		ev.Location = cell(cells, cols.location)
		ev.Description = cell(cells, cols.desc)
		events = append(events, ev)
	}
	return events, nil
}

// splitRecord tokenizes one line. A double quote toggles quoted mode and is
// itself dropped; outside quotes, comma, tab and semicolon end a cell. Cells
// are trimmed.
//
// Doubled quotes inside a quoted cell are not unescaped: "a ""b"" c" reads
// as `a b c`.
func splitRecord(line string) []string {
	var (
		cells    []string
		cur      strings.Builder
		inQuotes bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case (r == ',' || r == '\t' || r == ';') && !inQuotes:
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(cells, strings.TrimSpace(cur.String()))
}

// normalizeHeader lowercases and keeps only ASCII letters and digits.
func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// findColumn returns the first header containing any of the names.
func findColumn(headers, names []string) int {
	for i, h := range headers {
		for _, n := range names {
			if strings.Contains(h, n) {
				return i
			}
		}
	}
	return -1
}

func cell(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}

func nonBlankLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSuffix(l, "\r")
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
