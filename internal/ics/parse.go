package ics

import (
	"errors"
	"strings"

	"evstage/internal/dates"
	"evstage/internal/model"
)

const (
	beginEvent = "BEGIN:VEVENT"
	endEvent   = "END:VEVENT"
)

// ErrNoEvents is returned when the text has no VEVENT begin marker at all.
var ErrNoEvents = errors.New("ics: no VEVENT blocks")

// Parse extracts one event per VEVENT block.
//
//   - Blocks are found by splitting on the literal BEGIN:VEVENT marker and
//     cutting each piece at END:VEVENT, so a truncated trailing block still
//     yields whatever properties it has.
//   - A block without a non-empty SUMMARY is dropped; siblings are unaffected.
//   - DTSTART/DTEND go through the strict decoder. TZID parameters are not
//     interpreted; values are read as UTC.
func Parse(text string, stamp model.Stamp) ([]model.Event, error) {
	parts := strings.Split(text, beginEvent)
	if len(parts) < 2 {
		return nil, ErrNoEvents
	}

	events := make([]model.Event, 0, len(parts)-1)
	for _, part := range parts[1:] {
		block, _, _ := strings.Cut(part, endEvent)
		props := scanBlock(block)

		ev := stamp.New(props.text("SUMMARY"))
		if !ev.HasTitle() {
			continue
		}
		ev.Start = dates.DecodeICSPtr(props.raw("DTSTART"))
		ev.End = dates.DecodeICSPtr(props.raw("DTEND"))
		ev.Location = props.text("LOCATION")
		ev.Description = props.text("DESCRIPTION")
		ev.Recurrence = props.raw("RRULE")

		events = append(events, ev)
	}
	return events, nil
}

// blockProps holds the first value seen for each property name of one
// VEVENT, after unfolding.
type blockProps map[string]string

func (p blockProps) raw(name string) string {
	return strings.TrimSpace(p[name])
}

func (p blockProps) text(name string) string {
	return strings.TrimSpace(unescapeText(p[name]))
}

// scanner is the line state machine used to read a block. It holds at most
// one pending logical line; a physical line starting with a space or tab
// continues it, anything else completes it.
type scanner struct {
	props   blockProps
	pending strings.Builder
	active  bool
	// depth counts nested components (VALARM and friends) whose properties
	// must not shadow the event's own.
	depth int
}

func scanBlock(block string) blockProps {
	s := &scanner{props: blockProps{}}
	for _, line := range splitLines(block) {
		s.feed(line)
	}
	s.flush()
	return s.props
}

func (s *scanner) feed(line string) {
	if line != "" && (line[0] == ' ' || line[0] == '\t') {
		if s.active {
			s.pending.WriteString(line[1:])
		}
		return
	}
	s.flush()
	if strings.TrimSpace(line) == "" {
		return
	}
	s.pending.WriteString(line)
	s.active = true
}

func (s *scanner) flush() {
	if !s.active {
		return
	}
	line := s.pending.String()
	s.pending.Reset()
	s.active = false

	name, value, ok := splitContentLine(line)
	if !ok {
		return
	}

	switch name {
	case "BEGIN":
		s.depth++
		return
	case "END":
		if s.depth > 0 {
			s.depth--
		}
		return
	}
	if s.depth > 0 {
		return
	}
	if _, seen := s.props[name]; seen {
		return
	}
	s.props[name] = value
}

// splitContentLine splits "NAME;PARAM=x;PARAM=\"a:b\":value" into the
// upper-cased name and the value. Colons inside quoted parameter values do
// not end the name part.
func splitContentLine(line string) (name, value string, ok bool) {
	inQuotes := false
	nameEnd := -1
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case c == '"':
			inQuotes = !inQuotes
		case c == ';' && !inQuotes && nameEnd < 0:
			nameEnd = i
		case c == ':' && !inQuotes:
			if nameEnd < 0 {
				nameEnd = i
			}
			name = strings.ToUpper(strings.TrimSpace(line[:nameEnd]))
			if name == "" {
				return "", "", false
			}
			return name, line[i+1:], true
		}
	}
	return "", "", false
}

// splitLines splits on CRLF, LF or a lone CR.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}

// unescapeText reverses TEXT escaping: \n and \N become newlines, and \, \;
// \\ become the bare character. Unknown escapes are left alone.
func unescapeText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		switch next := s[i+1]; next {
		case 'n', 'N':
			b.WriteByte('\n')
			i++
		case ',', ';', '\\':
			b.WriteByte(next)
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
