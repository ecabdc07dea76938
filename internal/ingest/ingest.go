// Package ingest turns raw calendar-ish input (iCalendar, CSV/TSV, JSON,
// RSS/Atom/XML) into canonical events.
//
// Everything here is pure: no I/O, no shared mutable state, no goroutines.
// Malformed input never produces an error for the caller, only an Outcome
// with zero events; the Attempts list keeps the per-parser reasons for
// logging.
package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"evstage/internal/model"
)

// ErrMalformed marks input that could not be read as a given format at all,
// as opposed to input that was readable but held no events.
var ErrMalformed = errors.New("malformed input")

func malformed(format, detail string) error {
	return fmt.Errorf("%s: %w: %s", format, ErrMalformed, detail)
}

// AcceptedExtensions lists upload file types worth offering to the engine.
// The engine itself never looks at file names.
var AcceptedExtensions = []string{".ics", ".csv", ".tsv", ".json", ".xml", ".rss", ".atom", ".txt"}

// Accepts reports whether filename has one of AcceptedExtensions.
func Accepts(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, a := range AcceptedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// Engine runs detection with a fixed clock source. The zero value uses
// time.Now.
type Engine struct {
	Now func() time.Time
}

// Ingest decodes raw bytes and runs Detect. Every produced event carries
// category and source.
func (e Engine) Ingest(raw []byte, category, source string) Outcome {
	return e.IngestText(DecodeText(raw), category, source)
}

// IngestText is Ingest for input that is already a string.
func (e Engine) IngestText(text, category, source string) Outcome {
	return Detect(text, model.Stamp{
		Category: category,
		Source:   source,
		Now:      e.Now,
	})
}
