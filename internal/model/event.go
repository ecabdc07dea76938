package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceManual is the source label given to events entered by hand.
const SourceManual = "manual"

// Event is the canonical staged event. Every parser produces it and the
// iCalendar encoder consumes it.
//
// Start/End are nil when the source had no usable date. A nil End is not the
// same thing as End == Start, and the engine never checks Start <= End.
type Event struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`

	Start *time.Time `json:"startDate"`
	End   *time.Time `json:"endDate"`

	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`

	// Source identifies the ingestion batch or feed that produced the event.
	// Storage uses it for replace-on-reimport.
	Source string `json:"source"`

	// Recurrence is the raw RRULE value when the event came from an
	// iCalendar source that carried one.
	Recurrence string `json:"recurrence,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Stamp carries the caller-supplied context applied to every event produced
// by one ingestion call.
type Stamp struct {
	Category string
	Source   string
	// Now is the ingestion clock; time.Now when nil.
	Now func() time.Time
}

func (s Stamp) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// NewID returns a fresh opaque event identifier.
func NewID() string {
	return "evt-" + uuid.NewString()
}

// New builds an event with a fresh ID and CreatedAt, stamped with the
// caller's category and source. The title is trimmed; callers must drop the
// record themselves when it comes back empty.
func (s Stamp) New(title string) Event {
	return Event{
		ID:        NewID(),
		Title:     strings.TrimSpace(title),
		Category:  s.Category,
		Source:    s.Source,
		CreatedAt: s.now(),
	}
}

// HasTitle reports whether the event satisfies the non-empty title rule.
func (e Event) HasTitle() bool {
	return strings.TrimSpace(e.Title) != ""
}

// TimePtr returns a pointer to t in UTC.
func TimePtr(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}

// Occurrence is a single concrete instance of an event inside a display
// window, after recurrence expansion.
type Occurrence struct {
	EventID  string `json:"eventId"`
	Title    string `json:"title"`
	Category string `json:"category"`

	// InstanceKey uniquely identifies one occurrence of a recurring event.
	InstanceKey string `json:"instanceKey"`

	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`

	Location string `json:"location,omitempty"`
	Source   string `json:"source"`
}
