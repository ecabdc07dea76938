package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"evstage/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// RangeStart / RangeEnd define the inclusive time window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent is a safety cap against unbounded rules. If
	// zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the expanded occurrences and the events whose RRULE
// hit the cap or could not be parsed.
type ExpandResult struct {
	Occurrences []model.Occurrence
	// TruncatedEvents records IDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string
	// InvalidRules records IDs whose RRULE could not be parsed; those events
	// are shown once at their own start.
	InvalidRules []string
}

// Expand returns the occurrences of events that fall inside the window,
// sorted by start. Undated events never appear. An event without a
// Recurrence yields at most one occurrence; one with an RRULE yields one per
// rule instance, each keeping the original duration.
func Expand(events []model.Event, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	all := make([]model.Occurrence, 0, len(events))
	for _, ev := range events {
		if ev.Start == nil {
			continue
		}
		if ev.Recurrence == "" {
			if overlaps(*ev.Start, endOrStart(ev), cfg.RangeStart, cfg.RangeEnd) {
				all = append(all, makeOccurrence(ev, *ev.Start))
			}
			continue
		}

		occ, hitCap, err := expandRecurring(ev, cfg)
		if err != nil {
			result.InvalidRules = append(result.InvalidRules, ev.ID)
			if overlaps(*ev.Start, endOrStart(ev), cfg.RangeStart, cfg.RangeEnd) {
				all = append(all, makeOccurrence(ev, *ev.Start))
			}
			continue
		}
		if hitCap {
			result.TruncatedEvents = append(result.TruncatedEvents, ev.ID)
		}
		all = append(all, occ...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Start.Before(all[j].Start)
	})
	result.Occurrences = all
	return result, nil
}

func expandRecurring(ev model.Event, cfg ExpandConfig) ([]model.Occurrence, bool, error) {
	r, err := rrule.StrToRRule(ev.Recurrence)
	if err != nil {
		return nil, false, err
	}
	// Ensure Dtstart is set to the event's own start.
	r.DTStart(*ev.Start)

	times := r.Between(cfg.RangeStart, cfg.RangeEnd, true)
	hitCap := false
	if len(times) > cfg.MaxOccurrencesPerEvent {
		times = times[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]model.Occurrence, 0, len(times))
	for _, t := range times {
		out = append(out, makeOccurrence(ev, t))
	}
	return out, hitCap, nil
}

// makeOccurrence places ev at start, preserving its duration when it has an
// end.
func makeOccurrence(ev model.Event, start time.Time) model.Occurrence {
	start = start.UTC()
	occ := model.Occurrence{
		EventID:     ev.ID,
		Title:       ev.Title,
		Category:    ev.Category,
		InstanceKey: ev.ID + "/" + start.Format(time.RFC3339),
		Start:       start,
		Location:    ev.Location,
		Source:      ev.Source,
	}
	if ev.End != nil {
		end := start.Add(ev.End.Sub(*ev.Start))
		occ.End = &end
	}
	return occ
}

func endOrStart(ev model.Event) time.Time {
	if ev.End != nil && ev.End.After(*ev.Start) {
		return *ev.End
	}
	return *ev.Start
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(bStart) {
		return false
	}
	if bEnd.Before(aStart) {
		return false
	}
	return true
}
