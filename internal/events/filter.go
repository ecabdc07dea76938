package events

import (
	"sort"
	"strings"

	"evstage/internal/model"
)

// Dated filter values.
const (
	DatedAll     = "all"
	DatedOnly    = "dated"
	DatedMissing = "undated"
)

// Sort orders.
const (
	SortDate    = "date"
	SortName    = "name"
	SortCreated = "created"
)

// Filter narrows and orders a list of events. The zero value matches
// everything and sorts by date.
type Filter struct {
	// Category matches exactly; "" or "All" matches every category.
	Category string
	// Dated is one of DatedAll, DatedOnly, DatedMissing.
	Dated string
	// Search matches title, location or description, ignoring case.
	Search string
	// Sort is one of SortDate (undated last), SortName, SortCreated (newest
	// first).
	Sort string
}

// Apply returns the matching events in order. The input is not modified.
func (f Filter) Apply(events []model.Event) []model.Event {
	search := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if f.Category != "" && f.Category != "All" && ev.Category != f.Category {
			continue
		}
		switch f.Dated {
		case DatedOnly:
			if ev.Start == nil {
				continue
			}
		case DatedMissing:
			if ev.Start != nil {
				continue
			}
		}
		if search != "" && !matches(ev, search) {
			continue
		}
		out = append(out, ev)
	}

	switch f.Sort {
	case SortName:
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Title) < strings.ToLower(out[j].Title)
		})
	case SortCreated:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i].Start, out[j].Start
			switch {
			case a == nil:
				return false
			case b == nil:
				return true
			default:
				return a.Before(*b)
			}
		})
	}
	return out
}

func matches(ev model.Event, lowered string) bool {
	return strings.Contains(strings.ToLower(ev.Title), lowered) ||
		strings.Contains(strings.ToLower(ev.Location), lowered) ||
		strings.Contains(strings.ToLower(ev.Description), lowered)
}
