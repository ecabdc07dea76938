// Package events is the staging area: manual edits, imports from the
// ingestion engine, listing, and export to iCalendar.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"evstage/internal/config"
	"evstage/internal/ics"
	"evstage/internal/ingest"
	appLog "evstage/internal/log"
	"evstage/internal/metrics"
	"evstage/internal/model"
	"evstage/internal/store"
)

var (
	// ErrTitleRequired is returned when a manual event has a blank title.
	ErrTitleRequired = errors.New("events: title is required")
	// ErrNothingImported is returned by Import for an outcome without events.
	ErrNothingImported = errors.New("events: no events to import")
	// ErrNotFound is returned when none of the requested events exist.
	ErrNotFound = store.ErrNotFound
)

// Input is the editable part of an event.
type Input struct {
	Title       string     `json:"title"`
	Category    string     `json:"category"`
	Start       *time.Time `json:"startDate"`
	End         *time.Time `json:"endDate"`
	Location    string     `json:"location"`
	Description string     `json:"description"`
}

// ImportResult summarizes one Import call.
type ImportResult struct {
	Format   ingest.Format `json:"format"`
	Source   string        `json:"source"`
	Imported int           `json:"imported"`
	// Replaced counts previously stored events of the same source.
	Replaced int `json:"replaced"`
}

// Export is an encoded iCalendar download.
type Export struct {
	Filename string
	Body     string
	Count    int
}

// Service coordinates the store, the ingestion engine and the config.
type Service struct {
	store   store.Store
	cfg     *config.Holder
	metrics *metrics.Metrics
	engine  ingest.Engine
	now     func() time.Time
}

// NewService wires a service. m may be nil.
func NewService(st store.Store, cfg *config.Holder, m *metrics.Metrics) *Service {
	return &Service{store: st, cfg: cfg, metrics: m, now: time.Now}
}

// SetClock overrides the clock used for new events and exports.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.engine.Now = now
}

// Ingest runs the engine over raw bytes and records metrics. Nothing is
// stored; pass the outcome to Import to keep it.
func (s *Service) Ingest(raw []byte, category, source string) ingest.Outcome {
	if strings.TrimSpace(category) == "" {
		category = s.cfg.Snapshot().DefaultCategory
	}

	started := time.Now()
	out := s.engine.Ingest(raw, category, source)
	s.metrics.ObserveIngest(string(out.Format), len(out.Events), time.Since(started))

	for _, a := range out.Attempts {
		if a.Err != nil {
			appLog.Debug("parser rejected input", "source", source, "format", string(a.Format), "error", a.Err.Error())
		}
	}
	appLog.Info("ingested input",
		"source", source,
		"format", formatLabel(out.Format),
		"events", len(out.Events),
		"bytes", len(raw),
	)
	return out
}

// Import replaces every stored event of source with the outcome's events.
func (s *Service) Import(ctx context.Context, out ingest.Outcome, source string) (ImportResult, error) {
	if !out.Found() {
		return ImportResult{}, ErrNothingImported
	}
	replaced, err := s.store.ReplaceSource(ctx, source, out.Events)
	if err != nil {
		return ImportResult{}, fmt.Errorf("replacing source %q: %w", source, err)
	}
	s.rememberCategories(out.Events)

	res := ImportResult{
		Format:   out.Format,
		Source:   source,
		Imported: len(out.Events),
		Replaced: replaced,
	}
	appLog.Info("import completed",
		"source", source,
		"format", string(out.Format),
		"imported", res.Imported,
		"replaced", res.Replaced,
	)
	return res, nil
}

// Create stores a manually entered event.
func (s *Service) Create(ctx context.Context, in Input) (model.Event, error) {
	in = s.clean(in)
	if in.Title == "" {
		return model.Event{}, ErrTitleRequired
	}

	ev := model.Stamp{Category: in.Category, Source: model.SourceManual, Now: s.now}.New(in.Title)
	apply(&ev, in)
	if err := s.store.Put(ctx, ev); err != nil {
		return model.Event{}, err
	}
	s.rememberCategories([]model.Event{ev})
	return ev, nil
}

// Update edits an existing event. ID, Source, CreatedAt and Recurrence are
// kept.
func (s *Service) Update(ctx context.Context, id string, in Input) (model.Event, error) {
	in = s.clean(in)
	if in.Title == "" {
		return model.Event{}, ErrTitleRequired
	}

	ev, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Event{}, err
	}
	ev.Title = in.Title
	apply(&ev, in)
	if err := s.store.Put(ctx, ev); err != nil {
		return model.Event{}, err
	}
	s.rememberCategories([]model.Event{ev})
	return ev, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Event, error) {
	return s.store.Get(ctx, id)
}

// Delete removes the given events and returns how many existed.
func (s *Service) Delete(ctx context.Context, ids ...string) (int, error) {
	return s.store.Delete(ctx, ids...)
}

// List returns stored events matching f, ordered by f.Sort.
func (s *Service) List(ctx context.Context, f Filter) ([]model.Event, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return f.Apply(all), nil
}

// Categories returns the configured categories followed by any other
// category used by a stored event, in first-seen order.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return mergeCategories(s.cfg.Snapshot().Categories, all), nil
}

// CategoryCounts returns the number of stored events per category.
func (s *Service) CategoryCounts(ctx context.Context) (map[string]int, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, ev := range all {
		counts[ev.Category]++
	}
	return counts, nil
}

// AddCategory adds name to the configured categories.
func (s *Service) AddCategory(name string) (bool, error) {
	var added bool
	err := s.cfg.Update(func(c *config.Config) bool {
		added = c.AddCategory(name)
		return added
	})
	return added, err
}

// Export encodes the given events, or every stored event when ids is
// empty. Unknown ids are skipped; ErrNotFound is returned when nothing is
// left.
func (s *Service) Export(ctx context.Context, ids []string) (Export, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return Export{}, err
	}

	selected := all
	if len(ids) > 0 {
		want := make(map[string]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
		selected = selected[:0:0]
		for _, ev := range all {
			if want[ev.ID] {
				selected = append(selected, ev)
			}
		}
	}
	if len(selected) == 0 {
		return Export{}, ErrNotFound
	}

	return Export{
		Filename: ics.Filename(selected),
		Body:     ics.Encode(selected, s.now()),
		Count:    len(selected),
	}, nil
}

// Occurrences expands stored events into the [from, to] window, applying
// recurrence rules.
func (s *Service) Occurrences(ctx context.Context, from, to time.Time) (ics.ExpandResult, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return ics.ExpandResult{}, err
	}
	res, err := ics.Expand(all, ics.ExpandConfig{RangeStart: from, RangeEnd: to})
	if err != nil {
		return ics.ExpandResult{}, err
	}
	for _, id := range res.InvalidRules {
		appLog.Info("invalid RRULE; showing single occurrence", "event", id)
	}
	return res, nil
}

func (s *Service) clean(in Input) Input {
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	in.Location = strings.TrimSpace(in.Location)
	in.Description = strings.TrimSpace(in.Description)
	if in.Category == "" {
		in.Category = s.cfg.Snapshot().DefaultCategory
	}
	return in
}

func apply(ev *model.Event, in Input) {
	ev.Category = in.Category
	ev.Start = utcPtr(in.Start)
	ev.End = utcPtr(in.End)
	ev.Location = in.Location
	ev.Description = in.Description
}

// rememberCategories adds categories seen on events to the config, the way
// a new category typed into the event form becomes selectable.
func (s *Service) rememberCategories(events []model.Event) {
	err := s.cfg.Update(func(c *config.Config) bool {
		changed := false
		for _, ev := range events {
			if c.AddCategory(ev.Category) {
				changed = true
			}
		}
		return changed
	})
	if err != nil {
		appLog.Error("failed to save categories", err)
	}
}

func mergeCategories(configured []string, events []model.Event) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(configured))
	add := func(c string) {
		if c == "" || seen[c] {
			return
		}
		seen[c] = true
		out = append(out, c)
	}
	for _, c := range configured {
		add(c)
	}
	for _, ev := range events {
		add(ev.Category)
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return model.TimePtr(*t)
}

func formatLabel(f ingest.Format) string {
	if f == ingest.FormatNone {
		return "none"
	}
	return string(f)
}
