package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"evstage/internal/model"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fixture(id, title, source string, offset time.Duration, start *time.Time) model.Event {
	return model.Event{
		ID:        id,
		Title:     title,
		Category:  "Home",
		Start:     start,
		Source:    source,
		CreatedAt: base.Add(offset),
	}
}

// exerciseStore runs the behaviour every driver must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	start := model.TimePtr(base.Add(48 * time.Hour))

	for _, ev := range []model.Event{
		fixture("evt-1", "Dentist", model.SourceManual, 0, start),
		fixture("evt-2", "Game 1", "phillies", time.Minute, start),
		fixture("evt-3", "Game 2", "phillies", 2*time.Minute, nil),
		fixture("evt-4", "Picnic", "pasted", 3*time.Minute, nil),
	} {
		if err := s.Put(ctx, ev); err != nil {
			t.Fatalf("Put(%s): %v", ev.ID, err)
		}
	}

	got, err := s.Get(ctx, "evt-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Dentist" || got.Start == nil || !got.Start.Equal(*start) {
		t.Errorf("unexpected event: %+v", got)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}

	// Update in place, moving the event to another source.
	got.Title = "Dentist (moved)"
	got.Source = "pasted"
	if err := s.Put(ctx, got); err != nil {
		t.Fatalf("Put update: %v", err)
	}

	removed, err := s.ReplaceSource(ctx, "phillies", []model.Event{
		fixture("evt-5", "Game 1", "ignored", 4*time.Minute, start),
	})
	if err != nil {
		t.Fatalf("ReplaceSource: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	wantIDs := []string{"evt-1", "evt-4", "evt-5"}
	if len(list) != len(wantIDs) {
		t.Fatalf("List returned %d events, want %d: %+v", len(list), len(wantIDs), list)
	}
	for i, id := range wantIDs {
		if list[i].ID != id {
			t.Errorf("list[%d] = %s, want %s", i, list[i].ID, id)
		}
	}
	if list[0].Title != "Dentist (moved)" {
		t.Errorf("update lost: %+v", list[0])
	}
	if list[2].Source != "phillies" {
		t.Errorf("replaced events must carry the source label, got %q", list[2].Source)
	}

	// The moved event now belongs to "pasted" and goes with it.
	removed, err = s.ReplaceSource(ctx, "pasted", nil)
	if err != nil || removed != 2 {
		t.Errorf("ReplaceSource(pasted) = %d, %v; want 2, nil", removed, err)
	}

	n, err := s.Delete(ctx, "evt-5", "missing")
	if err != nil || n != 1 {
		t.Errorf("Delete = %d, %v; want 1, nil", n, err)
	}
	list, _ = s.List(ctx)
	if len(list) != 0 {
		t.Errorf("expected empty store, got %+v", list)
	}
}
