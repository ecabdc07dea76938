// Package store persists staged events. Three drivers share one interface:
// memory (optionally backed by a JSON file), Redis and MySQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"evstage/internal/config"
	"evstage/internal/model"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("store: event not found")

// Store is the event repository.
//
// List returns events ordered by CreatedAt, then ID. Put inserts or replaces
// by ID. ReplaceSource removes every event whose Source equals source and
// stores events in their place, atomically where the driver allows; events
// of other sources are untouched.
type Store interface {
	List(ctx context.Context) ([]model.Event, error)
	Get(ctx context.Context, id string) (model.Event, error)
	Put(ctx context.Context, ev model.Event) error
	Delete(ctx context.Context, ids ...string) (int, error)
	ReplaceSource(ctx context.Context, source string, events []model.Event) (removed int, err error)
	Close() error
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return NewMemory(cfg.Path)
	case config.DriverRedis:
		return OpenRedis(ctx, cfg.RedisURL, cfg.RedisPrefix)
	case config.DriverMySQL:
		return OpenMySQL(ctx, cfg.MySQLDSN)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

func sortEvents(events []model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// stamped copies events with source forced to the given label.
func stamped(source string, events []model.Event) []model.Event {
	out := make([]model.Event, len(events))
	for i, ev := range events {
		ev.Source = source
		out[i] = ev
	}
	return out
}
