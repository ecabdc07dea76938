package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"

	"evstage/internal/config"
	"evstage/internal/model"
)

// Memory keeps events in a map. When path is set, every mutation rewrites
// the file atomically, and NewMemory loads it back.
type Memory struct {
	mu     sync.RWMutex
	events map[string]model.Event
	path   string
}

// NewMemory returns a memory store, loading path if it exists. An empty
// path disables persistence.
func NewMemory(path string) (*Memory, error) {
	m := &Memory{events: map[string]model.Event{}, path: path}
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m, nil
		}
		return nil, err
	}
	var list []model.Event
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	for _, ev := range list {
		m.events[ev.ID] = ev
	}
	return m, nil
}

func (m *Memory) List(_ context.Context) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot(), nil
}

func (m *Memory) Get(_ context.Context, id string) (model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.events[id]
	if !ok {
		return model.Event{}, ErrNotFound
	}
	return ev, nil
}

func (m *Memory) Put(_ context.Context, ev model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.clone()
	next[ev.ID] = ev
	return m.commit(next)
}

func (m *Memory) Delete(_ context.Context, ids ...string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.clone()
	n := 0
	for _, id := range ids {
		if _, ok := next[id]; ok {
			delete(next, id)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	if err := m.commit(next); err != nil {
		return 0, err
	}
	return n, nil
}

func (m *Memory) ReplaceSource(_ context.Context, source string, events []model.Event) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.clone()
	removed := 0
	for id, ev := range next {
		if ev.Source == source {
			delete(next, id)
			removed++
		}
	}
	for _, ev := range stamped(source, events) {
		next[ev.ID] = ev
	}
	if err := m.commit(next); err != nil {
		return 0, err
	}
	return removed, nil
}

func (m *Memory) Close() error { return nil }

// clone must be called with mu held.
func (m *Memory) clone() map[string]model.Event {
	out := make(map[string]model.Event, len(m.events))
	for id, ev := range m.events {
		out[id] = ev
	}
	return out
}

// commit writes next to disk and only then makes it the current state, so a
// failed write leaves both unchanged. mu must be held for writing.
func (m *Memory) commit(next map[string]model.Event) error {
	if m.path != "" {
		data, err := json.MarshalIndent(sorted(next), "", "  ")
		if err != nil {
			return err
		}
		if err := config.WriteFileAtomic(m.path, data); err != nil {
			return err
		}
	}
	m.events = next
	return nil
}

// snapshot must be called with mu held.
func (m *Memory) snapshot() []model.Event {
	return sorted(m.events)
}

func sorted(events map[string]model.Event) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		out = append(out, ev)
	}
	sortEvents(out)
	return out
}
