package config

import (
	"sync"
)

// Holder serializes access to a Config that is changed at runtime (saved
// feeds, added categories) and writes every change back to its file.
type Holder struct {
	mu   sync.RWMutex
	path string
	cfg  *Config
}

// NewHolder wraps cfg. An empty path keeps changes in memory only.
func NewHolder(path string, cfg *Config) *Holder {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Normalize()
	return &Holder{path: path, cfg: cfg}
}

// Snapshot returns a copy of the current configuration. Slices are copied,
// so callers may keep it.
func (h *Holder) Snapshot() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c := *h.cfg
	c.Categories = append([]string(nil), h.cfg.Categories...)
	c.Feeds = append([]FeedConfig(nil), h.cfg.Feeds...)
	if h.cfg.BasicAuth != nil {
		ba := *h.cfg.BasicAuth
		c.BasicAuth = &ba
	}
	return c
}

// Update applies fn under the write lock. When fn reports a change, the
// configuration is saved.
func (h *Holder) Update(fn func(c *Config) bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !fn(h.cfg) {
		return nil
	}
	if h.path == "" {
		h.cfg.Normalize()
		return nil
	}
	return Save(h.path, h.cfg)
}
