// Package feeds manages URL subscriptions: the first import, saved feed
// entries in the config, and scheduled re-imports.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"evstage/internal/config"
	"evstage/internal/events"
	"evstage/internal/ingest"
	appLog "evstage/internal/log"
	"evstage/internal/metrics"
)

var (
	// ErrNoEvents is returned when a feed downloaded fine but nothing in it
	// could be read as events.
	ErrNoEvents = errors.New("no events found in feed")
	// ErrUnknownFeed is returned for a URL that is not a saved feed.
	ErrUnknownFeed = errors.New("feed is not subscribed")
	// ErrFetchFailed wraps download failures that had no cached fallback.
	ErrFetchFailed = errors.New("feed download failed")
)

// Result describes one subscribe or refresh.
type Result struct {
	Feed      config.FeedConfig `json:"feed"`
	Format    ingest.Format     `json:"format,omitempty"`
	Imported  int               `json:"imported"`
	Replaced  int               `json:"replaced"`
	FromCache bool              `json:"fromCache"`
	Err       error             `json:"-"`
	Error     string            `json:"error,omitempty"`
}

// Service ties the fetcher to the events service and the saved feed list.
type Service struct {
	fetcher *Fetcher
	events  *events.Service
	cfg     *config.Holder
	metrics *metrics.Metrics
	now     func() time.Time

	// mu serializes imports so two refreshes of one feed cannot interleave.
	mu sync.Mutex
}

// NewService wires a feeds service. m may be nil.
func NewService(f *Fetcher, ev *events.Service, cfg *config.Holder, m *metrics.Metrics) *Service {
	return &Service{fetcher: f, events: ev, cfg: cfg, metrics: m, now: time.Now}
}

// SourceName is the label a feed's events are stored under: the given
// name, else the URL's host.
func SourceName(name, rawURL string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	if u, err := ValidateURL(rawURL); err == nil {
		return u.Hostname()
	}
	return rawURL
}

// Subscribe imports rawURL once and, when it produced events, saves it as a
// feed. A URL that is already saved is updated in place.
func (s *Service) Subscribe(ctx context.Context, rawURL, name, category string) (Result, error) {
	rawURL = strings.TrimSpace(rawURL)
	if _, err := ValidateURL(rawURL); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(category) == "" {
		category = s.cfg.Snapshot().DefaultCategory
	}

	feed := config.FeedConfig{
		Name:     SourceName(name, rawURL),
		URL:      rawURL,
		Category: strings.TrimSpace(category),
		AddedAt:  s.now().UTC(),
	}
	res, err := s.pull(ctx, feed)
	if err != nil {
		return res, err
	}

	if err := s.cfg.Update(func(c *config.Config) bool {
		c.UpsertFeed(feed)
		return true
	}); err != nil {
		return res, fmt.Errorf("saving feed: %w", err)
	}
	snap := s.cfg.Snapshot()
	if saved, ok := snap.FindFeed(rawURL); ok {
		res.Feed = saved
	}
	appLog.Info("feed subscribed", "name", feed.Name, "url", redactURL(rawURL), "events", res.Imported)
	return res, nil
}

// Refresh re-imports a saved feed. When the feed yields nothing, the events
// already stored for it are kept.
func (s *Service) Refresh(ctx context.Context, rawURL string) (Result, error) {
	snap := s.cfg.Snapshot()
	feed, ok := snap.FindFeed(strings.TrimSpace(rawURL))
	if !ok {
		return Result{}, ErrUnknownFeed
	}
	return s.pull(ctx, feed)
}

// RefreshAll refreshes every saved feed in order. Per-feed failures are
// reported in the results, not returned.
func (s *Service) RefreshAll(ctx context.Context) []Result {
	feeds := s.cfg.Snapshot().Feeds
	results := make([]Result, 0, len(feeds))
	for _, feed := range feeds {
		if ctx.Err() != nil {
			break
		}
		res, err := s.pull(ctx, feed)
		if err != nil {
			res.Feed = feed
			res.Err = err
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	appLog.Info("feed refresh completed", "feeds", len(feeds), "refreshed", len(results))
	return results
}

// Remove forgets a saved feed. Events already imported from it stay.
func (s *Service) Remove(rawURL string) (bool, error) {
	var removed bool
	err := s.cfg.Update(func(c *config.Config) bool {
		removed = c.RemoveFeed(strings.TrimSpace(rawURL))
		return removed
	})
	return removed, err
}

// List returns the saved feeds.
func (s *Service) List() []config.FeedConfig {
	return s.cfg.Snapshot().Feeds
}

func (s *Service) pull(ctx context.Context, feed config.FeedConfig) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := Result{Feed: feed}

	fetched, err := s.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		s.metrics.FeedRefreshed(metrics.ResultFetchError)
		appLog.Error("feed fetch failed", err, "name", feed.Name, "url", redactURL(feed.URL))
		return res, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	res.FromCache = fetched.FromCache

	out := s.events.Ingest(fetched.Body, feed.Category, feed.Name)
	res.Format = out.Format
	if !out.Found() {
		s.metrics.FeedRefreshed(metrics.ResultEmpty)
		return res, ErrNoEvents
	}

	imported, err := s.events.Import(ctx, out, feed.Name)
	if err != nil {
		s.metrics.FeedRefreshed(metrics.ResultStoreError)
		return res, err
	}
	s.metrics.FeedRefreshed(metrics.ResultOK)

	res.Imported = imported.Imported
	res.Replaced = imported.Replaced
	return res, nil
}
