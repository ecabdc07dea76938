package web

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"evstage/internal/apperror"
	"evstage/internal/model"
)

const (
	calendarCacheTTL = 30 * time.Second
	calendarCacheMax = 32
)

// calendarResponse is the JSON response shape for /api/calendar.
type calendarResponse struct {
	Occurrences  []model.Occurrence `json:"occurrences"`
	Truncated    []string           `json:"truncated,omitempty"`
	InvalidRules []string           `json:"invalidRules,omitempty"`
	From         time.Time          `json:"from"`
	To           time.Time          `json:"to"`
}

// handleCalendar returns recurrence-expanded occurrences for a window.
//
// GET /api/calendar?from=2025-06-01&to=2025-07-01
//   - from/to: YYYY-MM-DD or RFC 3339; default is the current UTC month
func (s *Server) handleCalendar(c echo.Context) error {
	from, to, err := calendarWindow(c.QueryParam("from"), c.QueryParam("to"), time.Now().UTC())
	if err != nil {
		return err
	}

	key := from.Format(time.RFC3339) + "|" + to.Format(time.RFC3339)
	gen := s.generation.Load()

	s.calendarMu.RLock()
	entry, ok := s.calendarCache[key]
	s.calendarMu.RUnlock()
	if ok && entry.generation == gen && time.Since(entry.updatedAt) < calendarCacheTTL {
		return c.JSON(http.StatusOK, entry.resp)
	}

	res, err := s.events.Occurrences(c.Request().Context(), from, to)
	if err != nil {
		return toAppError(err)
	}
	resp := calendarResponse{
		Occurrences:  res.Occurrences,
		Truncated:    res.TruncatedEvents,
		InvalidRules: res.InvalidRules,
		From:         from,
		To:           to,
	}
	if resp.Occurrences == nil {
		resp.Occurrences = []model.Occurrence{}
	}

	s.storeCalendar(key, calendarEntry{resp: resp, generation: gen, updatedAt: time.Now()})

	return c.JSON(http.StatusOK, resp)
}

func calendarWindow(fromParam, toParam string, now time.Time) (time.Time, time.Time, error) {
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	if fromParam != "" {
		t, err := parseDay(fromParam)
		if err != nil {
			return time.Time{}, time.Time{}, apperror.NewBadRequest("from must be YYYY-MM-DD or RFC 3339")
		}
		from = t
		if toParam == "" {
			to = from.AddDate(0, 1, 0)
		}
	}
	if toParam != "" {
		t, err := parseDay(toParam)
		if err != nil {
			return time.Time{}, time.Time{}, apperror.NewBadRequest("to must be YYYY-MM-DD or RFC 3339")
		}
		to = t
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, apperror.NewBadRequest("to is before from")
	}
	return from, to, nil
}

func parseDay(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// storeCalendar caches entry under key. Entries from older generations or
// past the TTL are dropped first; if the cache is still full the oldest
// entry goes.
func (s *Server) storeCalendar(key string, entry calendarEntry) {
	s.calendarMu.Lock()
	defer s.calendarMu.Unlock()

	var oldestKey string
	var oldest time.Time
	for k, e := range s.calendarCache {
		if e.generation != entry.generation || entry.updatedAt.Sub(e.updatedAt) >= calendarCacheTTL {
			delete(s.calendarCache, k)
			continue
		}
		if oldestKey == "" || e.updatedAt.Before(oldest) {
			oldestKey, oldest = k, e.updatedAt
		}
	}
	if _, ok := s.calendarCache[key]; !ok && len(s.calendarCache) >= calendarCacheMax {
		delete(s.calendarCache, oldestKey)
	}
	s.calendarCache[key] = entry
}
