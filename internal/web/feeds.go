package web

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"evstage/internal/apperror"
	"evstage/internal/config"
	"evstage/internal/feeds"
)

type feedRequest struct {
	URL      string `json:"url" form:"url"`
	Name     string `json:"name" form:"name"`
	Category string `json:"category" form:"category"`
}

func (s *Server) handleListFeeds(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]config.FeedConfig{"feeds": s.feeds.List()})
}

// handleSubscribe imports a URL and saves it as a feed when it yields
// events.
//
// POST /api/feeds {"url": "...", "name": "...", "category": "..."}
func (s *Server) handleSubscribe(c echo.Context) error {
	var req feedRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if strings.TrimSpace(req.URL) == "" {
		return apperror.NewBadRequest("url is required")
	}
	res, err := s.feeds.Subscribe(c.Request().Context(), req.URL, req.Name, req.Category)
	if err != nil {
		return toAppError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// handleRemoveFeed forgets a saved feed; its events stay.
//
// DELETE /api/feeds?url=...
func (s *Server) handleRemoveFeed(c echo.Context) error {
	u := c.QueryParam("url")
	if strings.TrimSpace(u) == "" {
		return apperror.NewBadRequest("url is required")
	}
	removed, err := s.feeds.Remove(u)
	if err != nil {
		return toAppError(err)
	}
	if !removed {
		return toAppError(feeds.ErrUnknownFeed)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleRefreshFeeds refreshes one saved feed (url given) or all of them.
//
// POST /api/feeds/refresh[?url=...]
func (s *Server) handleRefreshFeeds(c echo.Context) error {
	var req feedRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.URL == "" {
		req.URL = c.QueryParam("url")
	}
	ctx := c.Request().Context()

	if strings.TrimSpace(req.URL) != "" {
		res, err := s.feeds.Refresh(ctx, req.URL)
		if err != nil {
			return toAppError(err)
		}
		return c.JSON(http.StatusOK, res)
	}
	return c.JSON(http.StatusOK, map[string][]feeds.Result{"results": s.feeds.RefreshAll(ctx)})
}
