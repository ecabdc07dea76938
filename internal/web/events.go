package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"evstage/internal/apperror"
	"evstage/internal/dates"
	"evstage/internal/events"
	"evstage/internal/model"
)

// eventRequest is the body of POST /api/events and PUT /api/events/:id.
// Dates are free-form strings and go through the date normalizer, so the
// browser's "2025-06-01T10:00" works as well as RFC 3339.
type eventRequest struct {
	Title       string `json:"title"`
	Category    string `json:"category"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

func (r eventRequest) input() (events.Input, error) {
	start, err := optionalDate("startDate", r.StartDate)
	if err != nil {
		return events.Input{}, err
	}
	end, err := optionalDate("endDate", r.EndDate)
	if err != nil {
		return events.Input{}, err
	}
	return events.Input{
		Title:       r.Title,
		Category:    r.Category,
		Start:       start,
		End:         end,
		Location:    r.Location,
		Description: r.Description,
	}, nil
}

func optionalDate(field, v string) (*time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	t, ok := dates.Normalize(v)
	if !ok {
		return nil, apperror.NewValidation(field + " is not a recognizable date.")
	}
	return &t, nil
}

type eventsResponse struct {
	Events []model.Event `json:"events"`
	Total  int           `json:"total"`
}

// handleListEvents returns stored events.
//
// GET /api/events?category=Home&dated=undated&search=park&sort=name
func (s *Server) handleListEvents(c echo.Context) error {
	f := events.Filter{
		Category: c.QueryParam("category"),
		Dated:    c.QueryParam("dated"),
		Search:   c.QueryParam("search"),
		Sort:     c.QueryParam("sort"),
	}
	list, err := s.events.List(c.Request().Context(), f)
	if err != nil {
		return toAppError(err)
	}
	return c.JSON(http.StatusOK, eventsResponse{Events: list, Total: len(list)})
}

func (s *Server) handleGetEvent(c echo.Context) error {
	ev, err := s.events.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toAppError(err)
	}
	return c.JSON(http.StatusOK, ev)
}

func (s *Server) handleCreateEvent(c echo.Context) error {
	var req eventRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	in, err := req.input()
	if err != nil {
		return err
	}
	ev, err := s.events.Create(c.Request().Context(), in)
	if err != nil {
		return toAppError(err)
	}
	return c.JSON(http.StatusCreated, ev)
}

func (s *Server) handleUpdateEvent(c echo.Context) error {
	var req eventRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	in, err := req.input()
	if err != nil {
		return err
	}
	ev, err := s.events.Update(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return toAppError(err)
	}
	return c.JSON(http.StatusOK, ev)
}

func (s *Server) handleDeleteEvent(c echo.Context) error {
	n, err := s.events.Delete(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toAppError(err)
	}
	if n == 0 {
		return apperror.NewNotFound("event not found")
	}
	return c.NoContent(http.StatusNoContent)
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

// handleBulkDelete removes the selected events.
//
// POST /api/events/delete {"ids": ["evt-...", ...]}
func (s *Server) handleBulkDelete(c echo.Context) error {
	var req idsRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if len(req.IDs) == 0 {
		return apperror.NewBadRequest("no events selected")
	}
	n, err := s.events.Delete(c.Request().Context(), req.IDs...)
	if err != nil {
		return toAppError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"deleted": n})
}

// handleExport downloads the selected events as one calendar file.
//
// GET /api/export?ids=evt-1,evt-2
func (s *Server) handleExport(c echo.Context) error {
	var ids []string
	for _, id := range strings.Split(c.QueryParam("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return apperror.NewBadRequest("no events selected")
	}
	return s.writeExport(c, ids)
}

func (s *Server) handleExportEvent(c echo.Context) error {
	return s.writeExport(c, []string{c.Param("id")})
}

func (s *Server) writeExport(c echo.Context, ids []string) error {
	exp, err := s.events.Export(c.Request().Context(), ids)
	if err != nil {
		return toAppError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+exp.Filename+`"`)
	return c.Blob(http.StatusOK, "text/calendar; charset=utf-8", []byte(exp.Body))
}

type categoriesResponse struct {
	Categories []string       `json:"categories"`
	Counts     map[string]int `json:"counts"`
}

func (s *Server) handleCategories(c echo.Context) error {
	return s.writeCategories(c, http.StatusOK)
}

// handleAddCategory adds a category to the configured list. It answers 201
// when the list changed and 200 when the category already existed.
//
// POST /api/categories {"name": "Work"}
func (s *Server) handleAddCategory(c echo.Context) error {
	var req struct {
		Name string `json:"name" form:"name"`
	}
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperror.NewValidation("Category name is required.")
	}
	added, err := s.events.AddCategory(req.Name)
	if err != nil {
		return toAppError(err)
	}
	if added {
		return s.writeCategories(c, http.StatusCreated)
	}
	return s.writeCategories(c, http.StatusOK)
}

func (s *Server) writeCategories(c echo.Context, status int) error {
	ctx := c.Request().Context()
	cats, err := s.events.Categories(ctx)
	if err != nil {
		return toAppError(err)
	}
	counts, err := s.events.CategoryCounts(ctx)
	if err != nil {
		return toAppError(err)
	}
	return c.JSON(status, categoriesResponse{Categories: cats, Counts: counts})
}
