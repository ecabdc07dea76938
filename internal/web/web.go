// Package web exposes the staging area over a JSON HTTP API built on echo.
package web

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/crypto/bcrypt"

	"evstage/internal/apperror"
	"evstage/internal/config"
	"evstage/internal/events"
	"evstage/internal/feeds"
	appLog "evstage/internal/log"
	"evstage/internal/metrics"
)

// maxUploadSize bounds import request bodies.
const maxUploadSize = "10M"

// Server provides the HTTP API for events, imports, exports and feeds.
type Server struct {
	cfg     *config.Holder
	events  *events.Service
	feeds   *feeds.Service
	metrics *metrics.Metrics
	echo    *echo.Echo

	// In-memory cache for /api/calendar responses. Entries are dropped when
	// any write request is served (generation bump) or after calendarCacheTTL,
	// which bounds staleness after scheduled feed refreshes.
	calendarMu    sync.RWMutex
	calendarCache map[string]calendarEntry
	generation    atomic.Uint64
}

// NewServer constructs a Server and registers its routes. m may be nil.
func NewServer(cfg *config.Holder, ev *events.Service, fd *feeds.Service, m *metrics.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		cfg:           cfg,
		events:        ev,
		feeds:         fd,
		metrics:       m,
		echo:          e,
		calendarCache: make(map[string]calendarEntry),
	}
	e.HTTPErrorHandler = s.errorHandler
	s.setupMiddleware()
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// setupMiddleware registers global middleware. Recovery is outermost.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			appLog.Debug("http request",
				"method", v.Method,
				"path", v.URIPath,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			)
			return nil
		},
	}))

	if auth := s.cfg.Snapshot().BasicAuth; basicAuthEnabled(auth) {
		appLog.Info("HTTP basic auth enabled", "user", auth.Username, "hashed", auth.PasswordHash != "")
		s.echo.Use(middleware.BasicAuthWithConfig(middleware.BasicAuthConfig{
			// /health is always reachable without credentials.
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/health"
			},
			Realm:     "evstage",
			Validator: credentialsValidator(*auth),
		}))
	}

	s.echo.Use(s.invalidateOnWrite)
}

func (s *Server) registerRoutes() {
	e := s.echo

	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	api := e.Group("/api")

	api.GET("/events", s.handleListEvents)
	api.POST("/events", s.handleCreateEvent)
	api.POST("/events/delete", s.handleBulkDelete)
	api.GET("/events/:id", s.handleGetEvent)
	api.PUT("/events/:id", s.handleUpdateEvent)
	api.DELETE("/events/:id", s.handleDeleteEvent)
	api.GET("/events/:id/export", s.handleExportEvent)

	api.GET("/categories", s.handleCategories)
	api.POST("/categories", s.handleAddCategory)

	upload := api.Group("/import", middleware.BodyLimit(maxUploadSize))
	upload.POST("/preview", s.handleImportPreview)
	upload.POST("", s.handleImport)

	api.GET("/export", s.handleExport)
	api.GET("/calendar", s.handleCalendar)

	api.GET("/feeds", s.handleListFeeds)
	api.POST("/feeds", s.handleSubscribe)
	api.DELETE("/feeds", s.handleRemoveFeed)
	api.POST("/feeds/refresh", s.handleRefreshFeeds)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// invalidateOnWrite drops cached calendar responses whenever a request
// may have changed stored events.
func (s *Server) invalidateOnWrite(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		if c.Request().Method != http.MethodGet && c.Request().Method != http.MethodHead {
			s.generation.Add(1)
		}
		return err
	}
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured. An empty
// username, or neither a password nor a hash, leaves it disabled.
func basicAuthEnabled(a *config.BasicAuthConfig) bool {
	if a == nil || a.Username == "" {
		return false
	}
	return a.Password != "" || a.PasswordHash != ""
}

// credentialsValidator checks the username in constant time and the
// password against the bcrypt hash when one is configured, else against the
// plain password in constant time.
func credentialsValidator(a config.BasicAuthConfig) middleware.BasicAuthValidator {
	return func(user, pass string, _ echo.Context) (bool, error) {
		if !secureCompare(user, a.Username) {
			return false, nil
		}
		if a.PasswordHash != "" {
			return bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(pass)) == nil, nil
		}
		return secureCompare(pass, a.Password), nil
	}
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// errorHandler maps AppErrors and echo errors to JSON responses. Anything
// else is logged and reported as a generic 500.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "An unexpected error occurred"

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		message = appErr.Message
		if appErr.Internal != nil {
			appLog.Error("request failed", appErr.Internal,
				"type", appErr.Type,
				"path", c.Request().URL.Path,
			)
		}
	case errors.As(err, &echoErr):
		code = echoErr.Code
		if msg, ok := echoErr.Message.(string); ok {
			message = msg
		} else {
			message = strings.ToLower(http.StatusText(code))
		}
	default:
		appLog.Error("unhandled error", err, "path", c.Request().URL.Path)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]string{
		"error":   http.StatusText(code),
		"message": message,
	})
}

// toAppError translates service errors into client-facing errors.
func toAppError(err error) error {
	var appErr *apperror.AppError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, events.ErrNotFound):
		return apperror.NewNotFound("event not found")
	case errors.Is(err, events.ErrTitleRequired):
		return apperror.NewValidation("Title is required.")
	case errors.Is(err, feeds.ErrInvalidURL):
		return apperror.NewBadRequest("Enter a full http:// or https:// feed URL.")
	case errors.Is(err, feeds.ErrUnknownFeed):
		return apperror.NewNotFound("feed not found")
	case errors.Is(err, feeds.ErrNoEvents):
		return apperror.NewValidation("Couldn't parse events from that URL. Try a direct .ics, .csv, .json, or RSS feed link.")
	case errors.Is(err, feeds.ErrFetchFailed):
		return apperror.NewBadGateway("Failed to fetch the feed. Check the URL or try downloading the file and uploading it instead.", err)
	default:
		return apperror.NewInternal(err)
	}
}

// calendarEntry holds a cached /api/calendar response.
type calendarEntry struct {
	resp       calendarResponse
	generation uint64
	updatedAt  time.Time
}
