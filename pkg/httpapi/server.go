// Package httpapi is the read-only status surface over the poller's file
// state: health, a meeting's last run result, and the current active-meeting
// lock. Grounded on the teacher's cmd/tarsy/main.go + pkg/api/server.go
// (route registration order, JSON health envelope) and pkg/api/handlers.go
// (typed JSON error envelope) — re-expressed with gin instead of echo
// since this module's web framework dependency is gin (SPEC_FULL.md's
// domain stack), the route/handler shape otherwise unchanged.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smartmeet/notetaker/pkg/models"
	"github.com/smartmeet/notetaker/pkg/statestore"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the JSON envelope every error response uses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ActiveLockResponse is returned by GET /api/v1/active-lock.
type ActiveLockResponse struct {
	Active bool                `json:"active"`
	Lock   *models.ActiveLock  `json:"lock,omitempty"`
}

// Server is the read-only status API.
type Server struct {
	engine    *gin.Engine
	history   RunResultReader
	lockStore *statestore.ActiveLockStore
	now       func() time.Time
}

// RunResultReader is the subset of *statestore.RunResultStore the server
// depends on, narrowed for testability.
type RunResultReader interface {
	Get(eventID, eventStartToken string) (*models.MeetingRunResult, error)
}

// NewServer builds the gin engine with gin.New() plus the recovery
// middleware and registers routes. Gin's mode (release or debug) is left
// to the caller, matching the teacher's habit of constructing the engine
// once at process start and injecting already-built dependencies.
func NewServer(history RunResultReader, lockStore *statestore.ActiveLockStore) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, history: history, lockStore: lockStore, now: time.Now}
	s.routes()
	return s
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/health", s.healthHandler)

	v1 := s.engine.Group("/api/v1")
	v1.GET("/meetings/:event_id/:event_start", s.getMeetingHandler)
	v1.GET("/active-lock", s.activeLockHandler)
}

// healthHandler handles GET /health. This poller has no database of its
// own to ping (the pipeline's Postgres store is checked by the pipeline
// worker, not this surface) so health only reports process liveness,
// matching the teacher's "only check this service's own components"
// convention from handler_health.go.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: statusHealthy})
}

// getMeetingHandler handles GET /api/v1/meetings/:event_id/:event_start,
// returning the last persisted MeetingRunResult for that occurrence.
func (s *Server) getMeetingHandler(c *gin.Context) {
	eventID := c.Param("event_id")
	eventStart := c.Param("event_start")

	result, err := s.history.Get(eventID, eventStart)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no run result for this meeting occurrence"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// activeLockHandler handles GET /api/v1/active-lock, reporting whether a
// meeting is currently holding the single-active-meeting lock.
func (s *Server) activeLockHandler(c *gin.Context) {
	lock, err := s.lockStore.Read()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if lock == nil || !statestore.IsActive(lock, s.now()) {
		c.JSON(http.StatusOK, ActiveLockResponse{Active: false})
		return
	}
	c.JSON(http.StatusOK, ActiveLockResponse{Active: true, Lock: lock})
}
