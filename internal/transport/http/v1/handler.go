// Package v1 provides the v1 HTTP handlers.
package v1

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"goa.design/clue/log"

	"github.com/xiaot623/gogo/streamer/internal/config"
	"github.com/xiaot623/gogo/streamer/internal/hub"
	"github.com/xiaot623/gogo/streamer/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service  *service.Service
	watchers *hub.Hub
	cfg      *config.Config
	upgrader websocket.Upgrader
}

// NewHandler creates a new handler. watchers may be nil, in which case the
// watch route is not registered.
func NewHandler(svc *service.Service, watchers *hub.Hub, cfg *config.Config) *Handler {
	return &Handler{
		service:  svc,
		watchers: watchers,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Streaming
	e.POST("/v1/threads/:thread_id/runs/stream", h.StreamRun)
	e.POST("/v1/threads/:thread_id/runs/resume", h.ResumeRun)

	// Runs
	e.GET("/v1/runs/:run_id", h.GetRun)
	e.GET("/v1/runs/:run_id/timeline", h.GetRunTimeline)
	e.GET("/v1/runs/:run_id/stats", h.GetRunStats)

	// Threads
	e.GET("/v1/threads/:thread_id/timeline", h.GetThreadTimeline)
	if h.watchers != nil {
		e.GET("/v1/threads/:thread_id/watch", h.WatchThread)
	}

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	resp := map[string]any{
		"status":  "healthy",
		"version": "0.1.0",
	}
	if h.watchers != nil {
		resp["watchers"] = h.watchers.ConnectionCount()
	}
	return c.JSON(http.StatusOK, resp)
}

func errorResponse(c echo.Context, err error) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": verr.Error()})
	case errors.Is(err, service.ErrRunNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrNothingToResume):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	log.Error(c.Request().Context(), err, log.KV{K: "path", V: c.Path()})
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
