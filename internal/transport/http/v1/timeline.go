package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/streamer/internal/domain"
	"github.com/xiaot623/gogo/streamer/internal/timeline"
)

// timelineConfig applies the minimum and done query parameters on top of the
// configured defaults.
func (h *Handler) timelineConfig(c echo.Context) (timeline.Config, bool) {
	cfg := h.service.TimelineConfig()
	if m := c.QueryParam("minimum"); m != "" {
		val, err := strconv.Atoi(m)
		if err != nil || val < 0 {
			return cfg, false
		}
		cfg.MinimumActivities = val
	}
	if d := c.QueryParam("done"); d != "" {
		val, err := strconv.ParseBool(d)
		if err != nil {
			return cfg, false
		}
		cfg.AddDoneStep = val
	}
	return cfg, true
}

// GetRunTimeline returns the rebuilt timeline of a run.
// GET /v1/runs/:run_id/timeline
func (h *Handler) GetRunTimeline(c echo.Context) error {
	cfg, ok := h.timelineConfig(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid timeline parameters"})
	}

	runID := c.Param("run_id")
	steps, err := h.service.GetRunTimeline(c.Request().Context(), runID, cfg)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"run_id": runID,
		"steps":  steps,
	})
}

// GetRunStats returns the activity statistics of a run.
// GET /v1/runs/:run_id/stats
func (h *Handler) GetRunStats(c echo.Context) error {
	stats, err := h.service.GetRunStats(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// GetThreadTimeline returns the timelines of every run of a thread.
// GET /v1/threads/:thread_id/timeline
func (h *Handler) GetThreadTimeline(c echo.Context) error {
	cfg, ok := h.timelineConfig(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid timeline parameters"})
	}

	ctx := c.Request().Context()
	threadID := c.Param("thread_id")
	steps, err := h.service.GetThreadTimeline(ctx, threadID, cfg)
	if err != nil {
		return errorResponse(c, err)
	}
	stats, err := h.service.GetThreadStats(ctx, threadID)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, struct {
		ThreadID string                `json:"thread_id"`
		Steps    []domain.TimelineStep `json:"steps"`
		Stats    domain.TimelineStats  `json:"stats"`
	}{threadID, steps, stats})
}
