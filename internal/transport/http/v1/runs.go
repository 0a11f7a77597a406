package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/streamer/internal/domain"
	"github.com/xiaot623/gogo/streamer/internal/service"
	"github.com/xiaot623/gogo/streamer/internal/streaming"
)

// StreamRun starts a run and streams its events as SSE.
// POST /v1/threads/:thread_id/runs/stream
func (h *Handler) StreamRun(c echo.Context) error {
	var req domain.StreamRunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	ctx := c.Request().Context()
	prepared, err := h.service.PrepareRun(ctx, c.Param("thread_id"), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return h.stream(c, prepared)
}

// ResumeRun continues the latest interrupted run of a thread as SSE.
// POST /v1/threads/:thread_id/runs/resume
func (h *Handler) ResumeRun(c echo.Context) error {
	var req domain.ResumeRunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	ctx := c.Request().Context()
	prepared, err := h.service.PrepareResume(ctx, c.Param("thread_id"), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return h.stream(c, prepared)
}

func (h *Handler) stream(c echo.Context, prepared *service.PreparedRun) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.Header().Set("X-Run-ID", prepared.RunID)
	res.WriteHeader(http.StatusOK)
	res.Flush()

	// Status is already persisted by the hooks.
	h.service.Execute(c.Request().Context(), prepared, streaming.NewSSETransport(res))
	return nil
}

// GetRun returns a run.
// GET /v1/runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	run, err := h.service.GetRun(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, run)
}
