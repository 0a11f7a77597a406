// Package http provides the HTTP server of the streamer.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/gogo/streamer/internal/config"
	"github.com/xiaot623/gogo/streamer/internal/hub"
	"github.com/xiaot623/gogo/streamer/internal/service"
	v1 "github.com/xiaot623/gogo/streamer/internal/transport/http/v1"
)

// NewServer creates and configures the HTTP server.
func NewServer(svc *service.Service, watchers *hub.Hub, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	v1.NewHandler(svc, watchers, cfg).RegisterRoutes(e)

	return e
}
