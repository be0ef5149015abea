// Package routes wires the control-plane endpoint table onto an echo/v5
// router.
package routes

import (
	"github.com/labstack/echo/v5"

	"github.com/loadpulse/loadpulse/pkg/handlers"
)

// Setup registers every endpoint of the control plane.
func Setup(e *echo.Echo, h *handlers.Handler) {
	e.GET("/api/health", func(c *echo.Context) error { return h.Health(c) })
	e.GET("/api/tests", func(c *echo.Context) error { return h.ListTests(c) })
	e.GET("/api/tests/:id", func(c *echo.Context) error { return h.GetTest(c) })
	e.POST("/api/load-test", func(c *echo.Context) error { return h.StartLoadTest(c) })
	e.POST("/api/stress-test", func(c *echo.Context) error { return h.StartStressTest(c) })
	e.POST("/api/api-test", func(c *echo.Context) error { return h.StartAPITest(c) })
	e.GET("/api/metrics", func(c *echo.Context) error { return h.RuntimeMetrics(c) })
	e.GET("/ws", func(c *echo.Context) error { return h.ServeWS(c) })
}
