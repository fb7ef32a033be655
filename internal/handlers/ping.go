package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// PingHandler serves the liveness probe.
type PingHandler struct{}

// NewPingHandler creates a ping handler.
func NewPingHandler() *PingHandler {
	return &PingHandler{}
}

// Register mounts the handler routes.
func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
