// Package server assembles the echo HTTP server.
package server

import (
	"context"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/stagehandhq/stagehand/internal/auth"
)

// Handler is anything that mounts routes on the echo instance.
type Handler interface {
	Register(e *echo.Echo)
}

// Server wraps echo with the middleware stack and registered handlers.
type Server struct {
	echo *echo.Echo
	addr string
}

// New creates the server. Webhook and probe paths bypass JWT auth; the
// operator API requires a bearer token when a secret is configured.
func New(log *slog.Logger, addr, jwtSecret string, handlers []Handler) *Server {
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status))
			return nil
		},
	}))

	if strings.TrimSpace(jwtSecret) != "" {
		e.Use(auth.JWTMiddleware(jwtSecret, func(c echo.Context) bool {
			path := c.Request().URL.Path
			if path == "/ping" {
				return true
			}
			return strings.HasPrefix(path, "/hooks/")
		}))
	} else {
		log.Warn("jwt secret not configured, operator API is unauthenticated")
	}

	for _, h := range handlers {
		if h != nil {
			h.Register(e)
		}
	}

	return &Server{echo: e, addr: addr}
}

// Start begins serving; blocks until shutdown.
func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
