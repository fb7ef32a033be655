// Package handlers contains the echo HTTP handlers: the provider webhook
// ingest path and the operator control-plane API.
package handlers

import (
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/stagehandhq/stagehand/internal/conversation"
	"github.com/stagehandhq/stagehand/internal/provider"
	"github.com/stagehandhq/stagehand/internal/route"
	"github.com/stagehandhq/stagehand/internal/turn"
)

const maxWebhookBody = 1 << 20

// WebhookHandler ingests provider webhooks. The response is always a prompt
// acknowledgement: turn processing happens after the HTTP response, and its
// failures never surface here.
type WebhookHandler struct {
	logger    *slog.Logger
	routes    route.Reader
	registry  *provider.Registry
	scheduler *turn.Scheduler
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(log *slog.Logger, routes route.Reader, registry *provider.Registry, scheduler *turn.Scheduler) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		logger:    log.With(slog.String("handler", "webhook")),
		routes:    routes,
		registry:  registry,
		scheduler: scheduler,
	}
}

// Register mounts the handler routes.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/hooks/:route/:secret", h.Receive)
	e.GET("/hooks/:route/:secret", h.Verify)
}

// Verify answers the provider handshake by echoing the challenge query
// parameter as plain text.
func (h *WebhookHandler) Verify(c echo.Context) error {
	if _, err := h.resolveRoute(c); err != nil {
		return err
	}
	challenge := c.QueryParam("hub.challenge")
	if challenge == "" {
		challenge = c.QueryParam("challenge")
	}
	return c.String(http.StatusOK, challenge)
}

// Receive normalizes the payload and buffers user-authored text into the
// coalescing scheduler. Non-text events are acknowledged and ignored.
func (h *WebhookHandler) Receive(c echo.Context) error {
	rt, err := h.resolveRoute(c)
	if err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("read webhook body failed", slog.String("route_id", rt.ID), slog.Any("error", err))
		return ack(c)
	}

	adapter, ok := h.registry.Get(rt.ProviderKind)
	if !ok {
		h.logger.Error("no adapter for route", slog.String("route_id", rt.ID), slog.String("kind", rt.ProviderKind.String()))
		return ack(c)
	}

	msg, err := adapter.Normalize(body)
	if err != nil {
		h.logger.Warn("normalize failed", slog.String("route_id", rt.ID), slog.Any("error", err))
		return ack(c)
	}
	if msg == nil {
		// Not a user-authored text message.
		return ack(c)
	}

	key := conversation.Key{RouteID: rt.ID, SenderID: msg.SenderID}
	if err := h.scheduler.Enqueue(c.Request().Context(), key, msg.DisplayName, msg.Text); err != nil {
		h.logger.Error("enqueue failed", slog.String("key", key.String()), slog.Any("error", err))
	}
	return ack(c)
}

func (h *WebhookHandler) resolveRoute(c echo.Context) (route.Route, error) {
	routeID := strings.TrimSpace(c.Param("route"))
	secret := strings.TrimSpace(c.Param("secret"))

	rt, err := h.routes.Get(c.Request().Context(), routeID)
	if errors.Is(err, route.ErrNotFound) {
		return route.Route{}, echo.NewHTTPError(http.StatusNotFound, "unknown route")
	}
	if err != nil {
		h.logger.Error("resolve route failed", slog.String("route_id", routeID), slog.Any("error", err))
		return route.Route{}, echo.NewHTTPError(http.StatusInternalServerError, "route lookup failed")
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(rt.WebhookSecret)) != 1 {
		return route.Route{}, echo.NewHTTPError(http.StatusNotFound, "unknown route")
	}
	return rt, nil
}

func ack(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
