package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/stagehandhq/stagehand/internal/conversation"
	"github.com/stagehandhq/stagehand/internal/turn"
)

// ConversationsHandler is the operator control plane over conversation state:
// inspection, human-handoff toggling, manual re-trigger, and deletion. All
// mutations go through the store's advisory-lock checks.
type ConversationsHandler struct {
	logger        *slog.Logger
	conversations conversation.Store
	scheduler     *turn.Scheduler
}

// NewConversationsHandler creates the conversations handler.
func NewConversationsHandler(log *slog.Logger, store conversation.Store, scheduler *turn.Scheduler) *ConversationsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ConversationsHandler{
		logger:        log.With(slog.String("handler", "conversations")),
		conversations: store,
		scheduler:     scheduler,
	}
}

// Register mounts the handler routes.
func (h *ConversationsHandler) Register(e *echo.Echo) {
	e.GET("/api/conversations", h.List)
	e.GET("/api/conversations/:id", h.Get)
	e.PUT("/api/conversations/:id/handoff", h.SetHandoff)
	e.POST("/api/conversations/:id/retrigger", h.Retrigger)
	e.DELETE("/api/conversations/:id", h.Delete)
}

func (h *ConversationsHandler) List(c echo.Context) error {
	routeID := strings.TrimSpace(c.QueryParam("route_id"))
	if routeID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "route_id is required")
	}
	records, err := h.conversations.ListByRoute(c.Request().Context(), routeID)
	if err != nil {
		h.logger.Error("list conversations failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "list failed")
	}
	return c.JSON(http.StatusOK, records)
}

func (h *ConversationsHandler) Get(c echo.Context) error {
	rec, err := h.byID(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

type handoffRequest struct {
	Handoff bool `json:"handoff"`
}

func (h *ConversationsHandler) SetHandoff(c echo.Context) error {
	rec, err := h.byID(c)
	if err != nil {
		return err
	}
	var req handoffRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	updated, err := h.conversations.SetHandoff(c.Request().Context(), rec.Key(), req.Handoff)
	if errors.Is(err, conversation.ErrTurnLocked) {
		return echo.NewHTTPError(http.StatusConflict, "turn in flight, try again")
	}
	if err != nil {
		h.logger.Error("set handoff failed", slog.String("key", rec.Key().String()), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "update failed")
	}
	return c.JSON(http.StatusOK, updated)
}

// Retrigger replays the conversation's last inbound text through the
// coalescing scheduler, producing a fresh turn.
func (h *ConversationsHandler) Retrigger(c echo.Context) error {
	rec, err := h.byID(c)
	if err != nil {
		return err
	}
	if strings.TrimSpace(rec.LastInboundText) == "" {
		return echo.NewHTTPError(http.StatusConflict, "no inbound text to replay")
	}
	if err := h.scheduler.Enqueue(c.Request().Context(), rec.Key(), rec.DisplayName, rec.LastInboundText); err != nil {
		h.logger.Error("retrigger failed", slog.String("key", rec.Key().String()), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "retrigger failed")
	}
	return c.JSON(http.StatusAccepted, map[string]bool{"queued": true})
}

func (h *ConversationsHandler) Delete(c echo.Context) error {
	rec, err := h.byID(c)
	if err != nil {
		return err
	}
	err = h.conversations.Delete(c.Request().Context(), rec.Key())
	if errors.Is(err, conversation.ErrTurnLocked) {
		return echo.NewHTTPError(http.StatusConflict, "turn in flight, try again")
	}
	if err != nil {
		h.logger.Error("delete conversation failed", slog.String("key", rec.Key().String()), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "delete failed")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ConversationsHandler) byID(c echo.Context) (conversation.Record, error) {
	id := strings.TrimSpace(c.Param("id"))
	rec, err := h.conversations.GetByID(c.Request().Context(), id)
	if errors.Is(err, conversation.ErrNotFound) {
		return conversation.Record{}, echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	if err != nil {
		h.logger.Error("get conversation failed", slog.String("id", id), slog.Any("error", err))
		return conversation.Record{}, echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}
	return rec, nil
}
