package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/stagehandhq/stagehand/internal/route"
	"github.com/stagehandhq/stagehand/internal/script"
)

// RoutesHandler is the operator CRUD API for webhook routes.
type RoutesHandler struct {
	logger   *slog.Logger
	routes   route.Service
	validate *validator.Validate
}

// NewRoutesHandler creates the routes handler.
func NewRoutesHandler(log *slog.Logger, routes route.Service) *RoutesHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RoutesHandler{
		logger:   log.With(slog.String("handler", "routes")),
		routes:   routes,
		validate: validator.New(),
	}
}

// Register mounts the handler routes.
func (h *RoutesHandler) Register(e *echo.Echo) {
	e.GET("/api/routes", h.List)
	e.GET("/api/routes/:id", h.Get)
	e.POST("/api/routes", h.Create)
	e.PUT("/api/routes/:id", h.Update)
	e.DELETE("/api/routes/:id", h.Delete)
}

// routeView augments a route with its parsed stage list so the operator can
// see what the marker grammar extracted.
type routeView struct {
	route.Route
	Stages []string `json:"stages"`
}

func toView(r route.Route) routeView {
	return routeView{Route: r, Stages: script.Parse(r.Script).Stages}
}

func (h *RoutesHandler) List(c echo.Context) error {
	routes, err := h.routes.List(c.Request().Context())
	if err != nil {
		h.logger.Error("list routes failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "list failed")
	}
	views := make([]routeView, 0, len(routes))
	for _, r := range routes {
		views = append(views, toView(r))
	}
	return c.JSON(http.StatusOK, views)
}

func (h *RoutesHandler) Get(c echo.Context) error {
	r, err := h.routes.Get(c.Request().Context(), strings.TrimSpace(c.Param("id")))
	if errors.Is(err, route.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "route not found")
	}
	if err != nil {
		h.logger.Error("get route failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}
	return c.JSON(http.StatusOK, toView(r))
}

func (h *RoutesHandler) Create(c echo.Context) error {
	input, err := h.bindInput(c)
	if err != nil {
		return err
	}
	r, err := h.routes.Create(c.Request().Context(), input)
	if err != nil {
		h.logger.Error("create route failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, toView(r))
}

func (h *RoutesHandler) Update(c echo.Context) error {
	input, err := h.bindInput(c)
	if err != nil {
		return err
	}
	r, err := h.routes.Update(c.Request().Context(), strings.TrimSpace(c.Param("id")), input)
	if errors.Is(err, route.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "route not found")
	}
	if err != nil {
		h.logger.Error("update route failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, toView(r))
}

func (h *RoutesHandler) Delete(c echo.Context) error {
	err := h.routes.Delete(c.Request().Context(), strings.TrimSpace(c.Param("id")))
	if errors.Is(err, route.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "route not found")
	}
	if err != nil {
		h.logger.Error("delete route failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "delete failed")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *RoutesHandler) bindInput(c echo.Context) (route.UpsertInput, error) {
	var input route.UpsertInput
	if err := c.Bind(&input); err != nil {
		return route.UpsertInput{}, echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := h.validate.Struct(input); err != nil {
		return route.UpsertInput{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return input, nil
}
