package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/quillon/docresearch/models"
)

// activityStore is the completed-results surface the activity endpoints need.
type activityStore interface {
	GetActivityLogEntry(ctx context.Context, id string) (models.ActivityLogEntry, bool, error)
	ListActivityLogByTeam(ctx context.Context, teamID string) ([]models.ActivityLogEntry, error)
	DeleteActivityLogEntry(ctx context.Context, id string) error
}

type ActivityHandler struct {
	Store activityStore
}

func (h *ActivityHandler) Register(g *echo.Group, secret []byte) {
	g.Use(withAuth(secret))
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.DELETE("/:id", h.delete)
}

func (h *ActivityHandler) list(c echo.Context) error {
	teamID := c.QueryParam("team_id")
	if teamID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "team_id required")
	}
	items, err := h.Store.ListActivityLogByTeam(c.Request().Context(), teamID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []models.ActivityLogEntry{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ActivityHandler) get(c echo.Context) error {
	entry, found, err := h.Store.GetActivityLogEntry(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "results not found")
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *ActivityHandler) delete(c echo.Context) error {
	if err := h.Store.DeleteActivityLogEntry(c.Request().Context(), c.Param("id")); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "results not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
