package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/quillon/docresearch/models"
)

// modelStore is the credential surface the team-model endpoints need.
type modelStore interface {
	UpsertTeamModel(ctx context.Context, m models.TeamModel) error
	GetTeamModel(ctx context.Context, teamID string) (models.TeamModel, bool, error)
}

type TeamModelHandler struct {
	Store modelStore
}

func (h *TeamModelHandler) Register(g *echo.Group, secret []byte) {
	g.Use(withAuth(secret))
	g.PUT("/:teamId/model", h.upsert)
	g.GET("/:teamId/model", h.get)
}

func (h *TeamModelHandler) upsert(c echo.Context) error {
	teamID := c.Param("teamId")
	var req TeamModelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.APIKey == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "api_key required")
	}
	provider := models.ModelProvider(req.Provider)
	switch provider {
	case models.ProviderOpenAI, models.ProviderGemini:
	case models.ProviderAzure:
		if req.Endpoint == "" || req.Deployment == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "azure provider requires endpoint and deployment")
		}
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "provider must be one of: openai, azure, gemini")
	}

	m := models.TeamModel{
		TeamID:     teamID,
		Provider:   provider,
		APIKey:     req.APIKey,
		Endpoint:   req.Endpoint,
		Deployment: req.Deployment,
		Model:      req.Model,
	}
	if err := h.Store.UpsertTeamModel(c.Request().Context(), m); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *TeamModelHandler) get(c echo.Context) error {
	m, found, err := h.Store.GetTeamModel(c.Request().Context(), c.Param("teamId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "no model configured for team")
	}
	return c.JSON(http.StatusOK, TeamModelResponse{
		TeamID:     m.TeamID,
		Provider:   string(m.Provider),
		Endpoint:   m.Endpoint,
		Deployment: m.Deployment,
		Model:      m.Model,
	})
}
