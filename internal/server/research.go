package server

import (
	"context"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/quillon/docresearch/models"
)

// researchStore is the queue surface the research endpoints need.
type researchStore interface {
	CreateResearchRequest(ctx context.Context, req models.ResearchRequest) (models.ResearchRequest, error)
	GetResearchRequest(ctx context.Context, id string) (models.ResearchRequest, bool, error)
	ListResearchRequestsByTeam(ctx context.Context, teamID string) ([]models.ResearchRequest, error)
	RequeueRequest(ctx context.Context, id string) error
}

// researchTrigger wakes the worker after a submission.
type researchTrigger interface {
	Fire(ctx context.Context, teamID string) error
}

type ResearchHandler struct {
	Store   researchStore
	Trigger researchTrigger
	Logger  *log.Logger
}

func (h *ResearchHandler) Register(g *echo.Group, secret []byte) {
	g.Use(withAuth(secret))
	g.POST("", h.submit)
	g.GET("", h.list)
	g.GET("/:id", h.status)
	g.POST("/:id/requeue", h.requeue)
}

// submit enqueues a research request and fires a worker wakeup. The call
// returns as soon as the row exists; processing happens out of band.
func (h *ResearchHandler) submit(c echo.Context) error {
	var req ResearchSubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.TeamID == "" || len(req.DocumentIDs) == 0 || req.UserSearchQuery == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "team_id, document_ids and user_search_query required")
	}

	record := models.ResearchRequest{
		TeamID:          req.TeamID,
		UserID:          userID(c),
		DocumentIDs:     req.DocumentIDs,
		UserSearchQuery: req.UserSearchQuery,
		SimilarityScore: 1.0,
		SequentialQuery: true,
		EnhancedSearch:  false,
	}
	if req.SimilarityScore != nil {
		record.SimilarityScore = *req.SimilarityScore
	}
	if req.SequentialQuery != nil {
		record.SequentialQuery = *req.SequentialQuery
	}
	if req.EnhancedSearch != nil {
		record.EnhancedSearch = *req.EnhancedSearch
	}

	created, err := h.Store.CreateResearchRequest(c.Request().Context(), record)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	// Fire-and-forget: a lost wakeup is not an error for the caller; the
	// request sits in the queue until any later trigger drains it.
	if err := h.Trigger.Fire(c.Request().Context(), created.TeamID); err != nil {
		h.Logger.Printf("warn: trigger fire for team %s failed: %v", created.TeamID, err)
	}

	return c.JSON(http.StatusCreated, created)
}

func (h *ResearchHandler) list(c echo.Context) error {
	teamID := c.QueryParam("team_id")
	if teamID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "team_id required")
	}
	items, err := h.Store.ListResearchRequestsByTeam(c.Request().Context(), teamID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []models.ResearchRequest{}
	}
	return c.JSON(http.StatusOK, items)
}

// status is the polling read: no side effects.
func (h *ResearchHandler) status(c echo.Context) error {
	req, found, err := h.Store.GetResearchRequest(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "research request not found")
	}
	findings := req.IndividualFindings
	if findings == nil {
		findings = []models.Finding{}
	}
	return c.JSON(http.StatusOK, ResearchStatusResponse{
		ID:                 req.ID,
		Status:             req.Status,
		IndividualFindings: findings,
		OverallSummary:     req.OverallSummary,
	})
}

// requeue resets a stalled request to "in queue" and fires a wakeup. This is
// the operator's manual re-trigger after a mid-run failure.
func (h *ResearchHandler) requeue(c echo.Context) error {
	id := c.Param("id")
	req, found, err := h.Store.GetResearchRequest(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "research request not found")
	}
	if err := h.Store.RequeueRequest(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.Trigger.Fire(c.Request().Context(), req.TeamID); err != nil {
		h.Logger.Printf("warn: trigger fire for team %s failed: %v", req.TeamID, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func userID(c echo.Context) string {
	if v, ok := c.Get("user_id").(string); ok {
		return v
	}
	return ""
}
