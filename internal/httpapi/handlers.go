package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"op-insight/internal/analytics"
	"op-insight/internal/etl"
	"op-insight/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type statistics interface {
	ProjectStatistics(ctx context.Context, projectID int64, goalPeriod string) ([]analytics.MemberStatistic, error)
	MemberTaskDetails(ctx context.Context, projectID, memberID int64, goalPeriod string) (*analytics.MemberTaskDetails, error)
	AvailableGoalPeriods(ctx context.Context, projectID int64) ([]string, error)
	Projects(ctx context.Context) ([]store.Project, error)
	Project(ctx context.Context, id int64) (store.Project, error)
	DashboardCounts(ctx context.Context) (store.Counts, error)
}

type Handlers struct {
	svc      statistics
	importer importer
	syncFile string
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GET /api/dashboard
func (h *Handlers) Dashboard(c *gin.Context) {
	counts, err := h.svc.DashboardCounts(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// GET /api/projects
func (h *Handlers) Projects(c *gin.Context) {
	projects, err := h.svc.Projects(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	if projects == nil {
		projects = []store.Project{}
	}
	c.JSON(http.StatusOK, projects)
}

// GET /api/projects/:projectId
func (h *Handlers) Project(c *gin.Context) {
	id, ok := positiveParam(c, "projectId")
	if !ok {
		return
	}
	p, err := h.svc.Project(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// GET /api/statistics/project/:projectId?goalPeriod=
func (h *Handlers) ProjectStatistics(c *gin.Context) {
	id, ok := positiveParam(c, "projectId")
	if !ok {
		return
	}
	stats, err := h.svc.ProjectStatistics(c.Request.Context(), id, c.Query("goalPeriod"))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GET /api/statistics/project/:projectId/member/:memberId/details?goalPeriod=
func (h *Handlers) MemberTaskDetails(c *gin.Context) {
	projectID, ok := positiveParam(c, "projectId")
	if !ok {
		return
	}
	memberID, ok := positiveParam(c, "memberId")
	if !ok {
		return
	}
	details, err := h.svc.MemberTaskDetails(c.Request.Context(), projectID, memberID, c.Query("goalPeriod"))
	if err != nil {
		internalError(c, err)
		return
	}
	if len(details.Tasks) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no tasks found for this member"})
		return
	}
	c.JSON(http.StatusOK, details)
}

// GET /api/statistics/project/:projectId/goal-periods
func (h *Handlers) GoalPeriods(c *gin.Context) {
	id, ok := positiveParam(c, "projectId")
	if !ok {
		return
	}
	periods, err := h.svc.AvailableGoalPeriods(c.Request.Context(), id)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, periods)
}

// POST /admin/import
func (h *Handlers) RunImport(c *gin.Context) {
	file := h.syncFile
	// Detached from the request so the import outlives the response.
	go func() {
		rep, err := h.importer.ImportLocked(context.Background(), file)
		if errors.Is(err, etl.ErrImportRunning) {
			log.Info().Msg("Import already running, trigger ignored")
			return
		}
		if err != nil {
			log.Error().Err(err).Str("file", file).Msg("Triggered import failed")
			return
		}
		log.Info().Str("run", rep.RunID).Msg("Triggered import finished")
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "file": file})
}

func positiveParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func internalError(c *gin.Context, err error) {
	log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
