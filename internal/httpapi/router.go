package httpapi

import (
	"context"
	"time"

	"op-insight/internal/etl"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type importer interface {
	ImportLocked(ctx context.Context, path string) (*etl.Report, error)
}

// Options configures the router.
type Options struct {
	AppEnv   string
	SyncFile string
}

// NewRouter builds the read-only statistics API plus the import trigger.
func NewRouter(opts Options, svc statistics, imp importer) *gin.Engine {
	if opts.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLog)
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	h := &Handlers{svc: svc, importer: imp, syncFile: opts.SyncFile}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	api.GET("/dashboard", h.Dashboard)
	api.GET("/projects", h.Projects)
	api.GET("/projects/:projectId", h.Project)
	api.GET("/statistics/project/:projectId", h.ProjectStatistics)
	api.GET("/statistics/project/:projectId/member/:memberId/details", h.MemberTaskDetails)
	api.GET("/statistics/project/:projectId/goal-periods", h.GoalPeriods)

	r.POST("/admin/import", h.RunImport)

	return r
}

func requestLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	log.Info().
		Str("method", c.Request.Method).
		Str("path", c.FullPath()).
		Int("status", c.Writer.Status()).
		Dur("elapsed", time.Since(start)).
		Msg("http")
}
