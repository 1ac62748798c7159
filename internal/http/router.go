package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/ratebench-backend/internal/http/handlers"
	httpMW "github.com/yungbote/ratebench-backend/internal/http/middleware"
	"github.com/yungbote/ratebench-backend/internal/observability"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowedOrigins []string
	Metrics        *observability.Metrics

	AuthMiddleware *httpMW.AuthMiddleware

	ConfigurationHandler *httpH.ConfigurationHandler
	RunHandler           *httpH.RunHandler
	RatingHandler        *httpH.RatingHandler
	HealthHandler        *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		api.Use(cfg.AuthMiddleware.RequireAuth())
	}
	admin := api.Group("/")
	if cfg.AuthMiddleware != nil {
		admin.Use(cfg.AuthMiddleware.RequireAdmin())
	}

	// Configurations
	if h := cfg.ConfigurationHandler; h != nil {
		api.GET("/configurations", h.ListConfigurations)
		api.GET("/configurations/:id", h.GetConfiguration)
		api.GET("/configurations/:id/instances", h.ListInstances)
		admin.POST("/configurations", h.CreateConfiguration)
		admin.PUT("/configurations/:id", h.UpdateConfiguration)
		admin.DELETE("/configurations/:id", h.DeleteConfiguration)
		admin.POST("/configurations/:id/instances", h.UploadInstances)
	}

	// Runs and worker
	if h := cfg.RunHandler; h != nil {
		api.GET("/configurations/:id/runs", h.ListRuns)
		api.GET("/runs/:id", h.GetRun)
		admin.POST("/configurations/:id/runs", h.CreateRun)
		admin.POST("/configurations/:id/brackets/rebuild", h.RebuildBrackets)
		admin.POST("/runs/:id/cancel", h.CancelRun)
		admin.POST("/runs/:id/retry", h.RetryRun)
		admin.POST("/worker/batch", h.TriggerBatch)
	}

	// Rating
	if h := cfg.RatingHandler; h != nil {
		api.POST("/rating/next", h.NextMatch)
		api.POST("/rating/matches/:id/release", h.Release)
		api.POST("/rating/matches/:id/submit", h.Submit)
		api.GET("/configurations/:id/rating/progress", h.Progress)
		api.GET("/configurations/:id/results", h.Results)
	}

	return r
}
