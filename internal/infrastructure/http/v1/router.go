package v1

import (
	"github.com/gin-gonic/gin"

	"prorab/internal/infrastructure/http/v1/handlers"
	"prorab/internal/infrastructure/http/v1/middleware"
	"prorab/internal/infrastructure/observability"
	"prorab/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// Reports serves the issuance reports
	Reports handlers.IssueReports

	// Database is pinged by the readiness probe
	Database handlers.Pinger

	// Redis is the optional shared cache tier; nil when disabled
	Redis handlers.Pinger

	// Metrics exposes /metrics and records request metrics; nil disables both
	Metrics *observability.Metrics
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware())
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Database, cfg.Redis)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	v1 := router.Group("/api/v1")
	{
		reports := v1.Group("/reports")
		baseHandler := handlers.NewBaseHandler()
		RegisterReportRoutes(reports.Group("/issues"), handlers.NewReportsHandler(baseHandler, cfg.Reports))
	}

	return router
}
