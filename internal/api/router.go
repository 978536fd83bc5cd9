package api

import (
	"github.com/gin-gonic/gin"

	"github.com/obsguard/obsguard/pkg/config"
	"github.com/obsguard/obsguard/pkg/gate"
	"github.com/obsguard/obsguard/pkg/logging"
	"github.com/obsguard/obsguard/pkg/metrics"
	"github.com/obsguard/obsguard/pkg/resilience"
)

// NewRouter creates and configures the API router
func NewRouter(cfg *config.Config, logger *logging.Logger, m *metrics.Metrics, manager *resilience.Manager, gatekeeper *gate.Gatekeeper) *gin.Engine {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(logger))
	router.Use(ErrorHandlingMiddleware())
	router.Use(SecurityHeadersMiddleware())
	if m != nil {
		router.Use(m.PrometheusMiddleware())
	}

	healthHandler := NewHealthHandler(manager)
	router.GET("/health/live", healthHandler.Live)
	router.GET("/health", healthHandler.Health)

	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	gateDefaults := gate.FullOptions(cfg.Gate.Environment)
	gateDefaults.CheckTimeout = cfg.Gate.CheckTimeout
	gateDefaults.RunBudget = cfg.Gate.RunBudget
	gateDefaults.Strict = gateDefaults.Strict || cfg.Gate.StrictMode
	gateHandler := NewGateHandler(gatekeeper, gateDefaults)

	failureHandler := NewFailureHandler(manager)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/gate/run", gateHandler.Run)

		failures := v1.Group("/failures")
		{
			failures.POST("", failureHandler.Report)
			failures.POST("/:id/resolve", failureHandler.Resolve)
		}

		v1.GET("/degradation", failureHandler.Degradation)
	}

	return router
}
