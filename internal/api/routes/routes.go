package routes

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JGeek00/crowdsec-monitor-api/internal/api/handlers"
	"github.com/JGeek00/crowdsec-monitor-api/internal/api/middleware"
	"github.com/JGeek00/crowdsec-monitor-api/internal/config"
	"github.com/JGeek00/crowdsec-monitor-api/internal/services"
)

// Deps are the services the HTTP surface is built from.
type Deps struct {
	Config     config.Config
	Alerts     *services.AlertService
	Decisions  *services.DecisionService
	Statistics *services.StatisticsService
	LAPI       handlers.LAPIStatus
	Sync       handlers.SyncStatus
	Version    handlers.VersionStatus

	// RateLimiter is nil when RATE_LIMIT is unset.
	RateLimiter *middleware.RateLimiter
	// Gatherer defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// Register wires up middleware and the /api/v1 routes.
func Register(router *gin.Engine, deps Deps) error {
	if err := handlers.RegisterValidators(); err != nil {
		return fmt.Errorf("register validators: %w", err)
	}

	// Scenario names such as "crowdsecurity/ssh-bf" are path parameters.
	router.UseRawPath = true
	router.UnescapePathValues = true

	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.Recovery(deps.Config.Debug),
		middleware.SecurityHeaders(deps.Config.IsDevelopment()),
	)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1", middleware.RateLimit(deps.RateLimiter), middleware.ArrayQuery())
	api.GET("/health", handlers.Health)

	protected := api.Group("", middleware.APIAuth(deps.Config.APIPassword))
	handlers.NewStatusHandler(deps.LAPI, deps.Sync, deps.Version).RegisterRoutes(protected)
	handlers.NewAlertHandler(deps.Alerts).RegisterRoutes(protected)
	handlers.NewDecisionHandler(deps.Decisions).RegisterRoutes(protected)
	handlers.NewStatisticsHandler(deps.Statistics).RegisterRoutes(protected)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Endpoint not found", "path": c.Request.URL.Path})
	})

	return nil
}
