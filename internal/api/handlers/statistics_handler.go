package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JGeek00/crowdsec-monitor-api/internal/services"
)

type statisticsQuery struct {
	Since  string `form:"since" binding:"omitempty,past_date"`
	Amount *int   `form:"amount" binding:"omitempty,min=1"`
}

type StatisticsHandler struct {
	service *services.StatisticsService
}

func NewStatisticsHandler(service *services.StatisticsService) *StatisticsHandler {
	return &StatisticsHandler{service: service}
}

// RegisterRoutes mounts the statistics endpoints. Scenario names contain
// slashes, so the router must match on the raw path.
func (h *StatisticsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/statistics", h.General)

	rg.GET("/statistics/countries", list(h.service.Countries, "countries"))
	rg.GET("/statistics/scenarios", list(h.service.Scenarios, "scenarios"))
	rg.GET("/statistics/ip-owners", list(h.service.IPOwners, "IP owners"))
	rg.GET("/statistics/targets", list(h.service.Targets, "targets"))

	rg.GET("/statistics/countries/:item", history(h.service.CountryHistory, "country"))
	rg.GET("/statistics/scenarios/:item", history(h.service.ScenarioHistory, "scenario"))
	rg.GET("/statistics/ip-owners/:item", history(h.service.IPOwnerHistory, "IP owner"))
	rg.GET("/statistics/targets/:item", history(h.service.TargetHistory, "target"))
}

func (h *StatisticsHandler) General(c *gin.Context) {
	var q statisticsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondValidation(c, err)
		return
	}

	var sq services.StatisticsQuery
	if q.Since != "" {
		// past_date already checked the format
		sq.Since, _ = time.Parse(time.DateOnly, q.Since)
	}
	if q.Amount != nil {
		sq.Amount = *q.Amount
	}

	stats, err := h.service.General(c.Request.Context(), sq)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Error fetching statistics", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func list[T any](fetch func(ctx context.Context) ([]T, error), what string) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := fetch(c.Request.Context())
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Error fetching "+what+" statistics", err)
			return
		}
		c.JSON(http.StatusOK, items)
	}
}

func history(fetch func(ctx context.Context, item string) ([]services.DateAmount, error), what string) gin.HandlerFunc {
	return func(c *gin.Context) {
		item := c.Param("item")
		if item == "" {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Missing " + what})
			return
		}
		items, err := fetch(c.Request.Context(), item)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Error fetching "+what+" history", err)
			return
		}
		c.JSON(http.StatusOK, items)
	}
}
