package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/JGeek00/crowdsec-monitor-api/internal/crowdsec"
	"github.com/JGeek00/crowdsec-monitor-api/internal/services"
)

type alertQuery struct {
	pagination
	Scenario  []string `form:"scenario"`
	Simulated *bool    `form:"simulated"`
	IPAddress []string `form:"ip_address" binding:"omitempty,dive,ip"`
	Country   []string `form:"country" binding:"omitempty,dive,len=2,alpha"`
	IPOwner   []string `form:"ip_owner"`
}

type AlertHandler struct {
	service *services.AlertService
}

func NewAlertHandler(service *services.AlertService) *AlertHandler {
	return &AlertHandler{service: service}
}

func (h *AlertHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/alerts", h.List)
	rg.GET("/alerts/stats", h.Stats)
	rg.GET("/alerts/:id", h.Get)
	rg.DELETE("/alerts/:id", h.Delete)
}

func (h *AlertHandler) List(c *gin.Context) {
	var q alertQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondValidation(c, err)
		return
	}

	filter := services.AlertFilter{
		Scenarios:   q.Scenario,
		Simulated:   q.Simulated,
		IPAddresses: q.IPAddress,
		Countries:   q.Country,
		IPOwners:    q.IPOwner,
	}
	page, err := h.service.List(c.Request.Context(), filter, q.toService())
	if errors.Is(err, services.ErrInvalidOffset) {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Error fetching alerts", err)
		return
	}
	c.JSON(http.StatusOK, pageBody(page))
}

func (h *AlertHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Error fetching alert statistics", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *AlertHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Alert not found"})
		return
	}
	alert, err := h.service.Get(c.Request.Context(), id)
	if errors.Is(err, services.ErrAlertNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Alert not found"})
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Error fetching alert", err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// Delete removes the alert from LAPI, then from the local store.
func (h *AlertHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert ID", "message": "Alert ID must be a valid number"})
		return
	}

	deleted, err := h.service.Delete(c.Request.Context(), id)
	if errors.Is(err, services.ErrAlertNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Alert not found",
			"message": fmt.Sprintf("Alert with ID %d was not found", id),
		})
		return
	}
	if err != nil {
		c.JSON(crowdsec.StatusCode(err), gin.H{"error": "Failed to delete alert", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Alert deleted successfully", "nbDeleted": strconv.Itoa(deleted)})
}
