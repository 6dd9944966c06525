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

type decisionQuery struct {
	pagination
	Type       string   `form:"type"`
	Scope      string   `form:"scope"`
	Value      string   `form:"value"`
	Simulated  *bool    `form:"simulated"`
	Scenario   []string `form:"scenario"`
	IPAddress  []string `form:"ip_address" binding:"omitempty,dive,ip"`
	Country    []string `form:"country" binding:"omitempty,dive,len=2,alpha"`
	IPOwner    []string `form:"ip_owner"`
	OnlyActive bool     `form:"only_active"`
}

type createDecisionRequest struct {
	IP       string `json:"ip" binding:"required,ip"`
	Duration string `json:"duration" binding:"required,crowdsec_duration"`
	Reason   string `json:"reason" binding:"required,decision_reason"`
	Type     string `json:"type" binding:"required,oneof=ban captcha throttle allow"`
}

type DecisionHandler struct {
	service *services.DecisionService
}

func NewDecisionHandler(service *services.DecisionService) *DecisionHandler {
	return &DecisionHandler{service: service}
}

func (h *DecisionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/decisions", h.List)
	rg.GET("/decisions/active", h.Active)
	rg.GET("/decisions/stats", h.Stats)
	rg.GET("/decisions/:id", h.Get)
	rg.POST("/decisions", h.Create)
	rg.DELETE("/decisions/:id", h.Delete)
}

func (h *DecisionHandler) List(c *gin.Context) {
	var q decisionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondValidation(c, err)
		return
	}

	filter := services.DecisionFilter{
		Type:        q.Type,
		Scope:       q.Scope,
		Value:       q.Value,
		Simulated:   q.Simulated,
		OnlyActive:  q.OnlyActive,
		Scenarios:   q.Scenario,
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
		respondError(c, http.StatusInternalServerError, "Error fetching decisions", err)
		return
	}
	c.JSON(http.StatusOK, pageBody(page))
}

func (h *DecisionHandler) Active(c *gin.Context) {
	items, err := h.service.Active(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Error fetching active decisions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *DecisionHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Error fetching decision statistics", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *DecisionHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Decision not found"})
		return
	}
	decision, err := h.service.Get(c.Request.Context(), id)
	if errors.Is(err, services.ErrDecisionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Decision not found"})
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Error fetching decision", err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// Create adds a manual decision through LAPI.
func (h *DecisionHandler) Create(c *gin.Context) {
	var req createDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	ids, err := h.service.Create(c.Request.Context(), services.CreateDecisionInput{
		IP:       req.IP,
		Duration: req.Duration,
		Reason:   req.Reason,
		Type:     req.Type,
	})
	if err != nil {
		respondError(c, crowdsec.StatusCode(err), "Error creating decision", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "Decision created successfully",
		"alert_ids": ids,
		"decision": gin.H{
			"ip":       req.IP,
			"type":     req.Type,
			"duration": req.Duration,
			"reason":   req.Reason,
		},
	})
}

// Delete removes the decision from LAPI and expires the local copy.
func (h *DecisionHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid decision ID", "message": "Decision ID must be a valid number"})
		return
	}

	deleted, err := h.service.Delete(c.Request.Context(), id)
	if errors.Is(err, services.ErrDecisionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Decision not found",
			"message": fmt.Sprintf("Decision with ID %d was not found", id),
		})
		return
	}
	if err != nil {
		c.JSON(crowdsec.StatusCode(err), gin.H{"error": "Failed to delete decision", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Decision deleted successfully", "nbDeleted": strconv.Itoa(deleted)})
}
