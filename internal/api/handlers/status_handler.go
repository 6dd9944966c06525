package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// LAPIStatus reports whether CrowdSec LAPI is reachable.
type LAPIStatus interface {
	CheckStatus(ctx context.Context) bool
}

type SyncStatus interface {
	LastSuccessfulSync() (time.Time, bool)
}

type VersionStatus interface {
	CurrentVersion() string
	LatestVersion() (string, bool)
}

type StatusHandler struct {
	lapi    LAPIStatus
	sync    SyncStatus
	version VersionStatus
	now     func() time.Time
}

func NewStatusHandler(lapi LAPIStatus, sync SyncStatus, version VersionStatus) *StatusHandler {
	return &StatusHandler{lapi: lapi, sync: sync, version: version, now: time.Now}
}

func (h *StatusHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/status", h.Status)
}

func (h *StatusHandler) Status(c *gin.Context) {
	var lastSync any
	if t, ok := h.sync.LastSuccessfulSync(); ok {
		lastSync = isoTime(t)
	}
	var newVersion any
	if v, ok := h.version.LatestVersion(); ok {
		newVersion = v
	}

	c.JSON(http.StatusOK, gin.H{
		"csLapi": gin.H{
			"lapiConnected":      h.lapi.CheckStatus(c.Request.Context()),
			"lastSuccessfulSync": lastSync,
			"timestamp":          isoTime(h.now()),
		},
		"csMonitorApi": gin.H{
			"version":             h.version.CurrentVersion(),
			"newVersionAvailable": newVersion,
		},
	})
}

// Health is a liveness probe and never touches LAPI or the store.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "API is running", "timestamp": isoTime(time.Now())})
}
