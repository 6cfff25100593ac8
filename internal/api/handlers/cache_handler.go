package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/cache"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/logger"
)

// CacheHandler exposes the sync engine's lifecycle: status, manual
// refreshes, interval configuration and cache clearing.
type CacheHandler struct {
	Engine *cache.Engine
}

func NewCacheHandler(engine *cache.Engine) *CacheHandler {
	return &CacheHandler{Engine: engine}
}

// Status reports the current or last sync run.
func (h *CacheHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.Engine.SyncStatus())
}

// State reports cache counts, freshness and scheduler configuration.
func (h *CacheHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.Engine.State(c.Request.Context()))
}

// Sync runs one delta-plus-eviction cycle synchronously.
func (h *CacheHandler) Sync(c *gin.Context) {
	if err := h.Engine.UpdateCache(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "synced"})
}

// Refresh kicks off a full backfill in the background. Progress is
// available from Status; concurrent requests coalesce onto the running
// backfill.
func (h *CacheHandler) Refresh(c *gin.Context) {
	go func() {
		if _, err := h.Engine.InitializeCache(context.Background()); err != nil {
			logger.WithComponent("api").Warnf("requested backfill failed: %v", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "refreshing"})
}

// Clear wipes the cache and starts a fresh backfill in the background.
func (h *CacheHandler) Clear(c *gin.Context) {
	if err := h.Engine.ClearCache(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

// Cleanup evicts rows that fell out of the lookback window.
func (h *CacheHandler) Cleanup(c *gin.Context) {
	removed, err := h.Engine.CleanupOldData(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleaned", "removed": removed})
}

// GetInterval returns the active refresh cadence and the accepted values.
func (h *CacheHandler) GetInterval(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"interval_ms": h.Engine.RefreshInterval(),
		"valid":       cache.ValidRefreshIntervalsMS,
	})
}

type setIntervalRequest struct {
	IntervalMS *int64 `json:"interval_ms" binding:"required"`
}

// SetInterval validates, persists and applies a new refresh cadence.
func (h *CacheHandler) SetInterval(c *gin.Context) {
	var req setIntervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval_ms is required"})
		return
	}

	if err := h.Engine.SetRefreshInterval(*req.IntervalMS); err != nil {
		if errors.Is(err, cache.ErrInvalidInterval) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "valid": cache.ValidRefreshIntervalsMS})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"interval_ms": *req.IntervalMS})
}

// StartScheduler arms the periodic refresh.
func (h *CacheHandler) StartScheduler(c *gin.Context) {
	h.Engine.StartRefreshScheduler()
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

// StopScheduler cancels the periodic refresh.
func (h *CacheHandler) StopScheduler(c *gin.Context) {
	h.Engine.StopRefreshScheduler()
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}
