package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/cache"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/lapi"
)

// AlertsHandler serves alerts from the local cache and forwards
// deletions to the upstream engine.
type AlertsHandler struct {
	Engine *cache.Engine
	Client *lapi.Client
}

func NewAlertsHandler(engine *cache.Engine, client *lapi.Client) *AlertsHandler {
	return &AlertsHandler{Engine: engine, Client: client}
}

// List returns cached alerts, newest first. The optional since query is
// a relative duration ("24h"); absent means the whole lookback window.
func (h *AlertsHandler) List(c *gin.Context) {
	since, err := parseSince(c.Query("since"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alerts, err := h.Engine.QueryAlerts(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, alerts)
}

// Delete removes an alert upstream first, then from the local cache.
// The local removal sticks: delta refreshes never reinsert deleted rows.
func (h *AlertsHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	if err := h.Client.DeleteAlert(ctx, id); err != nil {
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}

	if numeric, convErr := strconv.ParseInt(id, 10, 64); convErr == nil {
		if err := h.Engine.RemoveAlert(ctx, numeric); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// parseSince converts a relative duration query value into an absolute
// cutoff. An empty value means unbounded.
func parseSince(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid since duration %q", raw)
	}
	return time.Now().Add(-d), nil
}
