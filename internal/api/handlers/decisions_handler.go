package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/cache"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/lapi"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/logger"
)

// DecisionsHandler serves hydrated decisions from the local cache and
// forwards manual bans and deletions to the upstream engine.
type DecisionsHandler struct {
	Engine *cache.Engine
	Client *lapi.Client
}

func NewDecisionsHandler(engine *cache.Engine, client *lapi.Client) *DecisionsHandler {
	return &DecisionsHandler{Engine: engine, Client: client}
}

// List returns cached decisions with remaining duration, expiry and
// duplicate flags computed at request time. Expired rows are included
// only when include_expired=true.
func (h *DecisionsHandler) List(c *gin.Context) {
	since, err := parseSince(c.Query("since"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	includeExpired := c.Query("include_expired") == "true"

	decisions, err := h.Engine.QueryDecisions(c.Request.Context(), since, includeExpired)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, decisions)
}

type createDecisionRequest struct {
	Value    string `json:"value" binding:"required"`
	Type     string `json:"type"`
	Duration string `json:"duration"`
	Reason   string `json:"reason"`
}

// Create adds a manual decision upstream, then runs a delta sync so the
// new ban is visible on the next read instead of the next tick.
func (h *DecisionsHandler) Create(c *gin.Context) {
	var req createDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value is required"})
		return
	}

	ctx := c.Request.Context()
	if err := h.Client.AddDecision(ctx, req.Value, req.Type, req.Duration, req.Reason); err != nil {
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}

	if err := h.Engine.UpdateCacheDelta(ctx); err != nil {
		logger.WithComponent("api").Warnf("post-create delta failed: %v", err)
	}

	c.JSON(http.StatusCreated, gin.H{"status": "created"})
}

// Delete removes a decision upstream first, then from the local cache.
func (h *DecisionsHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	if err := h.Client.DeleteDecision(ctx, id); err != nil {
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}

	if err := h.Engine.RemoveDecision(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// upstreamStatus maps upstream client errors onto response codes:
// missing credentials reads as service unavailable, everything else as a
// bad gateway.
func upstreamStatus(err error) int {
	if errors.Is(err, lapi.ErrNoCredentials) {
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, lapi.ErrAuthFailed) {
		return http.StatusBadGateway
	}
	var apiErr *lapi.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}
