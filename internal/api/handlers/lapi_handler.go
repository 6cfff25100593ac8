package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/lapi"
)

// LAPIHandler reports upstream connectivity and manages credentials at
// runtime.
type LAPIHandler struct {
	Client *lapi.Client
}

func NewLAPIHandler(client *lapi.Client) *LAPIHandler {
	return &LAPIHandler{Client: client}
}

// Status reports reachability and authentication state of the upstream
// engine as observed by the last request.
func (h *LAPIHandler) Status(c *gin.Context) {
	st := h.Client.Status()
	c.JSON(http.StatusOK, gin.H{
		"available":       st.Available,
		"authenticated":   st.Authenticated,
		"message":         st.Message,
		"checked_at":      st.CheckedAt,
		"has_credentials": h.Client.HasCredentials(),
		"has_token":       h.Client.HasToken(),
	})
}

// Login forces a fresh authentication round-trip, returning the outcome.
func (h *LAPIHandler) Login(c *gin.Context) {
	if err := h.Client.Login(c.Request.Context()); err != nil {
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "authenticated"})
}

type credentialsRequest struct {
	URL      string `json:"url" binding:"required"`
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SetCredentials swaps the in-memory credentials and validates them with
// an immediate login. File-based credentials are unaffected; edits to the
// credentials file are picked up by the watcher instead.
func (h *LAPIHandler) SetCredentials(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url, login and password are required"})
		return
	}

	h.Client.SetCredentials(lapi.Credentials{URL: req.URL, Login: req.Login, Password: req.Password})

	if err := h.Client.Login(c.Request.Context()); err != nil {
		c.JSON(upstreamStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "authenticated"})
}
