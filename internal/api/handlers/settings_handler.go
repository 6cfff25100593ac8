package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/models"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/services"
)

type SettingsHandler struct {
	DB       *gorm.DB
	Notifier *services.Notifier
	Security *services.SecurityService
}

func NewSettingsHandler(db *gorm.DB, notifier *services.Notifier, security *services.SecurityService) *SettingsHandler {
	return &SettingsHandler{DB: db, Notifier: notifier, Security: security}
}

// GetSettings returns all settings as a map. Secret values are redacted.
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	var settings []models.Setting
	if err := h.DB.Find(&settings).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch settings"})
		return
	}

	settingsMap := make(map[string]string)
	for _, s := range settings {
		if s.Key == models.SettingAPIKeyHash {
			settingsMap[s.Key] = "<redacted>"
			continue
		}
		settingsMap[s.Key] = s.Value
	}

	c.JSON(http.StatusOK, settingsMap)
}

// GetNotifications returns the configured notification endpoints.
func (h *SettingsHandler) GetNotifications(c *gin.Context) {
	urls := h.Notifier.URLs()
	if urls == nil {
		urls = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"urls": urls})
}

type notificationsRequest struct {
	URLs []string `json:"urls"`
}

// SetNotifications replaces the notification endpoint list.
func (h *SettingsHandler) SetNotifications(c *gin.Context) {
	var req notificationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Notifier.SetURLs(req.URLs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save notification settings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"urls": req.URLs})
}

type testNotificationRequest struct {
	URL string `json:"url" binding:"required"`
}

// TestNotification sends a test message to one endpoint.
func (h *SettingsHandler) TestNotification(c *gin.Context) {
	var req testNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	if err := h.Notifier.Test(req.URL); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

// APIKeyStatus reports whether the mutation gate is armed.
func (h *SettingsHandler) APIKeyStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"enabled": h.Security.Enabled()})
}

// GenerateAPIKey creates a new API key and returns the plaintext once.
// Any previously issued key stops working.
func (h *SettingsHandler) GenerateAPIKey(c *gin.Context) {
	key, err := h.Security.GenerateAPIKey()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate api key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"api_key": key})
}

// ClearAPIKey disables the mutation gate.
func (h *SettingsHandler) ClearAPIKey(c *gin.Context) {
	if err := h.Security.ClearAPIKey(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear api key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}
