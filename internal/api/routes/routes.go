package routes

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/api/handlers"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/api/middleware"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/cache"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/config"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/lapi"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/metrics"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/models"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/services"
)

// Register wires up API routes and performs automatic migrations.
func Register(router *gin.Engine, db *gorm.DB, cfg config.Config, engine *cache.Engine, client *lapi.Client) error {
	if err := db.AutoMigrate(
		&models.Alert{},
		&models.Decision{},
		&models.Setting{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// Health and metrics sit outside the activity-tracked group: probes
	// from uptime checkers must not keep the refresh scheduler in its
	// active cadence forever.
	router.GET("/api/health", handlers.HealthHandler(engine, client))

	registry := prometheus.NewRegistry()
	metrics.Register(registry)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	notifier := services.NewNotifier(db)
	engine.SetNotifier(notifier)

	securityService := services.NewSecurityService(db)

	api := router.Group("/api")
	api.Use(middleware.ActivityRecorder(engine), middleware.APIKeyAuth(securityService))

	// Alerts
	alertsHandler := handlers.NewAlertsHandler(engine, client)
	api.GET("/alerts", alertsHandler.List)
	api.DELETE("/alerts/:id", alertsHandler.Delete)

	// Decisions
	decisionsHandler := handlers.NewDecisionsHandler(engine, client)
	api.GET("/decisions", decisionsHandler.List)
	api.POST("/decisions", decisionsHandler.Create)
	api.DELETE("/decisions/:id", decisionsHandler.Delete)

	// Cache lifecycle
	cacheHandler := handlers.NewCacheHandler(engine)
	api.GET("/cache/status", cacheHandler.Status)
	api.GET("/cache/state", cacheHandler.State)
	api.POST("/cache/sync", cacheHandler.Sync)
	api.POST("/cache/refresh", cacheHandler.Refresh)
	api.POST("/cache/clear", cacheHandler.Clear)
	api.POST("/cache/cleanup", cacheHandler.Cleanup)
	api.GET("/cache/interval", cacheHandler.GetInterval)
	api.PUT("/cache/interval", cacheHandler.SetInterval)
	api.POST("/cache/scheduler/start", cacheHandler.StartScheduler)
	api.POST("/cache/scheduler/stop", cacheHandler.StopScheduler)

	// Upstream engine
	lapiHandler := handlers.NewLAPIHandler(client)
	api.GET("/lapi/status", lapiHandler.Status)
	api.POST("/lapi/login", lapiHandler.Login)
	api.PUT("/lapi/credentials", lapiHandler.SetCredentials)

	// Settings
	settingsHandler := handlers.NewSettingsHandler(db, notifier, securityService)
	api.GET("/settings", settingsHandler.GetSettings)
	api.GET("/settings/notifications", settingsHandler.GetNotifications)
	api.PUT("/settings/notifications", settingsHandler.SetNotifications)
	api.POST("/settings/notifications/test", settingsHandler.TestNotification)
	api.GET("/settings/api-key", settingsHandler.APIKeyStatus)
	api.POST("/settings/api-key", settingsHandler.GenerateAPIKey)
	api.DELETE("/settings/api-key", settingsHandler.ClearAPIKey)

	// Updates
	updateService := services.NewUpdateService()
	updateHandler := handlers.NewUpdateHandler(updateService)
	api.GET("/system/updates", updateHandler.Check)

	// Live sync events
	eventsHandler := handlers.NewEventsHandler()
	engine.OnSync(eventsHandler.Broadcast)
	api.GET("/events", eventsHandler.Stream)

	return nil
}
