package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/cache"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/config"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/database"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/lapi"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/logger"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/models"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/server"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/services"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log().Fatalf("load config: %v", err)
	}

	// Setup logging with rotation
	logDir := cfg.LogDir
	if logDir == "" {
		logDir = "/app/data/logs"
		if err := os.MkdirAll(logDir, 0755); err != nil {
			// Fallback to local directory if /app/data fails (e.g. local dev)
			logDir = "data/logs"
		}
	}
	_ = os.MkdirAll(logDir, 0755)

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "cwu.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	// Log to both stdout and file
	logger.Init(cfg.Environment == "development", io.MultiWriter(os.Stdout, rotator))
	log := logger.Log()

	// Handle CLI commands
	if len(os.Args) > 1 && os.Args[1] == "generate-api-key" {
		db, err := database.Connect(cfg.DatabasePath)
		if err != nil {
			log.Fatalf("connect database: %v", err)
		}
		if err := db.AutoMigrate(&models.Setting{}); err != nil {
			log.Fatalf("migrate settings: %v", err)
		}

		key, err := services.NewSecurityService(db).GenerateAPIKey()
		if err != nil {
			log.Fatalf("generate api key: %v", err)
		}

		// The key is shown exactly once; only its hash is stored.
		fmt.Println(key)
		return
	}

	log.Infof("starting %s %s", version.Name, version.Full())

	db, err := database.Connect(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}

	creds := lapi.Credentials{
		URL:      cfg.LAPIURL,
		Login:    cfg.LAPILogin,
		Password: cfg.LAPIPassword,
	}
	if cfg.LAPICredentialsFile != "" {
		fileCreds, err := lapi.LoadCredentialsFile(cfg.LAPICredentialsFile)
		if err != nil {
			log.Warnf("credentials file unreadable, using environment credentials: %v", err)
		} else {
			if fileCreds.URL == "" {
				fileCreds.URL = creds.URL
			}
			creds = fileCreds
		}
	}

	client := lapi.NewClient(creds, nil)

	if cfg.LAPICredentialsFile != "" {
		watcher, err := lapi.WatchCredentials(cfg.LAPICredentialsFile, client)
		if err != nil {
			log.Warnf("credentials file watcher unavailable: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	engine := cache.NewEngine(db, client, cache.Options{
		Lookback:            cfg.Lookback,
		RefreshIntervalMS:   cfg.RefreshIntervalMS,
		IdleInterval:        cfg.IdleInterval,
		IdleAfter:           cfg.IdleAfter,
		FullRefreshInterval: cfg.FullRefreshInterval,
	})

	srv, err := server.New(db, cfg, engine, client)
	if err != nil {
		log.Fatalf("build server: %v", err)
	}

	// Migrations ran inside server.New, so the engine may touch the
	// database from here on.
	engine.Bootstrap(context.Background())
	defer engine.StopRefreshScheduler()

	updates := services.NewUpdateService()
	nightly := cron.New()
	_, err = nightly.AddFunc("@daily", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if removed, err := engine.CleanupOldData(ctx); err != nil {
			log.Warnf("nightly eviction failed: %v", err)
		} else if removed > 0 {
			log.Infof("nightly eviction removed %d rows", removed)
		}

		if info, err := updates.CheckForUpdates(); err == nil && info.Available {
			log.Infof("update available: %s (current %s)", info.LatestVersion, version.Version)
		}
	})
	if err != nil {
		log.Fatalf("schedule nightly maintenance: %v", err)
	}
	nightly.Start()
	defer nightly.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("listening on :%s", cfg.HTTPPort)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Info("shutdown complete")
}
