package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment  string
	HTTPPort     string
	DatabasePath string
	FrontendDir  string
	LogDir       string

	// Upstream security engine (LAPI) connection.
	LAPIURL             string
	LAPILogin           string
	LAPIPassword        string
	LAPICredentialsFile string

	// Cache and refresh behaviour.
	Lookback            time.Duration
	RefreshIntervalMS   int64
	IdleInterval        time.Duration
	IdleAfter           time.Duration
	FullRefreshInterval time.Duration
}

// Load reads env vars and falls back to defaults so the server can boot with zero configuration.
func Load() (Config, error) {
	cfg := Config{
		Environment:         getEnv("CWU_ENV", "development"),
		HTTPPort:            getEnv("CWU_HTTP_PORT", "8080"),
		DatabasePath:        getEnv("CWU_DB_PATH", filepath.Join("data", "cwu.db")),
		FrontendDir:         getEnv("CWU_FRONTEND_DIR", filepath.Clean(filepath.Join("..", "frontend", "dist"))),
		LogDir:              getEnv("CWU_LOG_DIR", ""),
		LAPIURL:             getEnv("CWU_LAPI_URL", "http://127.0.0.1:8081"),
		LAPILogin:           getEnv("CWU_LAPI_LOGIN", ""),
		LAPIPassword:        getEnv("CWU_LAPI_PASSWORD", ""),
		LAPICredentialsFile: getEnv("CWU_LAPI_CREDENTIALS_FILE", ""),
	}

	var err error
	if cfg.Lookback, err = getDuration("CWU_LOOKBACK", 168*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.RefreshIntervalMS, err = getInt64("CWU_REFRESH_INTERVAL_MS", 30000); err != nil {
		return Config{}, err
	}
	if cfg.IdleInterval, err = getDuration("CWU_IDLE_INTERVAL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.IdleAfter, err = getDuration("CWU_IDLE_AFTER", 2*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.FullRefreshInterval, err = getDuration("CWU_FULL_REFRESH_INTERVAL", time.Hour); err != nil {
		return Config{}, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	return d, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}

	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	return n, nil
}
