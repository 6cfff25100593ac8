package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CWU_DB_PATH", filepath.Join(t.TempDir(), "cwu.db"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 168*time.Hour, cfg.Lookback)
	assert.Equal(t, int64(30000), cfg.RefreshIntervalMS)
	assert.Equal(t, 5*time.Minute, cfg.IdleInterval)
	assert.Equal(t, 2*time.Minute, cfg.IdleAfter)
	assert.Equal(t, time.Hour, cfg.FullRefreshInterval)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CWU_DB_PATH", filepath.Join(t.TempDir(), "cwu.db"))
	t.Setenv("CWU_ENV", "production")
	t.Setenv("CWU_HTTP_PORT", "9090")
	t.Setenv("CWU_LOOKBACK", "24h")
	t.Setenv("CWU_REFRESH_INTERVAL_MS", "5000")
	t.Setenv("CWU_LAPI_URL", "http://lapi:8081")
	t.Setenv("CWU_LAPI_LOGIN", "machine-1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 24*time.Hour, cfg.Lookback)
	assert.Equal(t, int64(5000), cfg.RefreshIntervalMS)
	assert.Equal(t, "http://lapi:8081", cfg.LAPIURL)
	assert.Equal(t, "machine-1", cfg.LAPILogin)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("CWU_DB_PATH", filepath.Join(t.TempDir(), "cwu.db"))
	t.Setenv("CWU_LOOKBACK", "one week")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CWU_LOOKBACK")

	t.Setenv("CWU_LOOKBACK", "24h")
	t.Setenv("CWU_REFRESH_INTERVAL_MS", "often")

	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CWU_REFRESH_INTERVAL_MS")
}
