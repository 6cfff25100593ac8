package models

import "time"

// Setting is a small key/value row for state that must survive restarts,
// e.g. the user-configured refresh interval.
type Setting struct {
	Key       string    `json:"key" gorm:"primaryKey"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Well-known setting keys.
const (
	SettingRefreshIntervalMS = "cache.refresh_interval_ms"
	SettingNotifyURLs        = "notify.urls"
	SettingAPIKeyHash        = "security.api_key_hash"
)
