package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Decision mirrors one upstream enforcement action (ban, captcha, ...).
// The ID is text because the upstream occasionally emits synthetic,
// non-numeric ids. StopAt is always an absolute timestamp: relative
// durations from the upstream are resolved at normalization time.
//
// IsDuplicate is a cache hint written after batch imports; the read path
// recomputes duplicate status from scratch and never trusts this column.
type Decision struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UUID      string    `json:"uuid" gorm:"uniqueIndex"`
	AlertID   int64     `json:"alert_id" gorm:"index"`
	CreatedAt time.Time `json:"created_at"`
	StopAt    time.Time `json:"stop_at" gorm:"index"`
	Value     string    `json:"value"`
	Type      string    `json:"type"`
	Origin    string    `json:"origin"`
	Scenario  string    `json:"scenario"`
	Payload   string    `json:"payload" gorm:"type:text"`

	IsDuplicate bool `json:"is_duplicate"`

	// Hydrated on read, never persisted.
	Duration string `json:"duration" gorm:"-"`
	Expired  bool   `json:"expired" gorm:"-"`
}

func (d *Decision) BeforeCreate(tx *gorm.DB) (err error) {
	if d.UUID == "" {
		d.UUID = uuid.NewString()
	}
	return
}
