package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Alert mirrors one upstream LAPI alert. The normalized columns exist for
// indexing and list views; Payload keeps the original JSON verbatim because
// the UI reads fields (events, source details) the normalizer does not
// project into columns.
type Alert struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	UUID      string    `json:"uuid" gorm:"uniqueIndex"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
	Scenario  string    `json:"scenario"`
	SourceIP  string    `json:"source_ip"`
	Message   string    `json:"message"`
	Target    string    `json:"target"`
	Payload   string    `json:"payload" gorm:"type:text"`
}

func (a *Alert) BeforeCreate(tx *gorm.DB) (err error) {
	if a.UUID == "" {
		a.UUID = uuid.NewString()
	}
	return
}
