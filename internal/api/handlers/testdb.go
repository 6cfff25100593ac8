package handlers

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/models"
)

// OpenTestDB creates a SQLite in-memory DB unique per test, applies a busy
// timeout and WAL journal mode to reduce SQLITE locking during parallel
// tests, and migrates the cache schema.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsnName := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_journal_mode=WAL&_busy_timeout=5000", dsnName)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Alert{}, &models.Decision{}, &models.Setting{}); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	return db
}
