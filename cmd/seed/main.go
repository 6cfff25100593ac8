package main

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/models"
)

// Seeds the local cache with sample data so the frontend can be developed
// without a reachable security engine.
func main() {
	// Connect to database
	db, err := gorm.Open(sqlite.Open("./data/cwu.db"), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto migrate
	if err := db.AutoMigrate(
		&models.Alert{},
		&models.Decision{},
		&models.Setting{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	fmt.Println("✓ Database migrated successfully")

	now := time.Now().UTC().Truncate(time.Second)

	alerts := []models.Alert{
		{
			ID:        1001,
			UUID:      uuid.NewString(),
			CreatedAt: now.Add(-30 * time.Minute),
			Scenario:  "crowdsecurity/ssh-bf",
			SourceIP:  "203.0.113.10",
			Message:   "Ip 203.0.113.10 performed 'crowdsecurity/ssh-bf' (6 events over 30s)",
			Target:    "gateway",
			Payload:   `{"id":1001,"scenario":"crowdsecurity/ssh-bf","machine_alias":"gateway"}`,
		},
		{
			ID:        1002,
			UUID:      uuid.NewString(),
			CreatedAt: now.Add(-2 * time.Hour),
			Scenario:  "crowdsecurity/http-probing",
			SourceIP:  "198.51.100.7",
			Message:   "Ip 198.51.100.7 performed 'crowdsecurity/http-probing' (11 events over 2m)",
			Target:    "web.example.org",
			Payload:   `{"id":1002,"scenario":"crowdsecurity/http-probing"}`,
		},
		{
			ID:        1003,
			UUID:      uuid.NewString(),
			CreatedAt: now.Add(-26 * time.Hour),
			Scenario:  "crowdsecurity/http-bad-user-agent",
			SourceIP:  "192.0.2.44",
			Message:   "Ip 192.0.2.44 performed 'crowdsecurity/http-bad-user-agent' (2 events over 1s)",
			Target:    "web.example.org",
			Payload:   `{"id":1003,"scenario":"crowdsecurity/http-bad-user-agent"}`,
		},
	}

	decisions := []models.Decision{
		{
			ID:        "5001",
			UUID:      uuid.NewString(),
			AlertID:   1001,
			CreatedAt: now.Add(-30 * time.Minute),
			StopAt:    now.Add(3*time.Hour + 30*time.Minute),
			Value:     "203.0.113.10",
			Type:      "ban",
			Origin:    "crowdsec",
			Scenario:  "crowdsecurity/ssh-bf",
			Payload:   `{"id":5001,"type":"ban","value":"203.0.113.10","duration":"4h"}`,
		},
		{
			// Same value as 5001 from a different alert; the read path
			// should flag one of the pair as a duplicate.
			ID:        "5002",
			UUID:      uuid.NewString(),
			AlertID:   1002,
			CreatedAt: now.Add(-2 * time.Hour),
			StopAt:    now.Add(2 * time.Hour),
			Value:     "203.0.113.10",
			Type:      "ban",
			Origin:    "crowdsec",
			Scenario:  "crowdsecurity/http-probing",
			Payload:   `{"id":5002,"type":"ban","value":"203.0.113.10","duration":"4h"}`,
		},
		{
			ID:        "5003",
			UUID:      uuid.NewString(),
			AlertID:   1002,
			CreatedAt: now.Add(-2 * time.Hour),
			StopAt:    now.Add(30 * time.Minute),
			Value:     "198.51.100.7",
			Type:      "captcha",
			Origin:    "crowdsec",
			Scenario:  "crowdsecurity/http-probing",
			Payload:   `{"id":5003,"type":"captcha","value":"198.51.100.7","duration":"2h30m"}`,
		},
		{
			// Already expired; list views hide it unless asked.
			ID:        "5004",
			UUID:      uuid.NewString(),
			AlertID:   1003,
			CreatedAt: now.Add(-26 * time.Hour),
			StopAt:    now.Add(-2 * time.Hour),
			Value:     "192.0.2.44",
			Type:      "ban",
			Origin:    "cscli",
			Scenario:  "crowdsecurity/http-bad-user-agent",
			Payload:   `{"id":5004,"type":"ban","value":"192.0.2.44","duration":"24h"}`,
		},
	}

	for _, alert := range alerts {
		if err := db.Where("id = ?", alert.ID).FirstOrCreate(&alert).Error; err != nil {
			log.Printf("Failed to seed alert %d: %v", alert.ID, err)
		} else {
			fmt.Printf("✓ Seeded alert: %s from %s\n", alert.Scenario, alert.SourceIP)
		}
	}

	for _, decision := range decisions {
		if err := db.Where("id = ?", decision.ID).FirstOrCreate(&decision).Error; err != nil {
			log.Printf("Failed to seed decision %s: %v", decision.ID, err)
		} else {
			fmt.Printf("✓ Seeded decision: %s %s\n", decision.Type, decision.Value)
		}
	}

	fmt.Println("\n✓ Seeding completed successfully!")
	fmt.Println("\nSeeded data summary:")
	fmt.Printf("  - %d alerts\n", len(alerts))
	fmt.Printf("  - %d decisions (one active duplicate pair, one expired)\n", len(decisions))
}
