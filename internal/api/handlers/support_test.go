package handlers_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/cache"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/lapi"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/models"
)

// sourceFunc adapts a bare function to the engine's upstream interface.
type sourceFunc func(ctx context.Context, since, until *time.Duration, activeOnly bool) ([]lapi.Alert, error)

func (f sourceFunc) FetchAlerts(ctx context.Context, since, until *time.Duration, activeOnly bool) ([]lapi.Alert, error) {
	return f(ctx, since, until, activeOnly)
}

func emptySource() sourceFunc {
	return func(context.Context, *time.Duration, *time.Duration, bool) ([]lapi.Alert, error) {
		return nil, nil
	}
}

// newSyncedEngine builds an engine over db and runs the initial backfill
// so reads serve from a warm cache. The short lookback keeps the backfill
// to two upstream calls.
func newSyncedEngine(t *testing.T, db *gorm.DB, src cache.AlertSource) *cache.Engine {
	t.Helper()
	engine := cache.NewEngine(db, src, cache.Options{
		Lookback:          6 * time.Hour,
		RefreshIntervalMS: 60000,
	})
	if _, err := engine.InitializeCache(context.Background()); err != nil {
		t.Fatalf("initial backfill: %v", err)
	}
	return engine
}

// fakeUpstream starts an httptest LAPI that accepts every login and hands
// all other requests to handle. The returned client is already pointed at
// it.
func fakeUpstream(t *testing.T, handle http.HandlerFunc) *lapi.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/v1/watchers/login" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"code":200,"token":"test-token","expire":%q}`, time.Now().Add(time.Hour).Format(time.RFC3339))
			return
		}
		if handle == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		handle(w, r)
	}))
	t.Cleanup(srv.Close)
	return lapi.NewClient(lapi.Credentials{URL: srv.URL, Login: "machine-1", Password: "secret"}, srv.Client())
}

func seedAlertRow(t *testing.T, db *gorm.DB, id int64, createdAt time.Time, scenario, ip string) {
	t.Helper()
	err := db.Create(&models.Alert{
		ID:        id,
		CreatedAt: createdAt,
		Scenario:  scenario,
		SourceIP:  ip,
		Message:   fmt.Sprintf("%s by %s", scenario, ip),
		Target:    "gateway",
		Payload:   "{}",
	}).Error
	if err != nil {
		t.Fatalf("seed alert %d: %v", id, err)
	}
}

func seedDecisionRow(t *testing.T, db *gorm.DB, id string, alertID int64, value string, stopAt time.Time) {
	t.Helper()
	err := db.Create(&models.Decision{
		ID:        id,
		AlertID:   alertID,
		CreatedAt: stopAt.Add(-4 * time.Hour),
		StopAt:    stopAt,
		Value:     value,
		Type:      "ban",
		Origin:    "crowdsec",
		Scenario:  "crowdsecurity/ssh-bf",
		Payload:   "{}",
	}).Error
	if err != nil {
		t.Fatalf("seed decision %s: %v", id, err)
	}
}
