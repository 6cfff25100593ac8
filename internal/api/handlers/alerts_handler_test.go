package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/api/handlers"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/lapi"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/models"
)

func TestAlertsHandler_List(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := handlers.OpenTestDB(t)
	engine := newSyncedEngine(t, db, emptySource())

	now := time.Now().UTC()
	seedAlertRow(t, db, 1, now.Add(-2*time.Hour), "crowdsecurity/ssh-bf", "203.0.113.10")
	seedAlertRow(t, db, 2, now.Add(-10*time.Minute), "crowdsecurity/http-probing", "203.0.113.11")

	handler := handlers.NewAlertsHandler(engine, lapi.NewClient(lapi.Credentials{}, nil))
	router := gin.New()
	router.GET("/api/alerts", handler.List)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/alerts", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var alerts []models.Alert
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alerts))
	require.Len(t, alerts, 2)
	assert.Equal(t, int64(2), alerts[0].ID, "newest first")
	assert.Equal(t, int64(1), alerts[1].ID)

	// A relative since window narrows the result.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/alerts?since=1h", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	alerts = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alerts))
	require.Len(t, alerts, 1)
	assert.Equal(t, int64(2), alerts[0].ID)
}

func TestAlertsHandler_List_RejectsBadSince(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := handlers.OpenTestDB(t)
	engine := newSyncedEngine(t, db, emptySource())

	handler := handlers.NewAlertsHandler(engine, lapi.NewClient(lapi.Credentials{}, nil))
	router := gin.New()
	router.GET("/api/alerts", handler.List)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/alerts?since=yesterday", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid since duration")
}

func TestAlertsHandler_Delete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := handlers.OpenTestDB(t)
	engine := newSyncedEngine(t, db, emptySource())

	var upstreamPath string
	client := fakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			upstreamPath = r.URL.Path
			w.Write([]byte(`{"message":"1 deleted"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	now := time.Now().UTC()
	seedAlertRow(t, db, 7, now.Add(-time.Hour), "crowdsecurity/ssh-bf", "203.0.113.10")
	seedDecisionRow(t, db, "70", 7, "203.0.113.10", now.Add(time.Hour))

	handler := handlers.NewAlertsHandler(engine, client)
	router := gin.New()
	router.DELETE("/api/alerts/:id", handler.Delete)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/api/alerts/7", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/v1/alerts/7", upstreamPath)

	// The local row and its decisions are gone with it.
	var alertCount, decisionCount int64
	db.Model(&models.Alert{}).Count(&alertCount)
	db.Model(&models.Decision{}).Count(&decisionCount)
	assert.Zero(t, alertCount)
	assert.Zero(t, decisionCount)
}

func TestAlertsHandler_Delete_NonNumericIDOnlyForwards(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := handlers.OpenTestDB(t)
	engine := newSyncedEngine(t, db, emptySource())

	client := fakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"1 deleted"}`))
	})

	seedAlertRow(t, db, 7, time.Now().UTC(), "crowdsecurity/ssh-bf", "203.0.113.10")

	handler := handlers.NewAlertsHandler(engine, client)
	router := gin.New()
	router.DELETE("/api/alerts/:id", handler.Delete)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/api/alerts/ghost", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	db.Model(&models.Alert{}).Count(&count)
	assert.Equal(t, int64(1), count, "cached rows are keyed numerically, nothing to remove")
}

func TestAlertsHandler_Delete_UpstreamFailureKeepsCache(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := handlers.OpenTestDB(t)
	engine := newSyncedEngine(t, db, emptySource())

	status := http.StatusInternalServerError
	client := fakeUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(`{"message":"boom"}`))
	})

	seedAlertRow(t, db, 7, time.Now().UTC(), "crowdsecurity/ssh-bf", "203.0.113.10")

	handler := handlers.NewAlertsHandler(engine, client)
	router := gin.New()
	router.DELETE("/api/alerts/:id", handler.Delete)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/api/alerts/7", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)

	var count int64
	db.Model(&models.Alert{}).Count(&count)
	assert.Equal(t, int64(1), count, "the cached row outlives a failed upstream delete")

	// A missing upstream row maps to a plain not found.
	status = http.StatusNotFound
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("DELETE", "/api/alerts/7", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
