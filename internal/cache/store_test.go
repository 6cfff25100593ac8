package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/lapi"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/models"
)

func TestImportAlerts_UpsertIsIdempotent(t *testing.T) {
	e, clock := newTestEngine(t, &fakeSource{}, Options{})
	ctx := context.Background()
	now := clock.Now()

	batch := []lapi.Alert{
		wireAlert(1, now.Add(-time.Hour), "crowdsecurity/ssh-bf", "1.2.3.4", wireDecision(10, "1.2.3.4", "4h")),
		wireAlert(2, now.Add(-time.Minute), "crowdsecurity/http-probing", "5.6.7.8", wireDecision(11, "5.6.7.8", "2h")),
	}

	n, fresh, err := e.importAlerts(ctx, batch, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, fresh, 2)

	// Importing the same batch again must not grow the tables and must
	// not report the decisions as new again.
	n, fresh, err = e.importAlerts(ctx, batch, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, fresh)

	assert.Equal(t, int64(2), alertCount(t, e.db))
	assert.Equal(t, int64(2), decisionCount(t, e.db))
}

func TestImportAlerts_SecondSightingWins(t *testing.T) {
	e, clock := newTestEngine(t, &fakeSource{}, Options{})
	ctx := context.Background()
	now := clock.Now()

	first := wireAlert(1, now.Add(-time.Hour), "crowdsecurity/ssh-bf", "1.2.3.4", wireDecision(10, "1.2.3.4", "1h"))
	_, _, err := e.importAlerts(ctx, []lapi.Alert{first}, now)
	require.NoError(t, err)

	// The same alert seen later with a longer ban.
	clock.Advance(10 * time.Minute)
	second := wireAlert(1, now.Add(-time.Hour), "crowdsecurity/ssh-bf", "1.2.3.4", wireDecision(10, "1.2.3.4", "4h"))
	second.Message = "updated upstream"
	_, _, err = e.importAlerts(ctx, []lapi.Alert{second}, clock.Now())
	require.NoError(t, err)

	var alert models.Alert
	require.NoError(t, e.db.First(&alert, 1).Error)
	assert.Equal(t, "updated upstream", alert.Message)

	var decision models.Decision
	require.NoError(t, e.db.First(&decision, "id = ?", "10").Error)
	assert.WithinDuration(t, clock.Now().Add(4*time.Hour), decision.StopAt, time.Second)

	assert.Equal(t, int64(1), alertCount(t, e.db))
	assert.Equal(t, int64(1), decisionCount(t, e.db))
}

func TestImportAlerts_NonNumericIDUpsertsByUUID(t *testing.T) {
	e, clock := newTestEngine(t, &fakeSource{}, Options{})
	ctx := context.Background()
	now := clock.Now()

	alert := lapi.Alert{
		ID:        "fallback-7",
		CreatedAt: now.Format(time.RFC3339),
		Scenario:  "crowdsecurity/ssh-bf",
		Source:    lapi.Source{IP: "1.2.3.4"},
	}

	for i := 0; i < 3; i++ {
		_, _, err := e.importAlerts(ctx, []lapi.Alert{alert}, now)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), alertCount(t, e.db))
}

func TestRefreshDecisions_UpdatesInPlaceButNeverCreates(t *testing.T) {
	e, clock := newTestEngine(t, &fakeSource{}, Options{})
	ctx := context.Background()
	now := clock.Now()

	cached := models.Decision{
		ID: "10", AlertID: 1, CreatedAt: now.Add(-time.Hour),
		StopAt: now.Add(time.Hour), Value: "1.2.3.4", Type: "ban", Origin: "crowdsec",
	}
	require.NoError(t, e.db.Create(&cached).Error)

	refreshed, err := e.refreshDecisions(ctx, []models.Decision{
		{ID: "10", StopAt: now.Add(3 * time.Hour), Payload: `{"id":10}`},
		{ID: "999", StopAt: now.Add(3 * time.Hour), Payload: `{"id":999}`},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed, "only the cached row counts")

	var got models.Decision
	require.NoError(t, e.db.First(&got, "id = ?", "10").Error)
	assert.WithinDuration(t, now.Add(3*time.Hour), got.StopAt, time.Second)

	// The unknown id must not have been inserted.
	assert.Equal(t, int64(1), decisionCount(t, e.db))
}

func TestEvictBefore_BoundaryRowsStay(t *testing.T) {
	e, clock := newTestEngine(t, &fakeSource{}, Options{})
	ctx := context.Background()
	cutoff := clock.Now().Add(-24 * time.Hour)

	require.NoError(t, e.db.Create(&models.Alert{ID: 1, CreatedAt: cutoff.Add(-time.Second), Scenario: "old"}).Error)
	require.NoError(t, e.db.Create(&models.Alert{ID: 2, CreatedAt: cutoff, Scenario: "boundary"}).Error)
	require.NoError(t, e.db.Create(&models.Alert{ID: 3, CreatedAt: cutoff.Add(time.Second), Scenario: "recent"}).Error)

	require.NoError(t, e.db.Create(&models.Decision{ID: "10", AlertID: 1, StopAt: cutoff.Add(-time.Second), Value: "a"}).Error)
	require.NoError(t, e.db.Create(&models.Decision{ID: "11", AlertID: 2, StopAt: cutoff, Value: "b"}).Error)
	require.NoError(t, e.db.Create(&models.Decision{ID: "12", AlertID: 3, StopAt: cutoff.Add(time.Second), Value: "c"}).Error)

	removed, err := e.evictBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	var alerts []models.Alert
	require.NoError(t, e.db.Order("id").Find(&alerts).Error)
	require.Len(t, alerts, 2)
	assert.Equal(t, int64(2), alerts[0].ID, "row exactly at the cutoff stays")

	var decisions []models.Decision
	require.NoError(t, e.db.Order("id").Find(&decisions).Error)
	require.Len(t, decisions, 2)
	assert.Equal(t, "11", decisions[0].ID)
}

func TestRefreshDuplicateHints_PersistsAndClears(t *testing.T) {
	e, clock := newTestEngine(t, &fakeSource{}, Options{})
	ctx := context.Background()
	now := clock.Now()

	require.NoError(t, e.db.Create(&models.Decision{ID: "7", Value: "1.2.3.4", StopAt: now.Add(time.Hour)}).Error)
	require.NoError(t, e.db.Create(&models.Decision{ID: "30", Value: "1.2.3.4", StopAt: now.Add(time.Hour)}).Error)
	// Stale flag on an expired row from an earlier pass.
	require.NoError(t, e.db.Create(&models.Decision{ID: "3", Value: "9.9.9.9", StopAt: now.Add(-time.Minute), IsDuplicate: true}).Error)

	require.NoError(t, e.refreshDuplicateHints(ctx, now))

	var got models.Decision
	require.NoError(t, e.db.First(&got, "id = ?", "7").Error)
	assert.False(t, got.IsDuplicate)

	got = models.Decision{}
	require.NoError(t, e.db.First(&got, "id = ?", "30").Error)
	assert.True(t, got.IsDuplicate)

	got = models.Decision{}
	require.NoError(t, e.db.First(&got, "id = ?", "3").Error)
	assert.False(t, got.IsDuplicate, "expired rows lose their flag")
}

func TestDeleteAlertRow_CascadesToDecisions(t *testing.T) {
	e, clock := newTestEngine(t, &fakeSource{}, Options{})
	ctx := context.Background()
	now := clock.Now()

	_, _, err := e.importAlerts(ctx, []lapi.Alert{
		wireAlert(1, now, "s/a", "1.2.3.4", wireDecision(10, "1.2.3.4", "4h"), wireDecision(11, "1.2.3.4", "8h")),
		wireAlert(2, now, "s/b", "5.6.7.8", wireDecision(12, "5.6.7.8", "4h")),
	}, now)
	require.NoError(t, err)

	require.NoError(t, e.deleteAlertRow(ctx, 1))

	assert.Equal(t, int64(1), alertCount(t, e.db))
	assert.Equal(t, int64(1), decisionCount(t, e.db))

	var left models.Decision
	require.NoError(t, e.db.First(&left).Error)
	assert.Equal(t, "12", left.ID)
}

func TestSettings_RoundTrip(t *testing.T) {
	e, _ := newTestEngine(t, &fakeSource{}, Options{})

	_, ok := e.settingValue("cache.refresh_interval_ms")
	assert.False(t, ok)

	require.NoError(t, e.putSetting("cache.refresh_interval_ms", "60000"))
	v, ok := e.settingValue("cache.refresh_interval_ms")
	assert.True(t, ok)
	assert.Equal(t, "60000", v)

	// Overwrite keeps a single row.
	require.NoError(t, e.putSetting("cache.refresh_interval_ms", "5000"))
	v, _ = e.settingValue("cache.refresh_interval_ms")
	assert.Equal(t, "5000", v)

	var n int64
	e.db.Model(&models.Setting{}).Count(&n)
	assert.Equal(t, int64(1), n)
}
