package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/models"
)

func TestHydrate_RemainingDuration(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	d := models.Decision{StopAt: now.Add(2 * time.Hour)}
	Hydrate(&d, now)
	assert.False(t, d.Expired)
	assert.Equal(t, "2h0m0s", d.Duration)

	d = models.Decision{StopAt: now.Add(time.Hour)}
	Hydrate(&d, now)
	assert.Equal(t, "1h0m0s", d.Duration)

	// Sub-second remainders are truncated, not rounded up.
	d = models.Decision{StopAt: now.Add(90*time.Second + 700*time.Millisecond)}
	Hydrate(&d, now)
	assert.Equal(t, "1m30s", d.Duration)
}

func TestHydrate_ExpiryIsInclusive(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	// stop_at exactly now counts as expired.
	d := models.Decision{StopAt: now}
	Hydrate(&d, now)
	assert.True(t, d.Expired)
	assert.Equal(t, "0s", d.Duration)

	d = models.Decision{StopAt: now.Add(-time.Second)}
	Hydrate(&d, now)
	assert.True(t, d.Expired)
	assert.Equal(t, "0s", d.Duration)

	d = models.Decision{StopAt: now.Add(time.Second)}
	Hydrate(&d, now)
	assert.False(t, d.Expired)
	assert.Equal(t, "1s", d.Duration)
}

func TestHydrate_AroundTheExpiryBoundary(t *testing.T) {
	created := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	stop := created.Add(2 * time.Hour)

	d := models.Decision{StopAt: stop}
	Hydrate(&d, created.Add(7199*time.Second))
	assert.False(t, d.Expired)
	assert.Equal(t, "1s", d.Duration)

	d = models.Decision{StopAt: stop}
	Hydrate(&d, created.Add(7201*time.Second))
	assert.True(t, d.Expired)
	assert.Equal(t, "0s", d.Duration)
}

func TestFlagDuplicates_LowestNumericIDWins(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	active := now.Add(time.Hour)

	rows := []models.Decision{
		{ID: "30", Value: "1.2.3.4", StopAt: active},
		{ID: "7", Value: "1.2.3.4", StopAt: active},
		{ID: "100", Value: "1.2.3.4", StopAt: active},
	}
	FlagDuplicates(rows, now)

	assert.True(t, rows[0].IsDuplicate)
	assert.False(t, rows[1].IsDuplicate)
	assert.True(t, rows[2].IsDuplicate)
}

func TestFlagDuplicates_NumericBeatsSynthetic(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	active := now.Add(time.Hour)

	rows := []models.Decision{
		{ID: "12-dup", Value: "1.2.3.4", StopAt: active},
		{ID: "45", Value: "1.2.3.4", StopAt: active},
	}
	FlagDuplicates(rows, now)

	assert.True(t, rows[0].IsDuplicate)
	assert.False(t, rows[1].IsDuplicate)
}

func TestFlagDuplicates_AllSyntheticUsesLexicographicOrder(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	active := now.Add(time.Hour)

	rows := []models.Decision{
		{ID: "b-entry", Value: "1.2.3.4", StopAt: active},
		{ID: "a-entry", Value: "1.2.3.4", StopAt: active},
	}
	FlagDuplicates(rows, now)

	assert.True(t, rows[0].IsDuplicate)
	assert.False(t, rows[1].IsDuplicate)
}

func TestFlagDuplicates_ExpiredRowsNeverCompete(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	rows := []models.Decision{
		// Expired with the winning id: must not steal the canonical slot
		// and must not be flagged itself.
		{ID: "1", Value: "1.2.3.4", StopAt: now.Add(-time.Minute), IsDuplicate: true},
		{ID: "50", Value: "1.2.3.4", StopAt: now.Add(time.Hour)},
	}
	FlagDuplicates(rows, now)

	assert.False(t, rows[0].IsDuplicate, "expired rows are never duplicates")
	assert.False(t, rows[1].IsDuplicate, "only survivor of its value group")
}

func TestFlagDuplicates_DistinctValuesDoNotCompete(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	active := now.Add(time.Hour)

	rows := []models.Decision{
		{ID: "1", Value: "1.2.3.4", StopAt: active},
		{ID: "2", Value: "5.6.7.8", StopAt: active},
	}
	FlagDuplicates(rows, now)

	assert.False(t, rows[0].IsDuplicate)
	assert.False(t, rows[1].IsDuplicate)
}

func TestFlagDuplicates_ClearsStaleFlags(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	// A row flagged in a previous pass whose competitor has since expired.
	rows := []models.Decision{
		{ID: "9", Value: "1.2.3.4", StopAt: now.Add(time.Hour), IsDuplicate: true},
	}
	FlagDuplicates(rows, now)

	assert.False(t, rows[0].IsDuplicate)
}
