package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/lapi"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/models"
)

// openTestDB creates a SQLite in-memory DB unique per test and applies
// a busy timeout and WAL journal mode to reduce SQLITE locking during parallel tests.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsnName := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_journal_mode=WAL&_busy_timeout=5000", dsnName)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Alert{}, &models.Decision{}, &models.Setting{}))
	return db
}

// testClock is a frozen clock the tests move by hand.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fetchCall struct {
	since      *time.Duration
	until      *time.Duration
	activeOnly bool
}

// fakeSource scripts upstream responses and records every fetch.
type fakeSource struct {
	mu    sync.Mutex
	calls []fetchCall
	fn    func(call fetchCall) ([]lapi.Alert, error)
}

func (f *fakeSource) FetchAlerts(ctx context.Context, since, until *time.Duration, activeOnly bool) ([]lapi.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := fetchCall{since: since, until: until, activeOnly: activeOnly}
	f.calls = append(f.calls, call)
	if f.fn != nil {
		return f.fn(call)
	}
	return nil, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSource) lastCall() fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakeSource) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// newTestEngine builds an engine with a frozen clock and no pause between
// backfill chunks.
func newTestEngine(t *testing.T, src AlertSource, opts Options) (*Engine, *testClock) {
	t.Helper()
	clock := newTestClock(time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC))
	e := NewEngine(openTestDB(t), src, opts)
	e.nowFn = clock.Now
	e.chunkPause = 0
	return e, clock
}

func wireDecision(id int64, value, duration string) lapi.Decision {
	return lapi.Decision{
		ID:       lapi.FlexID(strconv.FormatInt(id, 10)),
		Origin:   "crowdsec",
		Type:     "ban",
		Scope:    "Ip",
		Value:    value,
		Duration: duration,
	}
}

func wireAlert(id int64, createdAt time.Time, scenario, ip string, decisions ...lapi.Decision) lapi.Alert {
	return lapi.Alert{
		ID:        lapi.FlexID(strconv.FormatInt(id, 10)),
		CreatedAt: createdAt.Format(time.RFC3339),
		Scenario:  scenario,
		Source:    lapi.Source{Scope: "Ip", IP: ip, Value: ip},
		Decisions: decisions,
	}
}

func alertCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Alert{}).Count(&n).Error)
	return n
}

func decisionCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Decision{}).Count(&n).Error)
	return n
}
