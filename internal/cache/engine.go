package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/lapi"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/logger"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/models"
)

// ErrInvalidInterval rejects refresh intervals outside the allowed set.
var ErrInvalidInterval = errors.New("invalid refresh interval")

// ValidRefreshIntervalsMS are the accepted refresh cadences. 0 selects
// manual mode, where reads trigger their own synchronous refresh.
var ValidRefreshIntervalsMS = []int64{0, 5000, 30000, 60000, 300000}

// AlertSource fetches alerts from the upstream security engine. since and
// until are relative windows anchored at the time of the call; activeOnly
// restricts the result to alerts that still have at least one active
// decision.
type AlertSource interface {
	FetchAlerts(ctx context.Context, since, until *time.Duration, activeOnly bool) ([]lapi.Alert, error)
}

// Notifier is told about decisions that were not cached before a sync.
type Notifier interface {
	NotifyNewDecisions(decisions []models.Decision)
}

// SyncEvent describes one completed cache mutation, for the live event
// stream.
type SyncEvent struct {
	Kind     string    `json:"kind"`
	Imported int       `json:"imported"`
	At       time.Time `json:"at"`
}

// Options configures an Engine. Zero fields fall back to defaults that
// match a small installation.
type Options struct {
	Lookback            time.Duration
	RefreshIntervalMS   int64
	IdleInterval        time.Duration
	IdleAfter           time.Duration
	FullRefreshInterval time.Duration
}

// Engine is the read-through cache and sync coordinator between the
// upstream security engine and the local SQLite mirror. All exported
// methods are safe for concurrent use.
type Engine struct {
	db     *gorm.DB
	client AlertSource
	state  *syncState
	sched  *scheduler

	lookback         time.Duration
	idleInterval     time.Duration
	idleAfter        time.Duration
	fullRefreshEvery time.Duration
	chunkPause       time.Duration

	nowFn func() time.Time

	initMu   sync.Mutex
	initTask *initTask

	refreshing atomic.Bool

	notifierMu sync.RWMutex
	notifier   Notifier

	listenersMu sync.RWMutex
	listeners   []func(SyncEvent)
}

type initResult struct {
	imported int
	err      error
}

type initTask struct {
	done   chan struct{}
	result initResult
}

// NewEngine wires an engine around an open database and an upstream
// client. It does not touch the database; call Bootstrap once the schema
// is migrated.
func NewEngine(db *gorm.DB, client AlertSource, opts Options) *Engine {
	if opts.Lookback <= 0 {
		opts.Lookback = 168 * time.Hour
	}
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = 5 * time.Minute
	}
	if opts.IdleAfter <= 0 {
		opts.IdleAfter = 2 * time.Minute
	}
	if opts.FullRefreshInterval <= 0 {
		opts.FullRefreshInterval = time.Hour
	}
	if !validInterval(opts.RefreshIntervalMS) {
		opts.RefreshIntervalMS = 30000
	}

	e := &Engine{
		db:               db,
		client:           client,
		state:            &syncState{},
		lookback:         opts.Lookback,
		idleInterval:     opts.IdleInterval,
		idleAfter:        opts.IdleAfter,
		fullRefreshEvery: opts.FullRefreshInterval,
		chunkPause:       chunkPause,
		nowFn:            time.Now,
	}
	e.state.setIntervalMS(opts.RefreshIntervalMS)
	e.sched = newScheduler(e)
	return e
}

// SetNotifier installs the notification sink for newly cached decisions.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifierMu.Lock()
	defer e.notifierMu.Unlock()
	e.notifier = n
}

// Bootstrap restores the persisted refresh interval, kicks off the
// initial backfill in the background, and arms the scheduler.
func (e *Engine) Bootstrap(ctx context.Context) {
	e.restoreInterval()

	go func() {
		if _, err := e.InitializeCache(ctx); err != nil {
			logger.WithComponent("cache").Errorf("initial backfill failed: %v", err)
		}
	}()

	e.StartRefreshScheduler()
}

// InitializeCache performs the full historical backfill. Concurrent
// callers coalesce onto the in-flight run and all receive its result; a
// caller whose context ends first detaches while the run continues.
func (e *Engine) InitializeCache(ctx context.Context) (int, error) {
	e.initMu.Lock()
	if t := e.initTask; t != nil {
		e.initMu.Unlock()
		select {
		case <-t.done:
			return t.result.imported, t.result.err
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	t := &initTask{done: make(chan struct{})}
	e.initTask = t
	e.initMu.Unlock()

	func() {
		defer func() {
			if r := recover(); r != nil {
				t.result = initResult{err: fmt.Errorf("backfill panicked: %v", r)}
				e.state.setSyncCompleted(e.nowFn(), t.result.err)
			}
			e.initMu.Lock()
			e.initTask = nil
			e.initMu.Unlock()
			close(t.done)
		}()

		imported, err := e.runBackfill(ctx)
		t.result = initResult{imported: imported, err: err}
	}()

	if t.result.err == nil {
		e.emitSync(SyncEvent{Kind: "backfill", Imported: t.result.imported, At: e.nowFn()})
	}
	return t.result.imported, t.result.err
}

// runScheduledRefresh is the scheduler tick body. Overlapping ticks are
// skipped instead of queued. An active system that has not had a full
// refresh within the configured interval gets a backfill; everything else
// is a delta plus eviction.
func (e *Engine) runScheduledRefresh(ctx context.Context) {
	if !e.refreshing.CompareAndSwap(false, true) {
		return
	}
	defer e.refreshing.Store(false)

	if e.shouldFullRefresh(e.nowFn()) {
		if _, err := e.InitializeCache(ctx); err != nil {
			logger.WithComponent("scheduler").Warnf("scheduled full refresh failed: %v", err)
		}
		return
	}

	if err := e.UpdateCache(ctx); err != nil {
		logger.WithComponent("scheduler").Warnf("scheduled delta failed: %v", err)
	}
}

func (e *Engine) shouldFullRefresh(now time.Time) bool {
	if !e.state.isInitialized() {
		return true
	}
	if e.idleNow(now) {
		return false
	}
	return now.Sub(e.state.lastFullRefreshTime()) >= e.fullRefreshEvery
}

// idleNow reports whether the system counts as idle: no read request was
// observed within the idle threshold.
func (e *Engine) idleNow(now time.Time) bool {
	last := e.state.lastActivityTime()
	return last.IsZero() || now.Sub(last) >= e.idleAfter
}

// RecordActivity notes an incoming read request. A request that finds
// the system idle wakes the scheduler immediately so the UI sees fresh
// data without waiting out a stretched idle tick.
func (e *Engine) RecordActivity() {
	now := e.nowFn()
	wasIdle := e.idleNow(now)
	e.state.setLastActivity(now)
	if wasIdle {
		e.sched.WakeNow()
	}
}

// StartRefreshScheduler arms the periodic refresh. Idempotent.
func (e *Engine) StartRefreshScheduler() { e.sched.Start() }

// StopRefreshScheduler cancels the periodic refresh. Idempotent.
func (e *Engine) StopRefreshScheduler() { e.sched.Stop() }

// SetRefreshInterval validates, persists and applies a new refresh
// cadence, then reschedules the pending tick against it.
func (e *Engine) SetRefreshInterval(ms int64) error {
	if !validInterval(ms) {
		return fmt.Errorf("%w: %dms", ErrInvalidInterval, ms)
	}
	if err := e.putSetting(models.SettingRefreshIntervalMS, strconv.FormatInt(ms, 10)); err != nil {
		return fmt.Errorf("persist refresh interval: %w", err)
	}
	e.state.setIntervalMS(ms)
	e.sched.Reschedule()
	return nil
}

// RefreshInterval returns the active refresh cadence in milliseconds.
func (e *Engine) RefreshInterval() int64 {
	return e.state.refreshIntervalMS()
}

func (e *Engine) restoreInterval() {
	v, ok := e.settingValue(models.SettingRefreshIntervalMS)
	if !ok {
		return
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || !validInterval(ms) {
		logger.WithComponent("cache").Warnf("ignoring persisted refresh interval %q", v)
		return
	}
	e.state.setIntervalMS(ms)
}

func validInterval(ms int64) bool {
	for _, v := range ValidRefreshIntervalsMS {
		if ms == v {
			return true
		}
	}
	return false
}

// QueryAlerts serves alerts from the local cache, newest first. In
// manual mode the read triggers a synchronous refresh first; a failed
// refresh degrades to serving cached data.
func (e *Engine) QueryAlerts(ctx context.Context, since time.Time) ([]models.Alert, error) {
	e.syncIfManual(ctx)
	return e.fetchAlertRows(ctx, since)
}

// QueryDecisions serves decisions from the local cache, newest first,
// with remaining duration, expiry and duplicate flags computed against
// the current clock. Expired rows are omitted unless includeExpired is
// set.
func (e *Engine) QueryDecisions(ctx context.Context, since time.Time, includeExpired bool) ([]models.Decision, error) {
	e.syncIfManual(ctx)

	now := e.nowFn()
	rows, err := e.fetchDecisionRows(ctx, since, includeExpired, now)
	if err != nil {
		return nil, err
	}

	FlagDuplicates(rows, now)
	for i := range rows {
		Hydrate(&rows[i], now)
	}
	return rows, nil
}

func (e *Engine) syncIfManual(ctx context.Context) {
	if e.state.refreshIntervalMS() != 0 {
		return
	}
	if err := e.UpdateCache(ctx); err != nil {
		logger.WithComponent("cache").Warnf("manual refresh failed, serving cached data: %v", err)
	}
}

// ClearCache wipes both tables and starts a fresh backfill in the
// background. The caller gets an empty cache immediately.
func (e *Engine) ClearCache(ctx context.Context) error {
	if err := e.wipeTables(ctx); err != nil {
		return fmt.Errorf("clear cache tables: %w", err)
	}

	e.state.resetForReload()
	e.emitSync(SyncEvent{Kind: "clear", At: e.nowFn()})

	go func() {
		if _, err := e.InitializeCache(context.Background()); err != nil {
			logger.WithComponent("cache").Errorf("reload backfill failed: %v", err)
		}
	}()

	return nil
}

// RemoveAlert drops one alert and its decisions from the local cache.
// Upstream deletion is the caller's business. Update-only refreshes never
// bring a removed row back.
func (e *Engine) RemoveAlert(ctx context.Context, id int64) error {
	return e.deleteAlertRow(ctx, id)
}

// RemoveDecision drops one decision from the local cache.
func (e *Engine) RemoveDecision(ctx context.Context, id string) error {
	return e.deleteDecisionRow(ctx, id)
}

// SyncStatus reports the lifecycle of the current or last sync run.
func (e *Engine) SyncStatus() SyncStatus {
	return e.state.statusSnapshot()
}

// State reports cache counts, freshness and scheduler configuration.
func (e *Engine) State(ctx context.Context) CacheState {
	st := e.state.stateSnapshot()
	st.AlertCount, st.DecisionCount = e.countRows(ctx)
	st.Lookback = e.lookback.String()
	return st
}

// OnSync registers a listener for completed cache mutations. Listeners
// run on their own goroutines and must not block forever.
func (e *Engine) OnSync(fn func(SyncEvent)) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners = append(e.listeners, fn)
}

func (e *Engine) emitSync(evt SyncEvent) {
	e.listenersMu.RLock()
	defer e.listenersMu.RUnlock()
	for _, fn := range e.listeners {
		go fn(evt)
	}
}

func (e *Engine) notifyNewDecisions(fresh []models.Decision) {
	if len(fresh) == 0 {
		return
	}
	e.notifierMu.RLock()
	n := e.notifier
	e.notifierMu.RUnlock()
	if n == nil {
		return
	}
	go n.NotifyNewDecisions(fresh)
}
