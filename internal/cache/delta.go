package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/lapi"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/logger"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/metrics"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/models"
)

// deltaSinceBuffer widens the incremental window past the last update so
// records landing upstream mid-sync are not missed. Upserts make the
// overlap harmless.
const deltaSinceBuffer = 30 * time.Second

// UpdateCacheDelta performs one incremental sync: alerts created since
// the last update are upserted, while alerts that merely still have
// active decisions get update-only expiry refreshes so nothing deleted
// locally reappears. On the first call before any backfill it falls back
// to full initialization.
func (e *Engine) UpdateCacheDelta(ctx context.Context) error {
	if !e.state.isInitialized() {
		_, err := e.InitializeCache(ctx)
		return err
	}

	log := logger.WithComponent("delta")
	now := e.nowFn()
	since := now.Sub(e.state.lastUpdateTime()) + deltaSinceBuffer

	var (
		wg           sync.WaitGroup
		newAlerts    []lapi.Alert
		activeAlerts []lapi.Alert
		newErr       error
		activeErr    error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		newAlerts, newErr = e.client.FetchAlerts(ctx, &since, nil, false)
	}()
	go func() {
		defer wg.Done()
		activeAlerts, activeErr = e.client.FetchAlerts(ctx, nil, nil, true)
	}()
	wg.Wait()

	if newErr != nil {
		metrics.IncSyncRun(metrics.SyncKindDelta, metrics.ResultError)
		return fmt.Errorf("fetch new alerts: %w", newErr)
	}
	if activeErr != nil {
		metrics.IncSyncRun(metrics.SyncKindDelta, metrics.ResultError)
		return fmt.Errorf("fetch active decisions: %w", activeErr)
	}

	imported, fresh, err := e.importAlerts(ctx, newAlerts, e.nowFn())
	if err != nil {
		metrics.IncSyncRun(metrics.SyncKindDelta, metrics.ResultError)
		return fmt.Errorf("import new alerts: %w", err)
	}

	refreshed, err := e.refreshDecisions(ctx, activeDecisionRows(activeAlerts, e.nowFn()))
	if err != nil {
		metrics.IncSyncRun(metrics.SyncKindDelta, metrics.ResultError)
		return fmt.Errorf("refresh active decisions: %w", err)
	}

	if err := e.refreshDuplicateHints(ctx, e.nowFn()); err != nil {
		log.Warnf("duplicate hint refresh failed: %v", err)
	}

	e.state.setLastUpdate(now)
	metrics.IncSyncRun(metrics.SyncKindDelta, metrics.ResultOK)

	if imported > 0 || refreshed > 0 {
		log.WithFields(logrus.Fields{
			"imported":  imported,
			"refreshed": refreshed,
		}).Info("delta sync applied")
	}

	e.notifyNewDecisions(fresh)
	e.emitSync(SyncEvent{Kind: metrics.SyncKindDelta, Imported: imported, At: now})

	return nil
}

// activeDecisionRows normalizes the still-active upstream alerts into the
// decision rows eligible for update-only refresh.
func activeDecisionRows(alerts []lapi.Alert, now time.Time) []models.Decision {
	var rows []models.Decision
	for _, a := range alerts {
		_, decs := Normalize(a, now)
		rows = append(rows, decs...)
	}
	return rows
}

// CleanupOldData evicts rows that fell out of the lookback window.
func (e *Engine) CleanupOldData(ctx context.Context) (int64, error) {
	cutoff := e.nowFn().Add(-e.lookback)
	removed, err := e.evictBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("evict before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if removed > 0 {
		logger.WithComponent("cache").WithField("removed", removed).Info("evicted rows outside lookback window")
	}
	return removed, nil
}

// UpdateCache runs one full maintenance cycle: a delta sync followed by
// lookback eviction. This is what the scheduler and manual-mode reads
// invoke.
func (e *Engine) UpdateCache(ctx context.Context) error {
	if err := e.UpdateCacheDelta(ctx); err != nil {
		return err
	}
	if _, err := e.CleanupOldData(ctx); err != nil {
		return err
	}
	return nil
}
