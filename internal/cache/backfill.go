package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/logger"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/metrics"
)

const (
	// backfillChunk is the width of one historical fetch window.
	backfillChunk = 6 * time.Hour

	// chunkPause spaces chunk fetches so the upstream engine is not
	// hammered during a cold start.
	chunkPause = 100 * time.Millisecond

	// backfillProgressCap leaves headroom for the final active-decision
	// pass before progress reaches 100.
	backfillProgressCap = 90
)

// runBackfill walks the lookback window oldest-first in fixed chunks,
// imports every chunk it can fetch, then closes with an unbounded pass
// over alerts that still have active decisions so bans opened before the
// window are represented. Individual chunk failures are logged and
// skipped; the backfill as a whole fails only when every upstream call
// failed.
func (e *Engine) runBackfill(ctx context.Context) (int, error) {
	log := logger.WithComponent("backfill")

	now := e.nowFn()
	windowStart := now.Add(-e.lookback)
	e.state.setSyncStarted(now, "importing alert history")
	log.WithField("lookback", e.lookback.String()).Info("starting cache backfill")

	imported := 0
	attempts := 0
	failures := 0

	for chunkStart := windowStart; chunkStart.Before(now); chunkStart = chunkStart.Add(backfillChunk) {
		chunkEnd := chunkStart.Add(backfillChunk)
		if chunkEnd.After(now) {
			chunkEnd = now
		}
		attempts++

		since := now.Sub(chunkStart)
		var until *time.Duration
		if d := now.Sub(chunkEnd); d > 0 {
			until = &d
		}

		alerts, err := e.client.FetchAlerts(ctx, &since, until, false)
		if err != nil {
			failures++
			log.WithField("chunk_start", chunkStart.Format(time.RFC3339)).Warnf("chunk fetch failed, skipping: %v", err)
		} else if n, _, err := e.importAlerts(ctx, alerts, e.nowFn()); err != nil {
			failures++
			log.WithField("chunk_start", chunkStart.Format(time.RFC3339)).Warnf("chunk import failed, skipping: %v", err)
		} else {
			imported += n
		}

		progress := int(float64(chunkEnd.Sub(windowStart)) / float64(now.Sub(windowStart)) * 100)
		if progress > backfillProgressCap {
			progress = backfillProgressCap
		}
		e.state.setProgress(progress, fmt.Sprintf("imported %d alerts", imported))

		if chunkEnd.Before(now) {
			if err := sleepContext(ctx, e.chunkPause); err != nil {
				e.state.setSyncCompleted(e.nowFn(), err)
				metrics.IncSyncRun(metrics.SyncKindFull, metrics.ResultError)
				return imported, err
			}
		}
	}

	e.state.setProgress(backfillProgressCap, "importing alerts with active decisions")

	attempts++
	alerts, err := e.client.FetchAlerts(ctx, nil, nil, true)
	if err != nil {
		failures++
		log.Warnf("active-decision pass failed: %v", err)
	} else if n, _, err := e.importAlerts(ctx, alerts, e.nowFn()); err != nil {
		failures++
		log.Warnf("active-decision import failed: %v", err)
	} else {
		imported += n
	}

	if failures == attempts {
		err := fmt.Errorf("backfill failed: all %d upstream fetches failed", attempts)
		e.state.setSyncCompleted(e.nowFn(), err)
		metrics.IncSyncRun(metrics.SyncKindFull, metrics.ResultError)
		return imported, err
	}

	if err := e.refreshDuplicateHints(ctx, e.nowFn()); err != nil {
		log.Warnf("duplicate hint refresh failed: %v", err)
	}

	completedAt := e.nowFn()
	e.state.markInitialized()
	e.state.setLastUpdate(completedAt)
	e.state.setLastFullRefresh(completedAt)
	e.state.setSyncCompleted(completedAt, nil)
	metrics.IncSyncRun(metrics.SyncKindFull, metrics.ResultOK)

	log.WithField("imported", imported).Info("cache backfill complete")
	return imported, nil
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
