package cache

import (
	"context"
	"sync"
	"time"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/logger"
)

// scheduler drives periodic refreshes off a single timer. Every
// (re)schedule cancels the previous timer first, so at most one tick is
// ever pending regardless of how start/stop/interval changes interleave.
type scheduler struct {
	mu      sync.Mutex
	engine  *Engine
	timer   *time.Timer
	started bool
}

func newScheduler(e *Engine) *scheduler {
	return &scheduler{engine: e}
}

// Start arms the timer. Calling it twice is a no-op.
func (s *scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.scheduleLocked()
}

// Stop cancels any pending tick. Calling it twice is a no-op.
func (s *scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.cancelLocked()
}

// Reschedule re-arms the timer against the current interval and idle
// state. Used after interval changes.
func (s *scheduler) Reschedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduleLocked()
}

// WakeNow cancels the pending tick and runs one immediately. Regular
// scheduling resumes when the tick finishes. In manual mode (interval 0)
// this is a no-op because reads already sync inline.
func (s *scheduler) WakeNow() {
	s.mu.Lock()
	if !s.started || s.engine.state.refreshIntervalMS() <= 0 {
		s.mu.Unlock()
		return
	}
	s.cancelLocked()
	s.mu.Unlock()

	go s.tick()
}

func (s *scheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *scheduler) scheduleLocked() {
	s.cancelLocked()
	if !s.started {
		return
	}
	next := s.nextInterval()
	if next <= 0 {
		// Manual mode: no timer, reads trigger syncs themselves.
		return
	}
	s.timer = time.AfterFunc(next, s.tick)
}

// nextInterval picks the refresh cadence. Idle periods stretch the
// cadence to the idle interval, but never below what the operator chose:
// an active interval longer than the idle one is kept as is.
func (s *scheduler) nextInterval() time.Duration {
	active := time.Duration(s.engine.state.refreshIntervalMS()) * time.Millisecond
	if active <= 0 {
		return 0
	}
	idle := s.engine.idleInterval
	if s.engine.idleNow(s.engine.nowFn()) && active < idle {
		return idle
	}
	return active
}

// tick runs one scheduled refresh and re-arms the timer. A panicking
// refresh must not kill the schedule, so the re-arm happens in a
// recovering defer.
func (s *scheduler) tick() {
	defer func() {
		if r := recover(); r != nil {
			logger.WithComponent("scheduler").Errorf("scheduled refresh panicked: %v", r)
		}
		s.mu.Lock()
		if s.started {
			s.scheduleLocked()
		}
		s.mu.Unlock()
	}()

	s.engine.runScheduledRefresh(context.Background())
}
