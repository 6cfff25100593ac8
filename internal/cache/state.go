package cache

import (
	"sync"
	"time"
)

// SyncStatus is a point-in-time snapshot of the sync lifecycle, shaped
// for the status endpoint.
type SyncStatus struct {
	InProgress  bool       `json:"in_progress"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// CacheState is a point-in-time snapshot of cache health and freshness.
type CacheState struct {
	Initialized       bool       `json:"initialized"`
	AlertCount        int64      `json:"alert_count"`
	DecisionCount     int64      `json:"decision_count"`
	LastUpdate        *time.Time `json:"last_update,omitempty"`
	LastFullRefresh   *time.Time `json:"last_full_refresh,omitempty"`
	LastActivity      *time.Time `json:"last_activity,omitempty"`
	RefreshIntervalMS int64      `json:"refresh_interval_ms"`
	Lookback          string     `json:"lookback"`
}

// syncState holds the engine's mutable runtime state behind one mutex.
// Timestamps are zero until the corresponding event first happens.
type syncState struct {
	mu sync.Mutex

	initialized bool
	inProgress  bool
	progress    int
	message     string
	startedAt   time.Time
	completedAt time.Time
	lastError   string

	lastUpdate      time.Time
	lastFullRefresh time.Time
	lastActivity    time.Time
	intervalMS      int64
}

func (s *syncState) setSyncStarted(now time.Time, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inProgress = true
	s.progress = 0
	s.message = message
	s.startedAt = now
	s.completedAt = time.Time{}
	s.lastError = ""
}

func (s *syncState) setProgress(progress int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = progress
	s.message = message
}

func (s *syncState) setSyncCompleted(now time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inProgress = false
	s.completedAt = now
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
		s.progress = 100
	}
}

func (s *syncState) markInitialized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
}

func (s *syncState) isInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *syncState) setLastUpdate(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUpdate = now
}

func (s *syncState) lastUpdateTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpdate
}

func (s *syncState) setLastFullRefresh(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFullRefresh = now
}

func (s *syncState) lastFullRefreshTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFullRefresh
}

func (s *syncState) setLastActivity(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = now
}

func (s *syncState) lastActivityTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *syncState) setIntervalMS(ms int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intervalMS = ms
}

func (s *syncState) refreshIntervalMS() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intervalMS
}

// resetForReload puts the state back to uninitialized after a cache wipe.
// The configured interval and observed activity survive the reset.
func (s *syncState) resetForReload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = false
	s.inProgress = false
	s.progress = 0
	s.message = ""
	s.startedAt = time.Time{}
	s.completedAt = time.Time{}
	s.lastError = ""
	s.lastUpdate = time.Time{}
	s.lastFullRefresh = time.Time{}
}

func (s *syncState) statusSnapshot() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SyncStatus{
		InProgress: s.inProgress,
		Progress:   s.progress,
		Message:    s.message,
		LastError:  s.lastError,
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		st.StartedAt = &t
	}
	if !s.completedAt.IsZero() {
		t := s.completedAt
		st.CompletedAt = &t
	}
	return st
}

func (s *syncState) stateSnapshot() CacheState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := CacheState{
		Initialized:       s.initialized,
		RefreshIntervalMS: s.intervalMS,
	}
	if !s.lastUpdate.IsZero() {
		t := s.lastUpdate
		st.LastUpdate = &t
	}
	if !s.lastFullRefresh.IsZero() {
		t := s.lastFullRefresh
		st.LastFullRefresh = &t
	}
	if !s.lastActivity.IsZero() {
		t := s.lastActivity
		st.LastActivity = &t
	}
	return st
}
