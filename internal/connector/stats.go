package connector

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time view of crawl progress.
type Snapshot struct {
	SessionID       string     `json:"session_id,omitempty"`
	Running         bool       `json:"running"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	Visited         int        `json:"visited"`
	Documents       int        `json:"documents"`
	Batches         int        `json:"batches"`
	Skipped         int        `json:"skipped"`
	RateLimited     int        `json:"rate_limited"`
	SessionRestarts int        `json:"session_restarts"`
	Queued          int        `json:"queued"`
	LastError       string     `json:"last_error,omitempty"`
}

// Stats tracks crawl progress. It is written by the crawl loop and may be
// read concurrently, e.g. by a status endpoint.
type Stats struct {
	mu   sync.RWMutex
	snap Snapshot
}

func newStats() *Stats {
	return &Stats{}
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Stats) update(fn func(*Snapshot)) {
	s.mu.Lock()
	fn(&s.snap)
	s.mu.Unlock()
}

func (s *Stats) start(sessionID string, at time.Time) {
	s.update(func(snap *Snapshot) {
		*snap = Snapshot{SessionID: sessionID, Running: true, StartedAt: &at}
	})
}

func (s *Stats) finish(at time.Time) {
	s.update(func(snap *Snapshot) {
		snap.Running = false
		snap.FinishedAt = &at
	})
}
