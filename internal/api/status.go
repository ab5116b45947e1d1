package api

import (
	"sync"
	"time"

	"github.com/JakeFAU/sitesearch-crawler/internal/crawler"
)

// Run states reported by Status.
const (
	StateStarting = "starting"
	StateRunning  = "running"
	StateDone     = "done"
)

// RunStatus is the JSON view of a run.
type RunStatus struct {
	RunID       string    `json:"run_id"`
	State       string    `json:"state"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	Pairs       int       `json:"pairs"`
	FailedPairs int       `json:"failed_pairs"`
	Records     int       `json:"records"`
	Duration    string    `json:"duration,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Status tracks a run's progress for the status listener. It is safe for
// concurrent use.
type Status struct {
	mu     sync.RWMutex
	status RunStatus
	now    func() time.Time
}

// NewStatus returns a Status in the starting state.
func NewStatus(runID string) *Status {
	return &Status{
		status: RunStatus{RunID: runID, State: StateStarting},
		now:    time.Now,
	}
}

// Start marks the run as running.
func (s *Status) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.State = StateRunning
	s.status.StartedAt = s.now().UTC()
}

// RecordPair folds one finished pair into the counters. It matches the
// signature expected by crawler.Runner.OnPair.
func (s *Status) RecordPair(p crawler.PairResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Pairs++
	if p.Err != nil {
		s.status.FailedPairs++
	}
	s.status.Records += p.Records
}

// Finish stores the final summary and any sink error.
func (s *Status) Finish(summary crawler.Summary, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.State = StateDone
	s.status.Pairs = summary.Pairs
	s.status.FailedPairs = summary.FailedPairs
	s.status.Records = summary.Records
	s.status.Duration = summary.Duration.String()
	if err != nil {
		s.status.Error = err.Error()
	}
}

// Snapshot returns a copy of the current status.
func (s *Status) Snapshot() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}
