package orchestrator

import (
	"sync"
	"time"

	"github.com/JakeFAU/creatorcrawl/internal/crawler"
)

// Run states reported by Progress.
const (
	StateIdle    = "idle"
	StateRunning = "running"
	StateDone    = "done"
	StateAborted = "aborted"
)

// Summary counts what a run did. Skipped candidates were already checkpointed;
// every dispatched candidate ends Accepted, Rejected or Failed, except one
// interrupted mid-flight.
type Summary struct {
	RunID         string    `json:"run_id"`
	State         string    `json:"state"`
	CurrentQuery  string    `json:"current_query,omitempty"`
	QueriesTotal  int       `json:"queries_total"`
	QueriesDone   int       `json:"queries_done"`
	QueriesFailed int       `json:"queries_failed"`
	Discovered    int       `json:"discovered"`
	Skipped       int       `json:"skipped"`
	Dispatched    int       `json:"dispatched"`
	Accepted      int       `json:"accepted"`
	Rejected      int       `json:"rejected"`
	Failed        int       `json:"failed"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Error         string    `json:"error,omitempty"`
}

type tracker struct {
	mu sync.RWMutex
	s  Summary
}

func newTracker() *tracker {
	return &tracker{s: Summary{State: StateIdle}}
}

func (t *tracker) update(fn func(*Summary)) {
	t.mu.Lock()
	fn(&t.s)
	t.mu.Unlock()
}

func (t *tracker) snapshot() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.s
}

func (t *tracker) begin(runID string, queries int, now time.Time) {
	t.update(func(s *Summary) {
		*s = Summary{RunID: runID, State: StateRunning, QueriesTotal: queries, StartedAt: now}
	})
}

func (t *tracker) startQuery(term string) {
	t.update(func(s *Summary) { s.CurrentQuery = term })
}

func (t *tracker) queryDone() {
	t.update(func(s *Summary) { s.QueriesDone++ })
}

func (t *tracker) queryFailed() {
	t.update(func(s *Summary) { s.QueriesFailed++ })
}

func (t *tracker) discovered(n int) {
	t.update(func(s *Summary) { s.Discovered += n })
}

func (t *tracker) skipped() {
	t.update(func(s *Summary) { s.Skipped++ })
}

func (t *tracker) dispatched() {
	t.update(func(s *Summary) { s.Dispatched++ })
}

func (t *tracker) outcome(kind crawler.OutcomeKind) {
	t.update(func(s *Summary) {
		switch kind {
		case crawler.OutcomeAccepted:
			s.Accepted++
		case crawler.OutcomeRejected:
			s.Rejected++
		case crawler.OutcomeFailed:
			s.Failed++
		}
	})
}

func (t *tracker) finish(now time.Time, err error) Summary {
	t.update(func(s *Summary) {
		s.FinishedAt = now
		s.CurrentQuery = ""
		s.State = StateDone
		if err != nil {
			s.State = StateAborted
			s.Error = err.Error()
		}
	})
	return t.snapshot()
}
