// Package run owns the single live run state and its monotonically
// increasing run id. Every asynchronous continuation carries the id it was
// issued under and commits through Update, which drops mutations from
// superseded runs.
package run

import (
	"errors"
	"sync"
	"time"

	"grokfav/pkg/models"
)

// ErrBusy is returned by StartRun while another run is active
var ErrBusy = errors.New("a run is already active")

// State is the mutable state of the live run
type State struct {
	RunID             uint64
	Active            bool
	Debug             bool
	SessionFolder     string
	Queue             []models.QueueEntry
	Cursor            int
	Results           []models.Result
	RetryQueue        []models.QueueEntry
	RetryAttempts     map[string]int
	PermanentFailures []string
	Progress          models.Progress
	ReversalEntries   []models.ReversalEntry
	StartedAt         time.Time
}

// Advance counts one more primary-pass item, never past the total
func (s *State) Advance() models.Progress {
	if s.Progress.Completed < s.Progress.Total {
		s.Progress.Completed++
	}
	return s.Progress
}

// RecordResult appends a primary-pass outcome
func (s *State) RecordResult(url string, o models.Outcome) {
	s.Results = append(s.Results, models.Result{URL: url, Success: o.Success, Message: o.Message})
}

// OverwriteFailure replaces the first failed result for url with o. It
// reports false when no failed result exists for url.
func (s *State) OverwriteFailure(url string, o models.Outcome) bool {
	for i := range s.Results {
		if s.Results[i].URL == url && !s.Results[i].Success {
			s.Results[i] = models.Result{URL: url, Success: o.Success, Message: o.Message}
			return true
		}
	}
	return false
}

// Counts returns the successes and failures over the results list
func (s *State) Counts() (successes, failures int) {
	for _, r := range s.Results {
		if r.Success {
			successes++
		}
	}
	return successes, len(s.Results) - successes
}

func (s State) clone() State {
	out := s
	out.Queue = append([]models.QueueEntry(nil), s.Queue...)
	out.Results = append([]models.Result(nil), s.Results...)
	out.RetryQueue = append([]models.QueueEntry(nil), s.RetryQueue...)
	out.PermanentFailures = append([]string(nil), s.PermanentFailures...)
	out.ReversalEntries = append([]models.ReversalEntry(nil), s.ReversalEntries...)
	out.RetryAttempts = make(map[string]int, len(s.RetryAttempts))
	for k, v := range s.RetryAttempts {
		out.RetryAttempts[k] = v
	}
	return out
}

// Controller serializes all access to the run state
type Controller struct {
	mu    sync.Mutex
	state State
	now   func() time.Time
}

// NewController returns a controller with an empty, idle state
func NewController() *Controller {
	return &Controller{
		state: State{RetryAttempts: map[string]int{}},
		now:   time.Now,
	}
}

// Reset supersedes any run and clears everything, the reversal index
// included. It is called when a page is (re)attached.
func (c *Controller) Reset() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = State{RunID: c.state.RunID + 1, RetryAttempts: map[string]int{}}
	return c.state.RunID
}

// StartRun installs a new run and returns its id, or ErrBusy without any
// change when a run is already active.
func (c *Controller) StartRun(queue []models.QueueEntry, reversal []models.ReversalEntry, sessionFolder string, debug bool) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Active {
		return 0, ErrBusy
	}

	c.state = State{
		RunID:           c.state.RunID + 1,
		Active:          true,
		Debug:           debug,
		SessionFolder:   sessionFolder,
		Queue:           append([]models.QueueEntry(nil), queue...),
		RetryAttempts:   map[string]int{},
		Progress:        models.Progress{Total: len(queue)},
		ReversalEntries: append([]models.ReversalEntry(nil), reversal...),
		StartedAt:       c.now(),
	}
	return c.state.RunID, nil
}

// IsActive reports whether a run is in progress
func (c *Controller) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Active
}

// CurrentRunID returns the live run id
func (c *Controller) CurrentRunID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.RunID
}

// CancelIfStale reports true when runID is no longer the live, active run;
// the caller must then discard whatever it was about to commit.
func (c *Controller) CancelIfStale(runID uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.currentLocked(runID)
}

func (c *Controller) currentLocked(runID uint64) bool {
	return c.state.Active && c.state.RunID == runID
}

// Update applies fn to the live state only if runID is still the live,
// active run. It reports whether fn ran.
func (c *Controller) Update(runID uint64, fn func(s *State)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(runID) {
		return false
	}
	fn(&c.state)
	return true
}

// View returns a copy of the state of runID, if it is still live
func (c *Controller) View(runID uint64) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(runID) {
		return State{}, false
	}
	return c.state.clone(), true
}

// Snapshot returns a copy of the live state
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Finalize closes runID: it builds the summary, resets the transient fields
// and keeps the reversal index. It reports false for a stale run.
func (c *Controller) Finalize(runID uint64) (models.Summary, bool) {
	return c.close(runID, true)
}

// Abort closes runID without completing it: progress stays where the run
// stopped, the results so far are summarized and the reversal index is kept.
// It reports false for a stale run.
func (c *Controller) Abort(runID uint64) (models.Summary, bool) {
	return c.close(runID, false)
}

func (c *Controller) close(runID uint64, complete bool) (models.Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(runID) {
		return models.Summary{}, false
	}

	s := &c.state
	successes, failures := s.Counts()
	if complete {
		s.Progress.Completed = s.Progress.Total
	}

	summary := models.Summary{
		RunID:             s.RunID,
		SessionFolder:     s.SessionFolder,
		Successes:         successes,
		Failures:          failures,
		PermanentFailures: append([]string(nil), s.PermanentFailures...),
		Results:           append([]models.Result(nil), s.Results...),
		ReversalEntries:   append([]models.ReversalEntry(nil), s.ReversalEntries...),
		StartedAt:         s.StartedAt,
		FinishedAt:        c.now(),
	}

	c.state = State{
		RunID:           s.RunID,
		RetryAttempts:   map[string]int{},
		Progress:        s.Progress,
		ReversalEntries: s.ReversalEntries,
	}
	return summary, true
}

// ReversalEntries returns a copy of the retained reversal index
func (c *Controller) ReversalEntries() []models.ReversalEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ReversalEntry(nil), c.state.ReversalEntries...)
}

// ClearReversal drops the reversal index
func (c *Controller) ClearReversal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.ReversalEntries = nil
}
