package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"grokfav/pkg/config"
	errs "grokfav/pkg/errors"
	"grokfav/pkg/harvest"
	"grokfav/pkg/logger"
	"grokfav/pkg/models"
	"grokfav/pkg/orchestrator"
	"grokfav/pkg/queue"
	"grokfav/pkg/run"
	"grokfav/pkg/status"
)

// DefaultHistorySize bounds the status history kept for late observers
const DefaultHistorySize = 500

// Messages shown to the user. The not-ready text doubles as the start error.
const (
	msgNotReady      = "Favorites grid not detected. Solve verification prompts, reload the page, then try again."
	msgNoMedia       = "Could not locate any downloadable media on this page."
	msgQueueFailed   = "Collected media but failed to prepare download queue."
	msgSuperseded    = "Page changed while scanning. Start again."
	msgNoneSelected  = "No items selected to unfavorite."
	msgNoneValid     = "No valid items to unfavorite."
	msgReversalSkip  = "Skipped unfavorite. All items remain favorited."
	msgScanAll       = "Scanning favorites page (scrolling and loading all media)…"
	msgScanLimitedFm = "Scanning favorites page (will limit to %d files for testing)…"
)

// StartStatus is the immediate answer to a start request
type StartStatus string

const (
	StartBusy     StartStatus = "busy"
	StartNeedPage StartStatus = "need_page"
	StartError    StartStatus = "error"
	StartEmpty    StartStatus = "empty"
	StartStarted  StartStatus = "started"
)

// StartResult reports how a start request was handled
type StartResult struct {
	Status  StartStatus
	Message string
	Total   int
	RunID   uint64
	// Err is the typed cause of an error or empty result
	Err error
}

// CurrentState is what a late observer needs to rebuild its view
type CurrentState struct {
	History   []status.Event
	Progress  models.Progress
	Active    bool
	Total     int
	Completed int
}

// Options configures a Scraper
type Options struct {
	Harvest      harvest.Options
	Orchestrator orchestrator.Options
	SessionRoot  string
	HistorySize  int
}

// OptionsFromConfig derives scraper options from the loaded configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Harvest:      harvest.OptionsFromConfig(cfg.Harvest),
		Orchestrator: orchestrator.OptionsFromConfig(cfg.Download),
		SessionRoot:  cfg.Output.SessionRoot,
		HistorySize:  DefaultHistorySize,
	}
}

// Scraper is the run control surface: it harvests the attached page, builds
// the download queue, runs it in the background and handles the unfavorite
// pass that follows.
type Scraper struct {
	mu         sync.Mutex
	page       *Page
	harvesting bool
	done       chan struct{}
	last       models.Summary
	lastErr    error

	controller *run.Controller
	orch       *orchestrator.Orchestrator
	history    *status.History
	sink       status.Sink
	delayer    harvest.Delayer
	opts       Options
	logger     logger.Logger
	now        func() time.Time

	hooksMu sync.Mutex
	hooks   []func(models.Summary)
}

// New creates a scraper. Events go to the bounded history and to sink.
func New(submitter orchestrator.Submitter, sink status.Sink, opts Options, log logger.Logger) *Scraper {
	if sink == nil {
		sink = status.Discard
	}
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.SessionRoot == "" {
		opts.SessionRoot = queue.DefaultSessionRoot
	}

	s := &Scraper{
		controller: run.NewController(),
		history:    status.NewHistory(opts.HistorySize),
		sink:       sink,
		delayer:    harvest.RandomDelayer{},
		opts:       opts,
		logger:     log.WithField("component", "scraper"),
		now:        time.Now,
	}
	s.orch = orchestrator.New(s.controller, submitter, status.SinkFunc(s.forward), opts.Orchestrator, log)
	s.orch.OnComplete(s.complete)
	return s
}

// SetDelayer replaces the harvester's randomized waits
func (s *Scraper) SetDelayer(d harvest.Delayer) {
	s.delayer = d
}

// SetSleep replaces the orchestrator's pacing and retry waits
func (s *Scraper) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	s.orch.Sleep = fn
}

// OnComplete registers fn to receive the summary of every finalized run
func (s *Scraper) OnComplete(fn func(models.Summary)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *Scraper) complete(summary models.Summary) {
	s.hooksMu.Lock()
	hooks := append([]func(models.Summary){}, s.hooks...)
	s.hooksMu.Unlock()

	for _, fn := range hooks {
		fn(summary)
	}
}

// forward records an event and passes it on
func (s *Scraper) forward(e status.Event) {
	s.history.Publish(e)
	s.sink.Publish(e)
}

// notify publishes text with the last known progress attached
func (s *Scraper) notify(text string, state status.State) {
	e := status.Event{Text: text, State: state, Timestamp: s.now()}
	if p := s.controller.Snapshot().Progress; p.Total > 0 || p.Completed > 0 {
		e.Progress = &p
	}
	s.forward(e)
}

// Attach installs page as the harvest target. Any in-flight run is
// superseded and the history and reversal index are cleared.
func (s *Scraper) Attach(page *Page) uint64 {
	s.mu.Lock()
	s.page = page
	s.mu.Unlock()

	id := s.controller.Reset()
	s.history.Reset()
	s.logger.DebugWithFields("Page attached", map[string]interface{}{"run_id": id})
	return id
}

// StartHarvestAndDownload harvests the attached page and starts the
// download run in the background. ctx governs both phases; cancelling it
// aborts the run with an error event. limit > 0 caps the number of media
// files queued.
func (s *Scraper) StartHarvestAndDownload(ctx context.Context, debug bool, limit int) StartResult {
	s.mu.Lock()
	if s.harvesting || s.controller.IsActive() {
		s.mu.Unlock()
		return StartResult{Status: StartBusy}
	}
	page := s.page
	if page == nil || page.Surface == nil {
		s.mu.Unlock()
		return StartResult{Status: StartNeedPage}
	}
	s.harvesting = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.harvesting = false
		s.mu.Unlock()
	}()

	generation := s.controller.CurrentRunID()

	if limit > 0 {
		s.notify(fmt.Sprintf(msgScanLimitedFm, limit), status.StateRunning)
	} else {
		s.notify(msgScanAll, status.StateRunning)
	}

	h := harvest.New(page.Surface, page.Resolver, s.opts.Harvest, s.logger)
	h.SetDelayer(s.delayer)
	res, err := h.Harvest(ctx, debug)
	if err != nil {
		s.logger.WithError(err).Error("Harvest failed")
		msg := err.Error()
		s.notify(msg, status.StateError)
		return StartResult{Status: StartError, Message: msg, Err: err}
	}

	if debug {
		for _, line := range res.Diagnostics {
			if line = strings.TrimSpace(line); line != "" {
				s.notify(line, status.StateDebug)
			}
		}
	}

	if s.controller.CurrentRunID() != generation {
		return StartResult{Status: StartError, Message: msgSuperseded, Err: errs.New(errs.ErrorTypeStaleRun, msgSuperseded)}
	}

	if res.Status == harvest.StatusNotReady {
		s.notify(msgNotReady, status.StateError)
		return StartResult{Status: StartError, Message: msgNotReady, Err: errs.New(errs.ErrorTypeNotReady, msgNotReady)}
	}

	count := queue.CountRecords(res.Groups)
	if count == 0 {
		s.notify(msgNoMedia, status.StateError)
		return StartResult{Status: StartEmpty, Message: msgNoMedia, Err: errs.New(errs.ErrorTypeEmptyResult, msgNoMedia)}
	}
	s.notify(fmt.Sprintf("✓ Found %d media items. Preparing download queue…", count), status.StateRunning)

	sessionFolder := queue.SessionFolderName(s.opts.SessionRoot, s.now())
	groups := res.Groups
	if limit > 0 && count > limit {
		groups = queue.Limit(groups, limit)
		s.notify(fmt.Sprintf("Limited to first %d items for testing.", limit), status.StateRunning)
	}

	entries, reversal := queue.Build(groups, sessionFolder)
	if len(entries) == 0 {
		s.notify(msgQueueFailed, status.StateError)
		return StartResult{Status: StartEmpty, Message: msgQueueFailed, Err: errs.New(errs.ErrorTypeEmptyResult, msgQueueFailed)}
	}

	runID, err := s.controller.StartRun(entries, reversal, sessionFolder, debug)
	if errors.Is(err, run.ErrBusy) {
		return StartResult{Status: StartBusy}
	}
	if err != nil {
		s.notify(err.Error(), status.StateError)
		return StartResult{Status: StartError, Message: err.Error(), Err: err}
	}

	s.notify(fmt.Sprintf("Starting download of %d files to %s/", len(entries), sessionFolder), status.StateRunning)

	done := make(chan struct{})
	s.mu.Lock()
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		summary, err := s.orch.Run(ctx, runID)
		if err != nil && !errs.IsType(err, errs.ErrorTypeStaleRun) {
			s.logger.WithError(err).WithField("run_id", runID).Warn("Run ended early")
		}
		s.mu.Lock()
		s.last, s.lastErr = summary, err
		s.mu.Unlock()
	}()

	return StartResult{Status: StartStarted, Total: len(entries), RunID: runID}
}

// Wait blocks until the most recently started run returns, then reports its
// summary. It returns immediately when no run was started.
func (s *Scraper) Wait(ctx context.Context) (models.Summary, error) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done == nil {
		return models.Summary{}, nil
	}

	select {
	case <-done:
	case <-ctx.Done():
		return models.Summary{}, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.lastErr
}

// RequestCurrentState returns the status history and progress
func (s *Scraper) RequestCurrentState() CurrentState {
	snap := s.controller.Snapshot()
	return CurrentState{
		History:   s.history.Events(),
		Progress:  snap.Progress,
		Active:    snap.Active,
		Total:     snap.Progress.Total,
		Completed: snap.Progress.Completed,
	}
}

// ReversalEntries returns the reversal index of the last finalized run
func (s *Scraper) ReversalEntries() []models.ReversalEntry {
	return s.controller.ReversalEntries()
}

// ExecuteReversal unfavorites the reversal entries at indices. Indices that
// do not name an entry are dropped; the index is cleared afterwards.
func (s *Scraper) ExecuteReversal(ctx context.Context, indices []int) (models.ReversalReport, error) {
	if len(indices) == 0 {
		s.notify(msgNoneSelected, status.StateError)
		return models.ReversalReport{}, errs.New(errs.ErrorTypeInvalidRequest, msgNoneSelected)
	}

	byIndex := make(map[int]models.ReversalEntry)
	for _, e := range s.controller.ReversalEntries() {
		byIndex[e.Index] = e
	}

	var positions []int
	for _, idx := range indices {
		if e, ok := byIndex[idx]; ok {
			positions = append(positions, e.GroupID)
		}
	}
	if len(positions) == 0 {
		s.notify(msgNoneValid, status.StateError)
		return models.ReversalReport{}, errs.New(errs.ErrorTypeInvalidRequest, msgNoneValid)
	}

	s.mu.Lock()
	page := s.page
	s.mu.Unlock()
	if page == nil || page.Reverser == nil {
		msg := "No page attached for unfavorite."
		s.notify(msg, status.StateError)
		return models.ReversalReport{}, errs.New(errs.ErrorTypeNotReady, msg)
	}

	s.notify(fmt.Sprintf("Starting unfavorite process for %d items at positions: %s...",
		len(positions), models.FormatPositions(positions)), status.StateRunning)

	report, err := page.Reverser.Remove(ctx, positions)
	if err != nil {
		s.notify(fmt.Sprintf("Error during unfavorite: %v", err), status.StateError)
		return report, fmt.Errorf("unfavorite failed: %w", err)
	}

	for _, line := range report.Logs {
		s.notify(line, status.StateRunning)
	}
	if report.Succeeded > 0 {
		s.notify(fmt.Sprintf("✓ Unfavorited %d items", report.Succeeded), status.StateIdle)
	}
	if report.Failed > 0 {
		s.notify(fmt.Sprintf("⚠️ %d items failed", report.Failed), status.StateError)
	}

	s.controller.ClearReversal()
	s.logger.InfoWithFields("Unfavorite finished", map[string]interface{}{
		"requested": len(positions),
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
	})
	return report, nil
}

// SkipReversal discards the reversal index
func (s *Scraper) SkipReversal() {
	s.controller.ClearReversal()
	s.notify(msgReversalSkip, status.StateIdle)
}
