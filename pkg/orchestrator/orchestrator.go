// Package orchestrator executes a run's download queue one item at a time,
// then drains failed items through a bounded retry protocol and finalizes
// the run.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"grokfav/pkg/config"
	errs "grokfav/pkg/errors"
	"grokfav/pkg/logger"
	"grokfav/pkg/models"
	"grokfav/pkg/retry"
	"grokfav/pkg/run"
	"grokfav/pkg/status"
)

const labelWidth = 64

// Submitter hands one request to the download facility. Failures are
// reported in the outcome, never returned.
type Submitter interface {
	Submit(ctx context.Context, req models.DownloadRequest) models.Outcome
}

// SubmitterFunc adapts a function to Submitter
type SubmitterFunc func(ctx context.Context, req models.DownloadRequest) models.Outcome

// Submit implements Submitter
func (f SubmitterFunc) Submit(ctx context.Context, req models.DownloadRequest) models.Outcome {
	return f(ctx, req)
}

// Options tunes pacing and the retry protocol
type Options struct {
	PaceDelay        time.Duration
	RetryDelay       time.Duration
	MaxRetries       int
	MaxDrainCycles   int
	ProgressInterval int
}

// DefaultOptions returns the standard pacing: 350ms between items, 1s before
// each retry, at most 3 retries per URL.
func DefaultOptions() Options {
	return Options{
		PaceDelay:        350 * time.Millisecond,
		RetryDelay:       time.Second,
		MaxRetries:       3,
		MaxDrainCycles:   10,
		ProgressInterval: 10,
	}
}

// OptionsFromConfig reads the queue settings of the download section
func OptionsFromConfig(dc config.DownloadConfig) Options {
	return Options{
		PaceDelay:        dc.PaceDelay,
		RetryDelay:       dc.RetryDelay,
		MaxRetries:       dc.MaxRetries,
		MaxDrainCycles:   dc.MaxDrainCycles,
		ProgressInterval: dc.ProgressInterval,
	}
}

// Orchestrator drives runs installed in a run.Controller
type Orchestrator struct {
	controller *run.Controller
	submitter  Submitter
	sink       status.Sink
	logger     logger.Logger
	opts       Options
	retryWait  retry.BackoffStrategy
	now        func() time.Time

	// Sleep performs every pacing and retry wait
	Sleep func(ctx context.Context, d time.Duration) error

	onComplete func(models.Summary)
}

// New creates an orchestrator
func New(controller *run.Controller, submitter Submitter, sink status.Sink, opts Options, log logger.Logger) *Orchestrator {
	if sink == nil {
		sink = status.Discard
	}
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.ProgressInterval < 1 {
		opts.ProgressInterval = 1
	}

	return &Orchestrator{
		controller: controller,
		submitter:  submitter,
		sink:       sink,
		logger:     log.WithField("component", "orchestrator"),
		opts:       opts,
		retryWait:  &retry.ConstantBackoff{Delay: opts.RetryDelay},
		now:        time.Now,
		Sleep:      retry.Wait,
	}
}

// OnComplete registers a hook invoked with the summary of every run that
// reaches finalization.
func (o *Orchestrator) OnComplete(fn func(models.Summary)) {
	o.onComplete = fn
}

// Run executes runID to completion and returns its summary. A superseded
// run returns an error of type stale_run. On ctx cancellation the run is
// aborted with an error event and the partial summary is returned along
// with ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, runID uint64) (models.Summary, error) {
	r := &execution{o: o, runID: runID}

	if err := r.primaryPass(ctx); err != nil {
		return r.halt(err)
	}
	if err := r.drain(ctx); err != nil {
		return r.halt(err)
	}
	return r.finalize()
}

// execution holds the per-run bookkeeping that lives outside the controller
type execution struct {
	o        *Orchestrator
	runID    uint64
	progress models.Progress
	debug    bool
}

func (r *execution) stale() error {
	r.o.logger.DebugWithFields("Discarding superseded run", map[string]interface{}{"run_id": r.runID})
	return errs.New(errs.ErrorTypeStaleRun, "run %d was superseded", r.runID)
}

func (r *execution) emit(text string, state status.State) {
	p := r.progress
	r.o.publish(status.Event{Text: text, State: state, Timestamp: r.o.now(), Progress: &p})
}

func (r *execution) primaryPass(ctx context.Context) error {
	o := r.o
	for {
		var (
			item          models.QueueEntry
			cursor, total int
		)
		if !o.controller.Update(r.runID, func(s *run.State) {
			r.progress, r.debug = s.Progress, s.Debug
			cursor, total = s.Cursor, len(s.Queue)
			if cursor < total {
				item = s.Queue[cursor]
			}
		}) {
			return r.stale()
		}
		if cursor >= total {
			return nil
		}

		if r.debug || cursor%o.opts.ProgressInterval == 0 {
			r.emit(fmt.Sprintf("Downloading %d of %d…", cursor+1, total), status.StateRunning)
		}

		outcome, thrown := o.submit(ctx, item)
		applied := o.controller.Update(r.runID, func(s *run.State) {
			s.RecordResult(item.URL, outcome)
			r.progress = s.Advance()
			if !outcome.Success {
				s.RetryQueue = append(s.RetryQueue, item)
			}
			s.Cursor++
		})
		if !applied {
			return r.stale()
		}
		logger.LogSubmission(o.logger, r.runID, item.URL, item.TargetPath, outcome.Success, outcome.Message)

		name := status.Truncate(item.DisplayName(), labelWidth)
		switch {
		case outcome.Success && r.debug:
			r.emit(fmt.Sprintf("✔ Download queued for %s", name), status.StateRunning)
		case thrown:
			r.emit(fmt.Sprintf("✖ Error: %s - %s (will retry)", name, outcome.Message), status.StateRunning)
		case !outcome.Success && r.debug:
			r.emit(fmt.Sprintf("✖ Failed: %s - %s (will retry)", name, messageOrDefault(outcome.Message)), status.StateRunning)
		case !outcome.Success:
			r.emit(fmt.Sprintf("✖ Failed: %s (will retry)", name), status.StateRunning)
		}

		if err := o.Sleep(ctx, o.opts.PaceDelay); err != nil {
			return err
		}
	}
}

func (r *execution) drain(ctx context.Context) error {
	o := r.o
	limit := o.opts.MaxRetries

	for cycle := 1; ; cycle++ {
		var batch []models.QueueEntry
		if !o.controller.Update(r.runID, func(s *run.State) {
			batch, s.RetryQueue = s.RetryQueue, nil
		}) {
			return r.stale()
		}
		if len(batch) == 0 {
			return nil
		}

		if cycle == 1 {
			r.emit(fmt.Sprintf("Retrying %d failed downloads...", len(batch)), status.StateRunning)
		}
		if o.opts.MaxDrainCycles > 0 && cycle > o.opts.MaxDrainCycles {
			return r.abandon(batch)
		}

		for _, item := range batch {
			name := status.Truncate(item.DisplayName(), labelWidth)

			var attempts int
			if !o.controller.Update(r.runID, func(s *run.State) {
				attempts = s.RetryAttempts[item.URL]
				if attempts >= limit {
					s.PermanentFailures = append(s.PermanentFailures, item.URL)
					return
				}
				s.RetryAttempts[item.URL] = attempts + 1
			}) {
				return r.stale()
			}
			if attempts >= limit {
				r.emit(fmt.Sprintf("✖ Permanently failed: %s (max retries exceeded)", name), status.StateRunning)
				continue
			}

			attempt := attempts + 1
			r.emit(fmt.Sprintf("Retry attempt %d/%d for %s", attempt, limit, name), status.StateRunning)
			if err := o.Sleep(ctx, o.retryWait.NextDelay(attempt)); err != nil {
				return err
			}
			if o.controller.CancelIfStale(r.runID) {
				return r.stale()
			}

			outcome, _ := o.submit(ctx, item)
			exhausted := false
			if !o.controller.Update(r.runID, func(s *run.State) {
				switch {
				case outcome.Success:
					s.OverwriteFailure(item.URL, outcome)
				case attempt < limit:
					s.RetryQueue = append(s.RetryQueue, item)
				default:
					exhausted = true
					s.PermanentFailures = append(s.PermanentFailures, item.URL)
				}
			}) {
				return r.stale()
			}
			logger.LogSubmission(o.logger, r.runID, item.URL, item.TargetPath, outcome.Success, outcome.Message)

			switch {
			case outcome.Success:
				r.emit(fmt.Sprintf("✔ Retry successful for %s", name), status.StateRunning)
			case exhausted:
				r.emit(fmt.Sprintf("✖ Permanently failed: %s (max retries exceeded)", name), status.StateRunning)
			}
		}
	}
}

// abandon marks everything still queued for retry as permanently failed once
// the drain-cycle ceiling is reached.
func (r *execution) abandon(batch []models.QueueEntry) error {
	if !r.o.controller.Update(r.runID, func(s *run.State) {
		for _, item := range batch {
			s.PermanentFailures = append(s.PermanentFailures, item.URL)
		}
	}) {
		return r.stale()
	}
	r.o.logger.WarnWithFields("Drain cycle limit reached", map[string]interface{}{
		"run_id":    r.runID,
		"abandoned": len(batch),
	})
	for _, item := range batch {
		r.emit(fmt.Sprintf("✖ Permanently failed: %s (retry cycle limit reached)",
			status.Truncate(item.DisplayName(), labelWidth)), status.StateRunning)
	}
	return nil
}

// halt ends the run after a pass stopped with err. Stale runs are left
// alone; anything else aborts the live run so it never stays active.
func (r *execution) halt(err error) (models.Summary, error) {
	if errs.IsType(err, errs.ErrorTypeStaleRun) {
		return models.Summary{}, err
	}

	summary, ok := r.o.controller.Abort(r.runID)
	if !ok {
		return models.Summary{}, r.stale()
	}

	r.o.logger.WithError(err).WarnWithFields("Run aborted", map[string]interface{}{
		"run_id":    r.runID,
		"successes": summary.Successes,
		"failures":  summary.Failures,
	})
	r.emit(fmt.Sprintf("Downloads cancelled. Success: %d, Failed: %d.", summary.Successes, summary.Failures), status.StateError)
	return summary, err
}

func (r *execution) finalize() (models.Summary, error) {
	o := r.o
	summary, ok := o.controller.Finalize(r.runID)
	if !ok {
		return models.Summary{}, r.stale()
	}

	r.progress = models.Progress{Total: r.progress.Total, Completed: r.progress.Total}
	if summary.Failures > 0 {
		r.emit(fmt.Sprintf("✓ Downloads complete. Success: %d, Failed: %d.", summary.Successes, summary.Failures), status.StateIdle)
	} else {
		r.emit(fmt.Sprintf("✓ All downloads complete! Success: %d.", summary.Successes), status.StateIdle)
	}
	logger.LogRunSummary(o.logger, r.runID, summary.Successes, summary.Failures, summary.SessionFolder)

	if o.onComplete != nil {
		o.onComplete(summary)
	}
	return summary, nil
}

// submit calls the facility and turns a panic into a failed outcome. thrown
// reports that conversion.
func (o *Orchestrator) submit(ctx context.Context, item models.QueueEntry) (outcome models.Outcome, thrown bool) {
	defer func() {
		if rec := recover(); rec != nil {
			outcome = models.Outcome{Success: false, Message: fmt.Sprint(rec)}
			thrown = true
		}
	}()
	return o.submitter.Submit(ctx, models.DownloadRequest{URL: item.URL, TargetPath: item.TargetPath}), false
}

// publish delivers an event, ignoring any failure of the sink
func (o *Orchestrator) publish(e status.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			o.logger.WarnWithFields("Status sink failed", map[string]interface{}{"panic": fmt.Sprint(rec)})
		}
	}()
	o.sink.Publish(e)
}

func messageOrDefault(msg string) string {
	if msg == "" {
		return "unknown error"
	}
	return msg
}
