package downloader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	errs "grokfav/pkg/errors"
	"grokfav/pkg/logger"
	"grokfav/pkg/models"
	"grokfav/pkg/ratelimit"
)

// TransferResult is the asynchronous outcome of one accepted request
type TransferResult struct {
	ID       int64
	Request  models.DownloadRequest
	Success  bool
	Skipped  bool
	Error    error
	Duration time.Duration
	Size     int64
}

// MediaFetcher downloads the bytes behind a media URL
type MediaFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// MediaStorage persists downloaded media at relative targets
type MediaStorage interface {
	Exists(rel string) bool
	Save(r io.Reader, rel string, maxBytes int64) (int64, error)
}

// Options tunes a WorkerPool
type Options struct {
	Workers           int
	QueueSize         int
	OverwriteExisting bool
	MaxFileSize       int64
}

// Stats is a point-in-time view of the pool counters
type Stats struct {
	Accepted  int64
	Completed int64
	Skipped   int64
	Failed    int64
	Bytes     int64
}

type job struct {
	id  int64
	req models.DownloadRequest
}

// WorkerPool accepts download requests and transfers them in the background.
// Acceptance is synchronous; transfer outcomes arrive on Results.
type WorkerPool struct {
	opts        Options
	jobQueue    chan job
	resultQueue chan TransferResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	fetcher     MediaFetcher
	storage     MediaStorage
	rateLimiter ratelimit.Limiter
	logger      logger.Logger

	mu      sync.RWMutex
	running bool
	nextID  int64

	accepted, completed, skipped, failed, bytes atomic.Int64
}

// NewWorkerPool creates a new download worker pool
func NewWorkerPool(
	opts Options,
	fetcher MediaFetcher,
	storage MediaStorage,
	rateLimiter ratelimit.Limiter,
	log logger.Logger,
) *WorkerPool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < opts.Workers*2 {
		opts.QueueSize = opts.Workers * 2
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.Unlimited{}
	}
	if log == nil {
		log = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		opts:        opts,
		jobQueue:    make(chan job, opts.QueueSize),
		resultQueue: make(chan TransferResult, opts.QueueSize),
		ctx:         ctx,
		cancel:      cancel,
		fetcher:     fetcher,
		storage:     storage,
		rateLimiter: rateLimiter,
		logger:      log.WithField("component", "downloader"),
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.running {
		return
	}
	wp.running = true

	wp.logger.InfoWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.opts.Workers,
		"queue_size":  wp.opts.QueueSize,
	})
	for i := 0; i < wp.opts.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop refuses new requests, lets the workers finish everything already
// accepted and closes the result channel.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if !wp.running {
		wp.mu.Unlock()
		return
	}
	wp.running = false
	close(wp.jobQueue)
	wp.mu.Unlock()

	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()

	wp.logger.InfoWithFields("Worker pool stopped", map[string]interface{}{
		"completed": wp.completed.Load(),
		"failed":    wp.failed.Load(),
	})
}

// Abort cancels in-flight transfers before stopping
func (wp *WorkerPool) Abort() {
	wp.cancel()
	wp.Stop()
}

// Enqueue validates req and queues it, returning the job id. An error means
// the request was not accepted.
func (wp *WorkerPool) Enqueue(ctx context.Context, req models.DownloadRequest) (int64, error) {
	if err := Validate(req); err != nil {
		return 0, err
	}

	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if !wp.running {
		return 0, errs.New(errs.ErrorTypeSubmission, "download facility is not running")
	}

	id := atomic.AddInt64(&wp.nextID, 1)
	select {
	case wp.jobQueue <- job{id: id, req: req}:
		wp.accepted.Add(1)
		wp.logger.DebugWithFields("Job submitted to queue", map[string]interface{}{
			"id":     id,
			"target": req.TargetPath,
		})
		return id, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-wp.ctx.Done():
		return 0, errs.New(errs.ErrorTypeSubmission, "download facility is shutting down")
	}
}

// Submit adapts Enqueue to the outcome shape the orchestrator consumes
func (wp *WorkerPool) Submit(ctx context.Context, req models.DownloadRequest) models.Outcome {
	id, err := wp.Enqueue(ctx, req)
	if err != nil {
		return models.Outcome{Success: false, Message: err.Error()}
	}
	return models.Outcome{Success: true, Message: fmt.Sprintf("Download started (ID %d).", id)}
}

// Validate checks that a request names an absolute http(s) URL and a clean
// relative target.
func Validate(req models.DownloadRequest) error {
	u, err := url.Parse(req.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errs.New(errs.ErrorTypeInvalidRequest, "unsupported media URL %q", req.URL)
	}

	target := req.TargetPath
	if target == "" || strings.HasPrefix(target, "/") || strings.Contains(target, "\\") {
		return errs.New(errs.ErrorTypeInvalidRequest, "invalid target path %q", target)
	}
	if clean := path.Clean(target); clean != target || clean == ".." || strings.HasPrefix(clean, "../") {
		return errs.New(errs.ErrorTypeInvalidRequest, "invalid target path %q", target)
	}
	return nil
}

// Results returns the channel of transfer outcomes. It is closed by Stop and
// must be drained by the caller.
func (wp *WorkerPool) Results() <-chan TransferResult {
	return wp.resultQueue
}

// Stats returns the current pool counters
func (wp *WorkerPool) Stats() Stats {
	return Stats{
		Accepted:  wp.accepted.Load(),
		Completed: wp.completed.Load(),
		Skipped:   wp.skipped.Load(),
		Failed:    wp.failed.Load(),
		Bytes:     wp.bytes.Load(),
	}
}

// GetQueueSize returns the number of accepted jobs not yet picked up
func (wp *WorkerPool) GetQueueSize() int {
	return len(wp.jobQueue)
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for j := range wp.jobQueue {
		result := wp.processJob(j, id)
		wp.resultQueue <- result
	}

	wp.logger.DebugWithFields("Worker stopping - job queue closed", map[string]interface{}{
		"worker_id": id,
	})
}

// processJob handles a single download job
func (wp *WorkerPool) processJob(j job, workerID int) TransferResult {
	start := time.Now()
	result := TransferResult{ID: j.id, Request: j.req}
	fields := map[string]interface{}{
		"worker_id": workerID,
		"id":        j.id,
		"target":    j.req.TargetPath,
	}

	finish := func(err error) TransferResult {
		result.Duration = time.Since(start)
		if err != nil {
			result.Error = err
			wp.failed.Add(1)
			wp.logger.WithError(err).WarnWithFields("Transfer failed", fields)
			return result
		}
		result.Success = true
		wp.completed.Add(1)
		wp.bytes.Add(result.Size)
		return result
	}

	if !wp.opts.OverwriteExisting && wp.storage.Exists(j.req.TargetPath) {
		wp.logger.DebugWithFields("Target already exists", fields)
		result.Skipped = true
		wp.skipped.Add(1)
		return finish(nil)
	}

	if err := wp.rateLimiter.Wait(wp.ctx); err != nil {
		return finish(fmt.Errorf("transfer cancelled: %w", err))
	}

	data, err := wp.fetcher.Fetch(wp.ctx, j.req.URL)
	if err != nil {
		return finish(fmt.Errorf("download failed: %w", err))
	}

	size, err := wp.storage.Save(bytes.NewReader(data), j.req.TargetPath, wp.opts.MaxFileSize)
	if err != nil {
		return finish(fmt.Errorf("save failed: %w", err))
	}
	result.Size = size

	fields["size"] = size
	wp.logger.DebugWithFields("Transfer completed", fields)
	return finish(nil)
}
