package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "grokfav/pkg/errors"
	"grokfav/pkg/logger"
	"grokfav/pkg/models"
)

type mockFetcher struct {
	delay   time.Duration
	failFor map[string]error
	calls   int32
}

func (m *mockFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := m.failFor[rawURL]; err != nil {
		return nil, err
	}
	return []byte("media:" + rawURL), nil
}

type mockStorage struct {
	mu       sync.Mutex
	saved    map[string]string
	existing map[string]bool
	saveErr  error
}

func newMockStorage() *mockStorage {
	return &mockStorage{saved: map[string]string{}, existing: map[string]bool{}}
}

func (m *mockStorage) Exists(rel string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.existing[rel]
}

func (m *mockStorage) Save(r io.Reader, rel string, maxBytes int64) (int64, error) {
	if m.saveErr != nil {
		return 0, m.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[rel] = string(data)
	return int64(len(data)), nil
}

func collect(wp *WorkerPool) []TransferResult {
	var results []TransferResult
	for r := range wp.Results() {
		results = append(results, r)
	}
	return results
}

func request(i int) models.DownloadRequest {
	return models.DownloadRequest{
		URL:        fmt.Sprintf("https://assets.grok.com/users/u/%d/content.png", i),
		TargetPath: fmt.Sprintf("grok-favorites/2024-05-01_10-00-00/%d-image.png", i),
	}
}

func TestWorkerPoolTransfersAcceptedRequests(t *testing.T) {
	fetcher := &mockFetcher{delay: 5 * time.Millisecond}
	storage := newMockStorage()
	wp := NewWorkerPool(Options{Workers: 3, QueueSize: 16}, fetcher, storage, nil, logger.NewNopLogger())
	wp.Start()

	var ids []int64
	for i := 1; i <= 10; i++ {
		id, err := wp.Enqueue(context.Background(), request(i))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	wp.Stop()
	results := collect(wp)

	assert.Len(t, results, 10)
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}
	for _, r := range results {
		assert.True(t, r.Success)
		assert.NoError(t, r.Error)
	}
	assert.Len(t, storage.saved, 10)
	assert.Equal(t, "media:"+request(3).URL, storage.saved[request(3).TargetPath])

	stats := wp.Stats()
	assert.Equal(t, int64(10), stats.Accepted)
	assert.Equal(t, int64(10), stats.Completed)
	assert.Zero(t, stats.Failed)
}

func TestWorkerPoolFailuresAreReportedAsync(t *testing.T) {
	bad := request(2)
	fetcher := &mockFetcher{failFor: map[string]error{
		bad.URL: errs.New(errs.ErrorTypeNotFound, "asset not found"),
	}}
	wp := NewWorkerPool(Options{Workers: 2}, fetcher, newMockStorage(), nil, logger.NewNopLogger())
	wp.Start()

	for i := 1; i <= 3; i++ {
		outcome := wp.Submit(context.Background(), request(i))
		assert.True(t, outcome.Success, "acceptance is independent of the transfer")
		assert.Regexp(t, `^Download started \(ID \d+\)\.$`, outcome.Message)
	}
	wp.Stop()

	var failed []TransferResult
	for _, r := range collect(wp) {
		if !r.Success {
			failed = append(failed, r)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, bad.URL, failed[0].Request.URL)
	assert.True(t, errs.IsType(failed[0].Error, errs.ErrorTypeNotFound))
}

func TestWorkerPoolSkipsExistingTargets(t *testing.T) {
	fetcher := &mockFetcher{}
	storage := newMockStorage()
	storage.existing[request(1).TargetPath] = true

	wp := NewWorkerPool(Options{Workers: 1}, fetcher, storage, nil, logger.NewNopLogger())
	wp.Start()
	_, err := wp.Enqueue(context.Background(), request(1))
	require.NoError(t, err)
	wp.Stop()

	results := collect(wp)
	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
	assert.Zero(t, atomic.LoadInt32(&fetcher.calls))
}

func TestWorkerPoolSaveError(t *testing.T) {
	storage := newMockStorage()
	storage.saveErr = errors.New("disk full")

	wp := NewWorkerPool(Options{Workers: 1}, &mockFetcher{}, storage, nil, logger.NewNopLogger())
	wp.Start()
	_, err := wp.Enqueue(context.Background(), request(1))
	require.NoError(t, err)
	wp.Stop()

	results := collect(wp)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.ErrorContains(t, results[0].Error, "save failed: disk full")
}

func TestEnqueueRejections(t *testing.T) {
	wp := NewWorkerPool(Options{Workers: 1}, &mockFetcher{}, newMockStorage(), nil, logger.NewNopLogger())

	_, err := wp.Enqueue(context.Background(), request(1))
	assert.True(t, errs.IsType(err, errs.ErrorTypeSubmission), "pool not started")

	wp.Start()
	defer func() {
		wp.Stop()
		collect(wp)
	}()

	outcome := wp.Submit(context.Background(), models.DownloadRequest{URL: "blob:https://grok.com/x", TargetPath: "a.png"})
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Message, "unsupported media URL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     models.DownloadRequest
		wantErr bool
	}{
		{"valid", models.DownloadRequest{URL: "https://a.b/c.png", TargetPath: "grok-favorites/s/1-image.png"}, false},
		{"http allowed", models.DownloadRequest{URL: "http://a.b/c.png", TargetPath: "x.png"}, false},
		{"relative url", models.DownloadRequest{URL: "/c.png", TargetPath: "x.png"}, true},
		{"ftp", models.DownloadRequest{URL: "ftp://a.b/c.png", TargetPath: "x.png"}, true},
		{"empty target", models.DownloadRequest{URL: "https://a.b/c.png"}, true},
		{"absolute target", models.DownloadRequest{URL: "https://a.b/c.png", TargetPath: "/tmp/x.png"}, true},
		{"escaping target", models.DownloadRequest{URL: "https://a.b/c.png", TargetPath: "../x.png"}, true},
		{"unclean target", models.DownloadRequest{URL: "https://a.b/c.png", TargetPath: "a//x.png"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, Validate(tt.req) != nil)
		})
	}
}

func TestAbortCancelsInFlight(t *testing.T) {
	fetcher := &mockFetcher{delay: time.Minute}
	wp := NewWorkerPool(Options{Workers: 1}, fetcher, newMockStorage(), nil, logger.NewNopLogger())
	wp.Start()
	_, err := wp.Enqueue(context.Background(), request(1))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		wp.Abort()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("abort did not return")
	}
	results := collect(wp)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
}
