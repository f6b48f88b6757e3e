package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"grokfav/pkg/config"
	errs "grokfav/pkg/errors"
	"grokfav/pkg/logger"
)

func testClient(t *testing.T, maxBytes int64) (*Client, *logger.TestLogger) {
	t.Helper()
	log := logger.NewTestLogger()
	dc := config.DownloadConfig{DownloadTimeout: 5 * time.Second, MaxFileSize: maxBytes}
	rc := config.RetryConfig{
		Enabled:     true,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  1,
	}
	return NewClient(dc, rc, log), log
}

func TestFetchSuccessSendsHeadersAndCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "https://grok.com/", r.Header.Get("Referer"))
		c, err := r.Cookie("sso")
		if assert.NoError(t, err) {
			assert.Equal(t, "token", c.Value)
		}
		w.Write([]byte("media"))
	}))
	defer srv.Close()

	client, _ := testClient(t, 0)
	client.SetHeader("Referer", "https://grok.com/")
	require.NoError(t, client.SetCookies(srv.URL, []*http.Cookie{{Name: "sso", Value: "token"}}))

	data, err := client.Fetch(context.Background(), srv.URL+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, "media", string(data))
}

func TestFetchStatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantType  errs.ErrorType
		wantCalls int32
	}{
		{"forbidden", http.StatusForbidden, errs.ErrorTypeAuth, 1},
		{"not found", http.StatusNotFound, errs.ErrorTypeNotFound, 1},
		{"bad request", http.StatusBadRequest, errs.ErrorTypeInvalidRequest, 1},
		{"rate limited", http.StatusTooManyRequests, errs.ErrorTypeRateLimit, 3},
		{"server error", http.StatusBadGateway, errs.ErrorTypeServerError, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			client, _ := testClient(t, 0)
			_, err := client.Fetch(context.Background(), srv.URL)
			require.Error(t, err)
			assert.Equal(t, tt.wantType, errs.TypeOf(err))
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestFetchRecoversAfterTransientFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client, log := testClient(t, 0)
	data, err := client.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.True(t, log.HasMessage("HTTP request server error"))
}

func TestFetchSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	client, _ := testClient(t, 4)
	_, err := client.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeInvalidRequest))
}

func TestFetchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("late"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client, _ := testClient(t, 0)
	_, err := client.Fetch(ctx, srv.URL)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchInvalidURL(t *testing.T) {
	client, _ := testClient(t, 0)
	_, err := client.Fetch(context.Background(), "http://[::1")
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeInvalidRequest))
}
