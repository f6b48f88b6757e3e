package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"grokfav/pkg/config"
	errs "grokfav/pkg/errors"
	"grokfav/pkg/logger"
	"grokfav/pkg/retry"
)

// DefaultUserAgent is sent when the configuration leaves the agent empty
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// Client downloads media assets using the browser session's cookies
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	retry      *retry.Config
	maxBytes   int64
	logger     logger.Logger
	mu         sync.RWMutex
}

// NewClient creates a media client from the download and retry settings
func NewClient(dc config.DownloadConfig, rc config.RetryConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	jar, _ := cookiejar.New(nil)

	agent := dc.UserAgent
	if agent == "" {
		agent = DefaultUserAgent
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: dc.DownloadTimeout,
			Jar:     jar,
		},
		headers: map[string]string{
			"User-Agent":      agent,
			"Accept":          "image/avif,image/webp,image/apng,video/*,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
			"Sec-Fetch-Dest":  "empty",
			"Sec-Fetch-Mode":  "no-cors",
			"Sec-Fetch-Site":  "same-site",
		},
		retry:    retry.FromSettings(rc, log),
		maxBytes: dc.MaxFileSize,
		logger:   log,
	}
}

// SetHeader sets a header sent with every request
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[key] = value
}

// SetCookies seeds the jar with cookies exported from the browser for the
// given origin.
func (c *Client) SetCookies(origin string, cookies []*http.Cookie) error {
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid cookie origin: %w", err)
	}
	c.httpClient.Jar.SetCookies(u, cookies)
	return nil
}

// Fetch downloads the asset at rawURL, retrying transient failures
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	return retry.DoWithResult(ctx, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, rawURL)
	}, c.retry)
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeInvalidRequest, "failed to create request: %v", err)
	}
	c.mu.RLock()
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	c.mu.RUnlock()

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.LogRequest(c.logger, req.Method, rawURL, 0, elapsed)
		return nil, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("network error: %v", err),
		}
	}
	defer resp.Body.Close()
	logger.LogRequest(c.logger, req.Method, rawURL, resp.StatusCode, elapsed)

	if err := checkResponseStatus(resp); err != nil {
		return nil, err
	}

	body := io.Reader(resp.Body)
	if c.maxBytes > 0 {
		body = io.LimitReader(resp.Body, c.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read media data: %v", err),
			Code:    resp.StatusCode,
		}
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return nil, errs.New(errs.ErrorTypeInvalidRequest, "asset exceeds the %d byte limit", c.maxBytes)
	}
	return data, nil
}

// checkResponseStatus maps a non-2xx response onto a typed error
func checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var message string
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		message = "access denied; the session may have expired"
	case http.StatusNotFound, http.StatusGone:
		message = "asset not found"
	case http.StatusTooManyRequests:
		message = "rate limit exceeded"
	default:
		message = fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
	}
	return &errs.Error{
		Type:    errs.FromStatusCode(resp.StatusCode),
		Message: message,
		Code:    resp.StatusCode,
	}
}
