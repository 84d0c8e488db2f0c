// Package transport performs authenticated HTTP GETs against the search API
// with one bounded retry policy.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/search-harvester/internal/metrics"
)

const (
	defaultUserAgent = "search-harvester/1.0"
	maxBodyBytes     = 32 << 20
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Error is a request that could not get a usable response after every retry.
type Error struct {
	URL        string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("GET %s: status %d after %d attempts", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("GET %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// errServerStatus marks gateway-style statuses worth retrying.
var errServerStatus = errors.New("server unavailable")

// Config tunes the client.
type Config struct {
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	UserAgent  string
}

// Client issues GET requests.
type Client struct {
	http      *http.Client
	retry     RetryPolicy
	userAgent string
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *zap.Logger
}

// New builds a Client. A nil httpClient gets one with cfg.Timeout.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &Client{
		http:      httpClient,
		retry:     NewExponentialRetryPolicy(cfg.MaxRetries, cfg.BaseDelay, cfg.MaxDelay),
		userAgent: ua,
		sleep:     sleepWithContext,
		logger:    logger,
	}
}

// Get fetches url with the token. Any HTTP status other than 502, 503 and 504
// is returned as a Response for the caller to interpret; network errors and
// those statuses are retried, then surface as *Error.
func (c *Client) Get(ctx context.Context, url, token string) (*Response, error) {
	var (
		lastErr    error
		lastStatus int
	)
	for attempt := 0; ; attempt++ {
		resp, err := c.do(ctx, url, token)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		lastStatus = 0
		if errors.Is(err, errServerStatus) && resp != nil {
			lastStatus = resp.StatusCode
		}
		if !c.retry.ShouldRetry(err, attempt) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("GET %s: %w", url, ctxErr)
			}
			metrics.ObserveTransportFailure("exhausted")
			return nil, &Error{URL: url, Attempts: attempt + 1, StatusCode: lastStatus, Err: lastErr}
		}
		metrics.ObserveTransportFailure("retried")
		delay := c.retry.Backoff(attempt)
		c.logger.Warn("request failed; retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("GET %s: %w", url, err)
		}
	}
}

func (c *Client) do(ctx context.Context, url, token string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", c.userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close() //nolint:errcheck // body fully read below

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: body}
	switch httpResp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return resp, fmt.Errorf("status %d: %w", httpResp.StatusCode, errServerStatus)
	}
	return resp, nil
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff sleep: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
