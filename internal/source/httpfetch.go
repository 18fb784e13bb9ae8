package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// RetryingClient wraps an *http.Client with exponential backoff on
// timeout (doubling the per-attempt deadline, bounded retry count) and
// a token-bucket rate limiter shared across calls to the same upstream
// (spec §5 "retried... with exponential backoff", Design Notes on
// bounding concurrent-worker fetch storms).
//
// Non-timeout errors (connection refused, 4xx/5xx responses) are not
// retried: only context.DeadlineExceeded failures from the underlying
// RoundTrip are, per spec §4.6 ("HTTP non-timeout errors fail the row
// immediately").
type RetryingClient struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	baseTimeout time.Duration
	maxRetries  int
}

// NewRetryingClient returns a RetryingClient. maxRetries <= 0 disables
// retry (a single attempt at baseTimeout).
func NewRetryingClient(baseTimeout time.Duration, maxRetries int, ratePerSecond float64) *RetryingClient {
	limit := rate.Limit(ratePerSecond)
	if ratePerSecond <= 0 {
		limit = rate.Inf
	}
	return &RetryingClient{
		httpClient:  &http.Client{},
		limiter:     rate.NewLimiter(limit, 1),
		baseTimeout: baseTimeout,
		maxRetries:  maxRetries,
	}
}

// Get issues a GET against url, retrying on timeout with a doubling
// per-attempt deadline. Returns the response body on a 200 status, nil
// with no error on a 404 (source has nothing for this pid), and an
// error for any other outcome.
func (c *RetryingClient) Get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	timeout := c.baseTimeout
	var lastErr error

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = timeout
	attempts := 1
	if c.maxRetries > 0 {
		attempts += c.maxRetries
	}

	for attempt := 0; attempt < attempts; attempt++ {
		body, status, err := c.attempt(ctx, url, timeout)
		if err == nil {
			switch status {
			case http.StatusOK:
				return body, nil
			case http.StatusNotFound:
				return nil, nil
			default:
				return nil, fmt.Errorf("unexpected status %d fetching %s", status, url)
			}
		}
		if !isTimeout(err) {
			return nil, err
		}
		lastErr = err
		timeout *= 2
		wait := b.NextBackOff()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("exhausted %d attempts fetching %s: %w", attempts, url, lastErr)
}

func (c *RetryingClient) attempt(ctx context.Context, url string, timeout time.Duration) ([]byte, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func isTimeout(err error) bool {
	if err == context.DeadlineExceeded {
		return true
	}
	type timeouter interface{ Timeout() bool }
	if t, ok := err.(timeouter); ok {
		return t.Timeout()
	}
	return false
}
