package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"
)

const defaultHTTPTimeout = 10 * time.Second

// RetryConfig holds retry configuration for HTTP sinks.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (default: 3).
	MaxAttempts uint64

	// InitialWait is the first backoff delay (default: 1s).
	InitialWait time.Duration
}

func (c *RetryConfig) withDefaults() RetryConfig {
	out := RetryConfig{MaxAttempts: 3, InitialWait: time.Second}
	if c != nil {
		if c.MaxAttempts > 0 {
			out.MaxAttempts = c.MaxAttempts
		}
		if c.InitialWait > 0 {
			out.InitialWait = c.InitialWait
		}
	}
	return out
}

// post sends body with exponential backoff. 5xx, 429 and transport errors
// are retried; other non-2xx statuses fail immediately.
func post(ctx context.Context, client *http.Client, method, target string, headers map[string]string, body []byte, rc RetryConfig) error {
	b := retry.NewExponential(rc.InitialWait)
	b = retry.WithMaxRetries(rc.MaxAttempts-1, b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("server returned status %d", resp.StatusCode))
		default:
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
	})
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid URL: %s", raw)
	}
	return nil
}
