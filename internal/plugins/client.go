package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	ferrors "github.com/systmms/felix/internal/errors"
	"github.com/systmms/felix/internal/logging"
)

const (
	// DefaultTimeout bounds a single downstream request.
	DefaultTimeout = 30 * time.Second

	defaultRetryBase = 500 * time.Millisecond
	maxRetryDelay    = 10 * time.Second
	maxErrorBody     = 512
)

// Client is the HTTP client shared by the built-in integrations. Only GET
// requests are retried, and only when retries are enabled.
type Client struct {
	httpClient *http.Client
	maxRetries uint64
	retryBase  time.Duration
	logger     *logging.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRetries retries idempotent requests up to n times with Fibonacci
// backoff starting at base.
func WithRetries(n uint64, base time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
		if base > 0 {
			c.retryBase = base
		}
	}
}

// WithClientLogger sets the logger used for request tracing.
func WithClientLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client with DefaultTimeout and no retries.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		retryBase:  defaultRetryBase,
		logger:     logging.New(false, false),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// request describes one downstream call.
type request struct {
	plugin string
	op     string
	method string
	url    string
	header http.Header
	body   []byte
}

// response is a fully read downstream response.
type response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the body as JSON.
func (r *response) Decode(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// do sends req and reads the whole response. Non-2xx statuses are returned
// as responses, not errors; transport failures are PluginErrors.
func (c *Client) do(ctx context.Context, req request) (*response, error) {
	if req.method != http.MethodGet || c.maxRetries == 0 {
		return c.once(ctx, req)
	}

	b := retry.NewFibonacci(c.retryBase)
	b = retry.WithMaxRetries(c.maxRetries, b)
	b = retry.WithCappedDuration(maxRetryDelay, b)

	var resp *response
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		r, err := c.once(ctx, req)
		if err != nil {
			if ferrors.IsRetryable(err) {
				c.logger.Debug("%s %s: retrying after %v", req.plugin, req.op, err)
				return retry.RetryableError(err)
			}
			return err
		}
		if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500 {
			c.logger.Debug("%s %s: retrying after status %d", req.plugin, req.op, r.StatusCode)
			resp = r
			return retry.RetryableError(statusError(req, r))
		}
		resp = r
		return nil
	})
	if err != nil {
		var pe ferrors.PluginError
		if resp != nil && asPluginStatus(err, &pe) {
			return resp, nil
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) once(ctx context.Context, req request) (*response, error) {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, ferrors.PluginError{Plugin: req.plugin, Op: req.op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	c.logger.Debug("%s %s: %s %s", req.plugin, req.op, req.method, redactURL(httpReq))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, ferrors.PluginError{Plugin: req.plugin, Op: req.op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ferrors.PluginError{Plugin: req.plugin, Op: req.op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	return &response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// getJSON performs a GET and decodes a 2xx JSON body into out.
func (c *Client) getJSON(ctx context.Context, req request, out interface{}) (*response, error) {
	req.method = http.MethodGet
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return resp, statusError(req, resp)
	}
	if out != nil {
		if err := resp.Decode(out); err != nil {
			return resp, ferrors.PluginError{Plugin: req.plugin, Op: req.op, Err: fmt.Errorf("failed to decode response: %w", err)}
		}
	}
	return resp, nil
}

// sendJSON encodes payload and expects a 2xx status.
func (c *Client) sendJSON(ctx context.Context, req request, payload interface{}) (*response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, ferrors.PluginError{Plugin: req.plugin, Op: req.op, Err: fmt.Errorf("failed to encode request: %w", err)}
	}
	req.body = data
	if req.header == nil {
		req.header = http.Header{}
	}
	req.header.Set("Content-Type", "application/json")

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return resp, statusError(req, resp)
	}
	return resp, nil
}

// statusError builds a PluginError from a non-2xx response, using the
// service's own message when the body carries one.
func statusError(req request, resp *response) error {
	return ferrors.PluginError{
		Plugin:     req.plugin,
		Op:         req.op,
		StatusCode: resp.StatusCode,
		Message:    serviceMessage(resp.Body),
	}
}

func serviceMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return ""
}

func asPluginStatus(err error, pe *ferrors.PluginError) bool {
	return errors.As(err, pe) && pe.StatusCode != 0
}

func redactURL(req *http.Request) string {
	u := *req.URL
	if u.User != nil {
		u.User = nil
	}
	s := u.String()
	return strings.TrimSuffix(s, "?")
}
