// Package httpapi is the shared JSON-over-HTTP plumbing of the REST integrations.
package httpapi

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

	"github.com/bissquit/incident-bot/internal/pkg/metrics"
	"github.com/bissquit/incident-bot/internal/version"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

// Client calls a JSON REST API.
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
	authorize  func(*http.Request)
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithBasicAuth authenticates every request with user and token.
func WithBasicAuth(user, token string) Option {
	return func(c *Client) {
		c.authorize = func(r *http.Request) { r.SetBasicAuth(user, token) }
	}
}

// WithHeader sets a header on every request, e.g. an API key.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		prev := c.authorize
		c.authorize = func(r *http.Request) {
			if prev != nil {
				prev(r)
			}
			r.Header.Set(key, value)
		}
	}
}

// NewClient creates a client for the API at baseURL. name prefixes error messages.
func NewClient(name, baseURL string, opts ...Option) *Client {
	c := &Client{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends in as the JSON body (when non-nil) and decodes the response into
// out (when non-nil). path may be absolute or relative to the base URL.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	url := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		url = c.baseURL + path
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authorize != nil {
		c.authorize(req)
	}

	start := time.Now()
	err = c.send(req, out)
	metrics.ExternalRequestDuration.WithLabelValues(c.name, outcome(err)).Observe(time.Since(start).Seconds())
	return err
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RetryableError{Service: c.name, Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	return c.handleResponse(resp, out)
}

// outcome labels a call for metrics.
func outcome(err error) string {
	var retryable *RetryableError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &retryable):
		return "retryable_error"
	default:
		return "error"
	}
}

func (c *Client) handleResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: decode response: %w", c.name, err)
		}
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	body := strings.TrimSpace(string(raw))

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &PermanentError{Service: c.name, Code: resp.StatusCode, Message: "invalid credentials or insufficient permissions"}
	case resp.StatusCode == http.StatusNotFound:
		return &PermanentError{Service: c.name, Code: resp.StatusCode, Message: "not found"}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RetryableError{Service: c.name, Code: resp.StatusCode, Message: "rate limited"}
	case resp.StatusCode >= 500:
		return &RetryableError{Service: c.name, Code: resp.StatusCode, Message: "server error: " + body}
	default:
		return &PermanentError{Service: c.name, Code: resp.StatusCode, Message: "bad request: " + body}
	}
}
