// Package api is the HTTP client for the run control plane: creating runs and
// recording winner selections. Stream consumption lives in the transport
// package; this package only covers the request/response endpoints.
package api

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

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	defaultRequestTimeout   = 30 * time.Second
	defaultMaxRetryInterval = 5 * time.Second
	maxErrorBodyBytes       = 4 * 1024
)

// APIError is a non-2xx response from the control plane.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the run control plane.
type Client struct {
	baseURL    string
	httpClient *http.Client
	header     http.Header
	logger     *zap.Logger
	maxRetries uint64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithHeader adds headers to every request.
func WithHeader(h http.Header) Option {
	return func(cl *Client) {
		cl.header = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// WithMaxRetries sets how many times a retryable request is reattempted.
func WithMaxRetries(n uint64) Option {
	return func(cl *Client) {
		cl.maxRetries = n
	}
}

// NewClient returns a Client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     zap.NewNop(),
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateRunParams describes a run to start: a prompt fanned out to a number of
// competing agents.
type CreateRunParams struct {
	Prompt     string `json:"prompt"`
	AgentCount int    `json:"agentCount"`
	Model      string `json:"model,omitempty"`
}

type createRunResponse struct {
	RunID string `json:"runId"`
}

// CreateRun starts a run and returns its id. Server errors (5xx) are retried
// with exponential backoff; client errors (4xx) fail immediately.
func (c *Client) CreateRun(ctx context.Context, params CreateRunParams) (string, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encoding run params: %w", err)
	}

	var out createRunResponse
	err = c.doRetry(ctx, http.MethodPost, "/v1/runs", body, &out)
	if err != nil {
		return "", err
	}
	if out.RunID == "" {
		return "", errors.New("api: create run response missing runId")
	}
	return out.RunID, nil
}

// SelectWinner records agentID as the winner of runID. Not retried: the caller
// decides whether a failed selection should be repeated.
func (c *Client) SelectWinner(ctx context.Context, runID string, agentID int) error {
	body, err := json.Marshal(map[string]int{"agentId": agentID})
	if err != nil {
		return fmt.Errorf("encoding winner selection: %w", err)
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/runs/%s/winner", runID), body, nil)
}

func (c *Client) doRetry(ctx context.Context, method, path string, body []byte, out any) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = defaultMaxRetryInterval
	bo.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		err := c.do(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			return backoff.Permanent(err)
		}
		c.logger.Warn("request failed, retrying",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return err
	}

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx))
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, vals := range c.header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
