package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	sseScannerInitialBuffer = 64 * 1024
	sseScannerMaxBuffer     = 8 * 1024 * 1024
)

// SSE dials GET {base}/v1/runs/{id}/events and reads text/event-stream frames.
type SSE struct {
	baseURL string
	opts    options
}

// NewSSE returns an SSE transport rooted at baseURL.
func NewSSE(baseURL string, opts ...Option) *SSE {
	return &SSE{
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    buildOptions(opts),
	}
}

// Dial opens the event stream for runID.
func (t *SSE) Dial(ctx context.Context, runID string) (Conn, error) {
	url := fmt.Sprintf("%s/v1/runs/%s/events", t.baseURL, runID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating stream request: %w", err)
	}
	for k, vals := range t.opts.header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.opts.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dialing event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	t.opts.logger.Debug("sse stream open", zap.String("run_id", runID))

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, sseScannerInitialBuffer), sseScannerMaxBuffer)

	return &sseConn{body: resp.Body, scanner: scanner}, nil
}

type sseConn struct {
	body    io.ReadCloser
	scanner *bufio.Scanner

	mu     sync.Mutex
	closed bool
}

// Next reads lines until a blank line terminates an event. Multi-line data
// fields are joined with newlines, ":" comment lines are skipped, and a frame
// with no explicit event name defaults to "message".
func (c *sseConn) Next(ctx context.Context) (*Frame, error) {
	event := "message"
	var data []string

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil, ErrConnClosed
		}

		if !c.scanner.Scan() {
			if err := c.scanner.Err(); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, fmt.Errorf("reading event stream: %w", err)
			}
			return nil, io.EOF
		}

		line := c.scanner.Text()
		switch {
		case line == "":
			if len(data) == 0 {
				// Keep-alive separator with no payload.
				event = "message"
				continue
			}
			return &Frame{Event: event, Data: []byte(strings.Join(data, "\n"))}, nil
		case strings.HasPrefix(line, ":"):
			// Comment, used by servers as a keep-alive.
			continue
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}

func (c *sseConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.body.Close()
}
