package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const wsReadLimit = 8 * 1024 * 1024

// WebSocket dials GET {base}/v1/runs/{id}/ws. Each message is a JSON envelope
// of the form {"event": "...", "data": {...}}.
type WebSocket struct {
	baseURL string
	opts    options
}

// NewWebSocket returns a WebSocket transport rooted at baseURL. The base URL
// may use an http or https scheme; it is rewritten to ws/wss on dial.
func NewWebSocket(baseURL string, opts ...Option) *WebSocket {
	return &WebSocket{
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    buildOptions(opts),
	}
}

// Dial opens the event stream for runID.
func (t *WebSocket) Dial(ctx context.Context, runID string) (Conn, error) {
	url := fmt.Sprintf("%s/v1/runs/%s/ws", wsScheme(t.baseURL), runID)

	c, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: t.opts.httpClient,
		HTTPHeader: t.opts.header,
	})
	if err != nil {
		if resp != nil && resp.StatusCode != 0 {
			return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing websocket: %w", err)
	}
	c.SetReadLimit(wsReadLimit)

	t.opts.logger.Debug("websocket stream open", zap.String("run_id", runID))

	return &wsConn{conn: c}, nil
}

func wsScheme(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}

type wsEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type wsConn struct {
	conn *websocket.Conn
}

// Next reads one envelope. An orderly close from the server maps to io.EOF so
// callers treat both transports the same way.
func (c *wsConn) Next(ctx context.Context) (*Frame, error) {
	_, msg, err := c.conn.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return nil, io.EOF
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reading websocket: %w", err)
	}

	var env wsEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil, fmt.Errorf("decoding websocket envelope: %w", err)
	}
	if env.Event == "" {
		env.Event = "message"
	}
	return &Frame{Event: env.Event, Data: env.Data}, nil
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
