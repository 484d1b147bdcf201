// Package transport provides the push-stream connections a Coordinator reads
// run events from. Two variants exist, selected by user preference: Server-Sent
// Events over plain HTTP, and WebSocket. Both deliver the same (event name,
// JSON payload) frames; the Coordinator does not care which carried them.
package transport

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Variant names a transport implementation.
type Variant string

const (
	// VariantSSE streams events over text/event-stream.
	VariantSSE Variant = "sse"

	// VariantWebSocket streams events over a WebSocket connection.
	VariantWebSocket Variant = "websocket"
)

// Errors returned by transports.
var (
	// ErrUnknownVariant is returned by New for an unrecognized variant name.
	ErrUnknownVariant = errors.New("unknown transport variant")

	// ErrBadStatus is returned when the server rejects the stream request.
	ErrBadStatus = errors.New("unexpected response status")

	// ErrConnClosed is returned from Next after Close.
	ErrConnClosed = errors.New("connection closed")
)

// Frame is one named event read off the wire.
type Frame struct {
	// Event is the event name (content, agent_error, ...).
	Event string

	// Data is the raw JSON payload.
	Data []byte
}

// Conn is an open push-stream connection for one run.
type Conn interface {
	// Next blocks until the next frame arrives. It returns io.EOF when the
	// server ends the stream in an orderly way, or another error on
	// transport failure.
	Next(ctx context.Context) (*Frame, error)

	// Close tears the connection down. Safe to call multiple times.
	Close() error
}

// Transport opens push-stream connections scoped to a run id.
type Transport interface {
	Dial(ctx context.Context, runID string) (Conn, error)
}

// Option configures a transport.
type Option func(*options)

type options struct {
	httpClient *http.Client
	header     http.Header
	logger     *zap.Logger
}

// WithHTTPClient sets the HTTP client used to dial.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithHeader adds headers to every dial request (e.g. authorization).
func WithHeader(h http.Header) Option {
	return func(o *options) {
		o.header = h
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func buildOptions(opts []Option) options {
	o := options{
		httpClient: http.DefaultClient,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New returns the transport for the named variant, rooted at baseURL.
func New(variant Variant, baseURL string, opts ...Option) (Transport, error) {
	switch variant {
	case VariantSSE, "":
		return NewSSE(baseURL, opts...), nil
	case VariantWebSocket:
		return NewWebSocket(baseURL, opts...), nil
	default:
		return nil, ErrUnknownVariant
	}
}
