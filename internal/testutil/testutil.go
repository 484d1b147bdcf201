// Package testutil provides a scriptable in-memory transport for stream tests.
package testutil

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aideator/agentstream/transport"
)

// FakeConn is a transport.Conn fed from channels. Tests push frames or errors
// and the consumer sees them in order. Closing the frames channel yields
// io.EOF, an orderly server-side end of stream.
type FakeConn struct {
	Frames chan *transport.Frame
	Errs   chan error

	closed atomic.Bool
	done   chan struct{}
}

// NewFakeConn returns a FakeConn with buffered channels.
func NewFakeConn() *FakeConn {
	return &FakeConn{
		Frames: make(chan *transport.Frame, 64),
		Errs:   make(chan error, 8),
		done:   make(chan struct{}),
	}
}

// Next returns the next queued frame or error.
func (c *FakeConn) Next(ctx context.Context) (*transport.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, io.EOF
	case err := <-c.Errs:
		return nil, err
	case frame, ok := <-c.Frames:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	}
}

// Close marks the connection closed and unblocks pending Next calls.
func (c *FakeConn) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		close(c.done)
	}
	return nil
}

// Closed reports whether Close has been called.
func (c *FakeConn) Closed() bool {
	return c.closed.Load()
}

// Push queues an event frame, marshaling payload to JSON.
func (c *FakeConn) Push(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshaling %s payload: %v", event, err)
	}
	c.Frames <- &transport.Frame{Event: event, Data: data}
}

// Fail queues a transport error, simulating a dropped connection.
func (c *FakeConn) Fail(err error) {
	c.Errs <- err
}

// FakeTransport hands out a scripted sequence of connections. Each Dial
// consumes the next entry; an entry queued with FailDial makes that Dial
// fail with the given error. When the script is exhausted, Dial blocks until
// the context is canceled, so tests control exactly how many connections are
// seen.
type FakeTransport struct {
	mu     sync.Mutex
	script []dialResult
	runIDs []string
	dials  atomic.Int64
}

type dialResult struct {
	conn *FakeConn
	err  error
}

// NewFakeTransport returns an empty transport. Queue connections with Serve
// and failures with FailDial before starting the consumer.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

// Serve queues a connection for the next unscripted Dial and returns it.
func (f *FakeTransport) Serve() *FakeConn {
	conn := NewFakeConn()
	f.mu.Lock()
	f.script = append(f.script, dialResult{conn: conn})
	f.mu.Unlock()
	return conn
}

// FailDial queues a Dial failure.
func (f *FakeTransport) FailDial(err error) {
	f.mu.Lock()
	f.script = append(f.script, dialResult{err: err})
	f.mu.Unlock()
}

// Dial pops the next scripted result.
func (f *FakeTransport) Dial(ctx context.Context, runID string) (transport.Conn, error) {
	f.dials.Add(1)

	f.mu.Lock()
	f.runIDs = append(f.runIDs, runID)
	var next *dialResult
	if len(f.script) > 0 {
		next = &f.script[0]
		f.script = f.script[1:]
	}
	f.mu.Unlock()

	if next == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if next.err != nil {
		return nil, next.err
	}
	return next.conn, nil
}

// Dials reports how many times Dial was called.
func (f *FakeTransport) Dials() int {
	return int(f.dials.Load())
}

// RunIDs returns the run ids passed to Dial, in order.
func (f *FakeTransport) RunIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.runIDs))
	copy(out, f.runIDs)
	return out
}
