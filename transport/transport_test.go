package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tr, err := New(VariantSSE, "http://localhost:8080")
	require.NoError(t, err)
	assert.IsType(t, &SSE{}, tr)

	tr, err = New(VariantWebSocket, "http://localhost:8080")
	require.NoError(t, err)
	assert.IsType(t, &WebSocket{}, tr)

	// Empty variant defaults to SSE.
	tr, err = New("", "http://localhost:8080")
	require.NoError(t, err)
	assert.IsType(t, &SSE{}, tr)

	_, err = New("carrier-pigeon", "http://localhost:8080")
	assert.ErrorIs(t, err, ErrUnknownVariant)
}

func TestSSE_Dial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/runs/run-1/events", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "event: content\ndata: {\"agentId\":1,\"text\":\"hi\"}\n\n")
		fmt.Fprint(w, "data: {\"plain\":true}\n\n")
		fmt.Fprint(w, "event: content\ndata: {\"a\":1,\ndata: \"b\":2}\n\n")
	}))
	defer srv.Close()

	conn, err := NewSSE(srv.URL).Dial(context.Background(), "run-1")
	require.NoError(t, err)
	defer conn.Close()

	ctx := context.Background()

	frame, err := conn.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "content", frame.Event)
	assert.JSONEq(t, `{"agentId":1,"text":"hi"}`, string(frame.Data))

	// No event name defaults to "message".
	frame, err = conn.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "message", frame.Event)
	assert.JSONEq(t, `{"plain":true}`, string(frame.Data))

	// Multi-line data joined with newlines.
	frame, err = conn.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "content", frame.Event)
	assert.JSONEq(t, `{"a":1,"b":2}`, string(frame.Data))

	_, err = conn.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSSE_DialBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such run", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewSSE(srv.URL).Dial(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrBadStatus)
}

func TestSSE_DialHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
	}))
	defer srv.Close()

	h := http.Header{}
	h.Set("Authorization", "Bearer tok")
	conn, err := NewSSE(srv.URL, WithHeader(h)).Dial(context.Background(), "run-1")
	require.NoError(t, err)
	conn.Close()
}

func TestSSE_NextAfterClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: heartbeat\ndata: {}\n\n")
	}))
	defer srv.Close()

	conn, err := NewSSE(srv.URL).Dial(context.Background(), "run-1")
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	_, err = conn.Next(context.Background())
	assert.ErrorIs(t, err, ErrConnClosed)
}

func TestWebSocket_Dial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/runs/run-2/ws", r.URL.Path)

		c, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)

		ctx := r.Context()
		env, _ := json.Marshal(map[string]any{
			"event": "content",
			"data":  map[string]any{"agentId": 2, "text": "hello"},
		})
		require.NoError(t, c.Write(ctx, websocket.MessageText, env))
		c.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	conn, err := NewWebSocket(srv.URL).Dial(context.Background(), "run-2")
	require.NoError(t, err)
	defer conn.Close()

	frame, err := conn.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "content", frame.Event)
	assert.JSONEq(t, `{"agentId":2,"text":"hello"}`, string(frame.Data))

	_, err = conn.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestWebSocket_NextContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)
		// Hold the connection open without sending anything.
		<-r.Context().Done()
		c.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	conn, err := NewWebSocket(srv.URL).Dial(context.Background(), "run-3")
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = conn.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWSScheme(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080", wsScheme("http://localhost:8080"))
	assert.Equal(t, "wss://example.com", wsScheme("https://example.com"))
	assert.Equal(t, "ws://already", wsScheme("ws://already"))
}
