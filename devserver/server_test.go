package devserver

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/aideator/agentstream"
	"github.com/aideator/agentstream/api"
	"github.com/aideator/agentstream/transport"
)

func newTestServer(t *testing.T, streamer Streamer) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(streamer, &Config{
		EventRate: rate.Limit(5000),
		Heartbeat: time.Hour, // keep heartbeats out of frame counts
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Shutdown()
		ts.Close()
	})
	return srv, ts
}

func scriptText(agentID int) string {
	var b strings.Builder
	for _, chunk := range defaultScript {
		b.WriteString(chunk)
	}
	return "[agent " + string(rune('0'+agentID)) + "] " + b.String()
}

func TestServer_StreamOverSSE(t *testing.T) {
	_, ts := newTestServer(t, &Scripted{})

	client := api.NewClient(ts.URL)
	runID, err := client.CreateRun(context.Background(), api.CreateRunParams{
		Prompt:     "compare me",
		AgentCount: 2,
	})
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	conn, err := transport.NewSSE(ts.URL).Dial(context.Background(), runID)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	counts := map[string]int{}
	for {
		frame, err := conn.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		counts[frame.Event]++
		if frame.Event == "run_complete" {
			break
		}
	}

	if counts["content"] == 0 {
		t.Error("no content events received")
	}
	if counts["agent_complete"] != 2 {
		t.Errorf("agent_complete count = %d, want 2", counts["agent_complete"])
	}
	if counts["run_complete"] != 1 {
		t.Errorf("run_complete count = %d, want 1", counts["run_complete"])
	}
}

func TestServer_EndToEndWithCoordinator(t *testing.T) {
	srv, ts := newTestServer(t, &Scripted{})

	client := api.NewClient(ts.URL)
	runID, err := client.CreateRun(context.Background(), api.CreateRunParams{
		Prompt:     "compare me",
		AgentCount: 3,
	})
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	coord, err := agentstream.New(
		transport.NewSSE(ts.URL),
		agentstream.WithTokensPerSecond(5000),
		agentstream.WithMinChunkSize(1),
		agentstream.WithSelector(client),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer coord.StopStream()

	if err := coord.StartStream(context.Background(), runID); err != nil {
		t.Fatalf("StartStream() error = %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for coord.Active() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if coord.Active() {
		t.Fatal("run never completed")
	}

	for agentID := 0; agentID < 3; agentID++ {
		tr := coord.Transcript(agentID)
		if tr == nil {
			t.Fatalf("no transcript for agent %d", agentID)
		}
		if got, want := tr.String(), scriptText(agentID); got != want {
			t.Errorf("transcript[%d] = %q, want %q", agentID, got, want)
		}
		if !coord.Completed(agentID) {
			t.Errorf("Completed(%d) = false", agentID)
		}
	}

	// Winner selection round-trips through the control plane.
	if err := coord.SelectAgent(context.Background(), 1); !errors.Is(err, agentstream.ErrNoActiveRun) {
		t.Fatalf("SelectAgent() after completion error = %v, want %v", err, agentstream.ErrNoActiveRun)
	}
	if err := client.SelectWinner(context.Background(), runID, 1); err != nil {
		t.Fatalf("SelectWinner() error = %v", err)
	}
	if winner, ok := srv.Winner(runID); !ok || winner != 1 {
		t.Errorf("Winner() = (%d, %v), want (1, true)", winner, ok)
	}
}

func TestServer_StreamOverWebSocket(t *testing.T) {
	_, ts := newTestServer(t, &Scripted{Chunks: []string{"one ", "two"}})

	client := api.NewClient(ts.URL)
	runID, err := client.CreateRun(context.Background(), api.CreateRunParams{
		Prompt:     "compare me",
		AgentCount: 1,
	})
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	conn, err := transport.NewWebSocket(ts.URL).Dial(context.Background(), runID)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	var sawRunComplete bool
	for {
		frame, err := conn.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if frame.Event == "run_complete" {
			sawRunComplete = true
			break
		}
	}
	if !sawRunComplete {
		t.Error("run_complete never arrived over websocket")
	}
}

func TestServer_WinnerValidation(t *testing.T) {
	_, ts := newTestServer(t, &Scripted{})

	client := api.NewClient(ts.URL)
	runID, err := client.CreateRun(context.Background(), api.CreateRunParams{
		Prompt:     "p",
		AgentCount: 2,
	})
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	var apiErr *api.APIError
	if err := client.SelectWinner(context.Background(), runID, 9); !errors.As(err, &apiErr) {
		t.Fatalf("SelectWinner(9) error = %v, want *APIError", err)
	} else if apiErr.StatusCode != 400 {
		t.Errorf("StatusCode = %d, want 400", apiErr.StatusCode)
	}

	if err := client.SelectWinner(context.Background(), "no-such-run", 0); !errors.As(err, &apiErr) {
		t.Fatalf("SelectWinner(unknown run) error = %v, want *APIError", err)
	} else if apiErr.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
}

func TestServer_LateSubscriberGetsHistory(t *testing.T) {
	_, ts := newTestServer(t, &Scripted{Chunks: []string{"early"}})

	client := api.NewClient(ts.URL)
	runID, err := client.CreateRun(context.Background(), api.CreateRunParams{
		Prompt:     "p",
		AgentCount: 1,
	})
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	// Let the whole run finish before anyone subscribes.
	time.Sleep(100 * time.Millisecond)

	conn, err := transport.NewSSE(ts.URL).Dial(context.Background(), runID)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	var content int
	for {
		frame, err := conn.Next(context.Background())
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if frame.Event == "content" {
			content++
		}
		if frame.Event == "run_complete" {
			break
		}
	}
	if content != 2 {
		t.Errorf("replayed content events = %d, want 2", content)
	}
}
