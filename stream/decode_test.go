package stream

import (
	"errors"
	"testing"
	"time"
)

func TestDecode_Content(t *testing.T) {
	ev, err := Decode("content", []byte(`{"agentId":2,"text":"Hello","timestamp":"2024-01-01T00:00:00Z"}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	content, ok := ev.(*ContentEvent)
	if !ok {
		t.Fatalf("Decode() returned %T, want *ContentEvent", ev)
	}
	if content.AgentID != 2 {
		t.Errorf("AgentID = %d, want 2", content.AgentID)
	}
	if content.Text != "Hello" {
		t.Errorf("Text = %q, want %q", content.Text, "Hello")
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !content.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", content.Timestamp, want)
	}
}

func TestDecode_AgentIDNormalization(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    int
		wantErr bool
	}{
		{name: "number", payload: `{"agentId":3,"text":"x"}`, want: 3},
		{name: "numeric string", payload: `{"agentId":"3","text":"x"}`, want: 3},
		{name: "zero", payload: `{"agentId":0,"text":"x"}`, want: 0},
		{name: "non-numeric string", payload: `{"agentId":"abc","text":"x"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode("content", []byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedPayload) {
					t.Fatalf("Decode() error = %v, want ErrMalformedPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got := ev.(*ContentEvent).AgentID; got != tt.want {
				t.Errorf("AgentID = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDecode_AgentError(t *testing.T) {
	ev, err := Decode("agent_error", []byte(`{"agentId":"1","message":"model timed out"}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	agentErr := ev.(*AgentErrorEvent)
	if agentErr.AgentID != 1 {
		t.Errorf("AgentID = %d, want 1", agentErr.AgentID)
	}
	if agentErr.Message != "model timed out" {
		t.Errorf("Message = %q, want %q", agentErr.Message, "model timed out")
	}
}

func TestDecode_LifecycleEvents(t *testing.T) {
	ev, err := Decode("agent_complete", []byte(`{"agentId":4}`))
	if err != nil {
		t.Fatalf("Decode(agent_complete) error = %v", err)
	}
	if got := ev.(*AgentCompleteEvent).AgentID; got != 4 {
		t.Errorf("AgentID = %d, want 4", got)
	}

	if ev, err = Decode("run_complete", []byte(`{}`)); err != nil {
		t.Fatalf("Decode(run_complete) error = %v", err)
	} else if ev.Type() != EventTypeRunComplete {
		t.Errorf("Type = %v, want %v", ev.Type(), EventTypeRunComplete)
	}

	if ev, err = Decode("heartbeat", nil); err != nil {
		t.Fatalf("Decode(heartbeat) error = %v", err)
	} else if ev.Type() != EventTypeHeartbeat {
		t.Errorf("Type = %v, want %v", ev.Type(), EventTypeHeartbeat)
	}
}

func TestDecode_UnknownEvent(t *testing.T) {
	_, err := Decode("telemetry", []byte(`{}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("Decode() error = %v, want ErrUnknownEvent", err)
	}
}

func TestDecode_MalformedPayload(t *testing.T) {
	_, err := Decode("content", []byte(`{"agentId":`))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("Decode() error = %v, want ErrMalformedPayload", err)
	}
}

func TestDecode_MissingTimestampTolerated(t *testing.T) {
	ev, err := Decode("content", []byte(`{"agentId":0,"text":"x"}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ts := ev.(*ContentEvent).Timestamp; !ts.IsZero() {
		t.Errorf("Timestamp = %v, want zero", ts)
	}
}
