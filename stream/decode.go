package stream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// agentID decodes an agent identifier that may arrive as either a JSON number
// or a numeric string. The backend is not consistent about which it sends, so
// both are normalized to a plain int before use as a map key.
type agentID int

func (id *agentID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAgentID, string(data))
	}
	*id = agentID(n)
	return nil
}

// contentPayload is the wire shape of a content event.
type contentPayload struct {
	AgentID   agentID `json:"agentId"`
	Text      string  `json:"text"`
	Timestamp string  `json:"timestamp"`
}

// agentErrorPayload is the wire shape of an agent_error event.
type agentErrorPayload struct {
	AgentID agentID `json:"agentId"`
	Message string  `json:"message"`
}

// agentCompletePayload is the wire shape of an agent_complete event.
type agentCompletePayload struct {
	AgentID agentID `json:"agentId"`
}

// Decode parses a named event payload into a typed Event.
//
// Unknown event names return ErrUnknownEvent and malformed payloads return
// ErrMalformedPayload; both are per-event failures that must not tear down
// the connection.
func Decode(name string, data []byte) (Event, error) {
	switch EventType(name) {
	case EventTypeContent:
		var p contentPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, name, err)
		}
		return &ContentEvent{
			AgentID:   int(p.AgentID),
			Text:      p.Text,
			Timestamp: parseTimestamp(p.Timestamp),
		}, nil

	case EventTypeAgentError:
		var p agentErrorPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, name, err)
		}
		return &AgentErrorEvent{AgentID: int(p.AgentID), Message: p.Message}, nil

	case EventTypeAgentComplete:
		var p agentCompletePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, name, err)
		}
		return &AgentCompleteEvent{AgentID: int(p.AgentID)}, nil

	case EventTypeRunComplete:
		return &RunCompleteEvent{}, nil

	case EventTypeHeartbeat:
		return &HeartbeatEvent{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}

// parseTimestamp parses an RFC 3339 timestamp, tolerating an absent or
// unparseable value. Event ordering comes from the connection, not from
// timestamps, so a zero time is acceptable.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
