package stream

import "errors"

// Errors returned when decoding push-stream events.
var (
	// ErrUnknownEvent is returned for an event name no decoder is registered for.
	ErrUnknownEvent = errors.New("unknown stream event")

	// ErrMalformedPayload is returned when an event payload fails to decode.
	// The caller is expected to discard the single event, not the connection.
	ErrMalformedPayload = errors.New("malformed event payload")

	// ErrInvalidAgentID is returned when an agent id is neither a number nor a
	// numeric string.
	ErrInvalidAgentID = errors.New("invalid agent id")
)
