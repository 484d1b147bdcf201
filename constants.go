package agentstream

import "time"

// ConnectionState represents the lifecycle of the push-stream connection.
//
// State transitions:
//
//	disconnected ──> connecting ──> connected
//	                     ^              │
//	                     │ (backoff)    │ (transport error)
//	                     └── reconnect <┘
//	                            │ (attempts exhausted)
//	                            v
//	                          error
type ConnectionState string

const (
	// StateDisconnected means no connection is open and none is wanted.
	StateDisconnected ConnectionState = "disconnected"

	// StateConnecting means a dial is in flight, including reconnect waits.
	StateConnecting ConnectionState = "connecting"

	// StateConnected means the stream is open and delivering events.
	StateConnected ConnectionState = "connected"

	// StateError is terminal: reconnection attempts were exhausted.
	StateError ConnectionState = "error"
)

// String returns the string representation of the connection state.
func (s ConnectionState) String() string {
	return string(s)
}

// Default coordinator configuration values.
const (
	// DefaultMaxRetryAttempts bounds how many reconnects are tried before
	// the coordinator gives up.
	DefaultMaxRetryAttempts = 5

	// DefaultBaseRetryDelay is the first reconnect delay; each subsequent
	// attempt doubles it.
	DefaultBaseRetryDelay = 1 * time.Second

	// DefaultMaxRetryDelay caps the doubling.
	DefaultMaxRetryDelay = 30 * time.Second
)
