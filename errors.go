package agentstream

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrInvalidConfig is returned when a coordinator option is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidRunID is returned when StartStream is called with an empty run id
	ErrInvalidRunID = errors.New("invalid run id")

	// ErrNoActiveRun is returned when an operation requires a running stream
	ErrNoActiveRun = errors.New("no active run")

	// ErrNoSelector is returned by SelectAgent when no selector is configured
	ErrNoSelector = errors.New("no selector configured")

	// ErrRetriesExhausted is returned when reconnection gives up after the
	// configured maximum number of attempts
	ErrRetriesExhausted = errors.New("reconnect retries exhausted")
)

// StreamError wraps an error with the run it occurred on
type StreamError struct {
	Op    string // Operation that failed
	RunID string // Run ID if applicable
	Err   error  // Underlying error
}

// Error implements the error interface
func (e *StreamError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("%s (run=%s): %v", e.Op, e.RunID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *StreamError) Unwrap() error {
	return e.Err
}

// NewStreamError creates a new StreamError
func NewStreamError(op, runID string, err error) *StreamError {
	return &StreamError{
		Op:    op,
		RunID: runID,
		Err:   err,
	}
}
