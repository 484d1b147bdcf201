package agentstream

import (
	"time"

	"github.com/aideator/agentstream/internal/metrics"
	"github.com/aideator/agentstream/pacer"
	"github.com/aideator/agentstream/stream"
	"go.uber.org/zap"
)

// internalConfig holds the resolved coordinator configuration
type internalConfig struct {
	// Pacing
	tokensPerSecond   float64
	minChunkSize      int
	maxBufferSize     int
	respectBoundaries bool

	// Reconnection
	maxRetryAttempts int
	baseRetryDelay   time.Duration
	maxRetryDelay    time.Duration

	// Collaborators
	classifier stream.Classifier
	selector   Selector
	logger     *zap.Logger
	metrics    *metrics.Collector

	// Callbacks
	onToken       func(agentID int, chunk string)
	onStateChange func(state ConnectionState, err error)
	onAgentError  func(agentID int, message string)
	onLog         func(entry stream.LogEntry)
}

func defaultInternalConfig() internalConfig {
	return internalConfig{
		tokensPerSecond:   pacer.DefaultTokensPerSecond,
		minChunkSize:      pacer.DefaultMinChunkSize,
		maxBufferSize:     pacer.DefaultMaxBufferSize,
		respectBoundaries: true,
		maxRetryAttempts:  DefaultMaxRetryAttempts,
		baseRetryDelay:    DefaultBaseRetryDelay,
		maxRetryDelay:     DefaultMaxRetryDelay,
		classifier:        stream.DefaultClassifier,
		logger:            zap.NewNop(),
	}
}

// Option is a functional option for configuring a Coordinator
type Option func(*internalConfig) error

// WithTokensPerSecond sets the pacing rate for display text
func WithTokensPerSecond(tps float64) Option {
	return func(c *internalConfig) error {
		if tps <= 0 {
			return NewStreamError("WithTokensPerSecond", "", ErrInvalidConfig)
		}
		c.tokensPerSecond = tps
		return nil
	}
}

// WithMinChunkSize sets the smallest emission a pacing buffer will cut
func WithMinChunkSize(n int) Option {
	return func(c *internalConfig) error {
		if n <= 0 {
			return NewStreamError("WithMinChunkSize", "", ErrInvalidConfig)
		}
		c.minChunkSize = n
		return nil
	}
}

// WithMaxBufferSize sets the backlog size that triggers a forced drain
func WithMaxBufferSize(n int) Option {
	return func(c *internalConfig) error {
		if n <= 0 {
			return NewStreamError("WithMaxBufferSize", "", ErrInvalidConfig)
		}
		c.maxBufferSize = n
		return nil
	}
}

// WithRespectBoundaries toggles word and fenced-block boundary handling
func WithRespectBoundaries(enabled bool) Option {
	return func(c *internalConfig) error {
		c.respectBoundaries = enabled
		return nil
	}
}

// WithMaxRetryAttempts bounds reconnection attempts before giving up
func WithMaxRetryAttempts(n int) Option {
	return func(c *internalConfig) error {
		if n < 0 {
			return NewStreamError("WithMaxRetryAttempts", "", ErrInvalidConfig)
		}
		c.maxRetryAttempts = n
		return nil
	}
}

// WithBaseRetryDelay sets the first reconnect delay
func WithBaseRetryDelay(d time.Duration) Option {
	return func(c *internalConfig) error {
		if d <= 0 {
			return NewStreamError("WithBaseRetryDelay", "", ErrInvalidConfig)
		}
		c.baseRetryDelay = d
		return nil
	}
}

// WithMaxRetryDelay caps the exponential reconnect delay
func WithMaxRetryDelay(d time.Duration) Option {
	return func(c *internalConfig) error {
		if d <= 0 {
			return NewStreamError("WithMaxRetryDelay", "", ErrInvalidConfig)
		}
		c.maxRetryDelay = d
		return nil
	}
}

// WithClassifier replaces the log-vs-display classification predicate
func WithClassifier(fn stream.Classifier) Option {
	return func(c *internalConfig) error {
		if fn == nil {
			return NewStreamError("WithClassifier", "", ErrInvalidConfig)
		}
		c.classifier = fn
		return nil
	}
}

// WithSelector sets the collaborator SelectAgent submits winner picks through
func WithSelector(s Selector) Option {
	return func(c *internalConfig) error {
		c.selector = s
		return nil
	}
}

// WithLogger sets the structured logger
func WithLogger(l *zap.Logger) Option {
	return func(c *internalConfig) error {
		if l == nil {
			return NewStreamError("WithLogger", "", ErrInvalidConfig)
		}
		c.logger = l
		return nil
	}
}

// WithMetrics attaches a Prometheus collector
func WithMetrics(m *metrics.Collector) Option {
	return func(c *internalConfig) error {
		c.metrics = m
		return nil
	}
}

// WithOnToken registers a callback invoked once per paced emission, in
// arrival order within each agent. The callback runs on a pacing timer
// goroutine and must not call back into the coordinator's control methods.
func WithOnToken(fn func(agentID int, chunk string)) Option {
	return func(c *internalConfig) error {
		c.onToken = fn
		return nil
	}
}

// WithOnStateChange registers a callback for connection state transitions.
// err is non-nil only for the terminal error state.
func WithOnStateChange(fn func(state ConnectionState, err error)) Option {
	return func(c *internalConfig) error {
		c.onStateChange = fn
		return nil
	}
}

// WithOnAgentError registers a callback for agent-level error events
func WithOnAgentError(fn func(agentID int, message string)) Option {
	return func(c *internalConfig) error {
		c.onAgentError = fn
		return nil
	}
}

// WithOnLog registers a callback for payloads classified as log entries
func WithOnLog(fn func(entry stream.LogEntry)) Option {
	return func(c *internalConfig) error {
		c.onLog = fn
		return nil
	}
}
