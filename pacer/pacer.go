package pacer

import (
	"sync"
	"time"
)

// Default pacing parameters.
const (
	// DefaultTokensPerSecond is the target emission rate.
	DefaultTokensPerSecond = 30.0

	// DefaultMinChunkSize is the minimum pending size, in bytes, before an
	// emission fires. Avoids single-character flicker.
	DefaultMinChunkSize = 12

	// DefaultMaxBufferSize is the pending size, in bytes, above which the
	// buffer force-drains regardless of timing.
	DefaultMaxBufferSize = 4096
)

// Config holds pacing parameters for a Buffer.
type Config struct {
	// TokensPerSecond is the target emission rate. Default: 30.
	TokensPerSecond float64

	// MinChunkSize is the minimum pending size before an emission fires.
	// Default: 12.
	MinChunkSize int

	// MaxBufferSize bounds end-to-end latency: pending text beyond it is
	// drained immediately. Default: 4096.
	MaxBufferSize int

	// RespectBoundaries keeps emissions from splitting mid-word or inside a
	// fenced code block.
	RespectBoundaries bool
}

// DefaultConfig returns the default pacing configuration.
func DefaultConfig() *Config {
	return &Config{
		TokensPerSecond:   DefaultTokensPerSecond,
		MinChunkSize:      DefaultMinChunkSize,
		MaxBufferSize:     DefaultMaxBufferSize,
		RespectBoundaries: true,
	}
}

// Buffer smooths one agent's text stream into paced emissions.
//
// Text accepted through Add is re-segmented and re-timed, then handed to the
// emission callback one chunk at a time, in strict arrival order. Once
// Complete is called the buffer is closed to further input and all pending
// text is flushed.
type Buffer struct {
	emit func(chunk string)

	mu        sync.Mutex
	cfg       Config
	chunk     chunker
	pending   string
	timer     *time.Timer
	timerSeq  uint64
	paused    bool
	completed bool
	destroyed bool
}

// New creates a pacing buffer that delivers chunks to emit.
//
// emit is invoked with the buffer's internal lock held, from Add, Complete, or
// a timer goroutine; it must be quick and must not call back into the Buffer.
func New(emit func(chunk string), config *Config) *Buffer {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.TokensPerSecond <= 0 {
		cfg.TokensPerSecond = DefaultTokensPerSecond
	}
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = DefaultMinChunkSize
	}
	if cfg.MaxBufferSize <= 0 {
		cfg.MaxBufferSize = DefaultMaxBufferSize
	}
	if emit == nil {
		emit = func(string) {}
	}

	return &Buffer{
		emit: emit,
		cfg:  cfg,
		chunk: chunker{
			min:     cfg.MinChunkSize,
			respect: cfg.RespectBoundaries,
		},
	}
}

// Add appends text to the pending buffer and reports whether it was accepted.
// Text offered after Complete or Destroy is dropped and Add returns false.
func (b *Buffer) Add(text string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.completed || b.destroyed {
		return false
	}
	if text == "" {
		return true
	}

	b.pending += text

	// Backpressure release valve: bound latency instead of pacing evenly.
	if len(b.pending) > b.cfg.MaxBufferSize {
		b.drainLocked(true)
		return true
	}

	b.armLocked(b.delayFor(1))
	return true
}

// Pause suspends scheduled emissions. Pending text is preserved.
func (b *Buffer) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed || b.paused {
		return
	}
	b.paused = true
	b.cancelTimerLocked()
}

// Resume re-enables emissions after Pause.
func (b *Buffer) Resume() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed || !b.paused {
		return
	}
	b.paused = false
	b.armLocked(b.delayFor(1))
}

// Complete closes the buffer to further input and flushes all pending text,
// waiving the minimum chunk size for the tail. Completion is terminal.
func (b *Buffer) Complete() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.completed || b.destroyed {
		return
	}
	b.completed = true
	b.cancelTimerLocked()
	b.drainLocked(true)
}

// Destroy cancels any scheduled emission and discards pending text. No
// emission fires after Destroy returns. Safe to call multiple times.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return
	}
	b.destroyed = true
	b.cancelTimerLocked()
	b.pending = ""
}

// Pending reports the number of buffered bytes not yet emitted.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Completed reports whether Complete has been called.
func (b *Buffer) Completed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completed
}

// tick is the timer callback. A stale sequence number means the timer was
// cancelled or superseded after this callback was already scheduled.
func (b *Buffer) tick(seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if seq != b.timerSeq || b.destroyed || b.paused {
		return
	}
	b.timer = nil

	chunk, rest, ok := b.chunk.next(b.pending, false)
	if !ok {
		// Holding: below the minimum or inside an open fence. The next Add
		// re-arms the timer.
		return
	}
	b.pending = rest
	b.emit(chunk)

	if len(b.pending) > 0 {
		b.armLocked(b.delayFor(countTokens(chunk)))
	}
}

// drainLocked emits all drainable pending text. With force, everything goes.
func (b *Buffer) drainLocked(force bool) {
	for b.pending != "" {
		chunk, rest, ok := b.chunk.next(b.pending, force)
		if !ok {
			return
		}
		b.pending = rest
		b.emit(chunk)
	}
}

// armLocked schedules the next emission if none is scheduled yet.
func (b *Buffer) armLocked(d time.Duration) {
	if b.timer != nil || b.paused || b.destroyed || len(b.pending) == 0 {
		return
	}
	b.timerSeq++
	seq := b.timerSeq
	b.timer = time.AfterFunc(d, func() { b.tick(seq) })
}

// cancelTimerLocked stops the scheduled emission and invalidates any timer
// callback already in flight.
func (b *Buffer) cancelTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.timerSeq++
}

// delayFor converts a token count into the pause matching the target rate.
func (b *Buffer) delayFor(tokens int) time.Duration {
	d := time.Duration(float64(tokens) / b.cfg.TokensPerSecond * float64(time.Second))
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}
