package agentstream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/aideator/agentstream/pacer"
	"github.com/aideator/agentstream/stream"
	"github.com/aideator/agentstream/transport"
)

// errRunFinished signals an orderly run_complete, as opposed to a dropped
// connection that should trigger a reconnect.
var errRunFinished = errors.New("run finished")

// Selector submits winner selections for a run. The api package's Client
// satisfies this.
type Selector interface {
	SelectWinner(ctx context.Context, runID string, agentID int) error
}

// Coordinator owns the push-stream connection for one run at a time. It
// demultiplexes inbound events by agent id, filters structured log payloads
// out of the visible transcripts, routes display text through per-agent
// pacing buffers, and reconnects with exponential backoff when the stream
// drops.
//
// All methods are safe for concurrent use. Event handling runs on a single
// goroutine per active run; accessors can be called from any goroutine.
type Coordinator struct {
	cfg       internalConfig
	transport transport.Transport
	dispatch  map[stream.EventType]func(stream.Event) bool

	// lifecycleMu serializes StartStream and StopStream so two concurrent
	// starts cannot leave an orphaned connection loop behind.
	lifecycleMu sync.Mutex

	mu            sync.Mutex
	state         ConnectionState
	lastErr       error
	runID         string
	active        bool
	paused        bool
	winner        *int
	lastHeartbeat time.Time
	transcripts   map[int]*Transcript
	buffers       map[int]*pacer.Buffer
	logs          []stream.LogEntry
	agentErrors   map[int]string
	completed     map[int]bool
	cancel        context.CancelFunc
	done          chan struct{}
}

// New creates a Coordinator reading from t.
func New(t transport.Transport, opts ...Option) (*Coordinator, error) {
	if t == nil {
		return nil, NewStreamError("New", "", ErrInvalidConfig)
	}

	cfg := defaultInternalConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	c := &Coordinator{
		cfg:         cfg,
		transport:   t,
		state:       StateDisconnected,
		transcripts: make(map[int]*Transcript),
		buffers:     make(map[int]*pacer.Buffer),
		agentErrors: make(map[int]string),
		completed:   make(map[int]bool),
	}
	c.dispatch = map[stream.EventType]func(stream.Event) bool{
		stream.EventTypeContent:       c.handleContent,
		stream.EventTypeAgentError:    c.handleAgentError,
		stream.EventTypeAgentComplete: c.handleAgentComplete,
		stream.EventTypeRunComplete:   c.handleRunComplete,
		stream.EventTypeHeartbeat:     c.handleHeartbeat,
	}
	return c, nil
}

// =========================================================================
// Control surface
// =========================================================================

// StartStream connects to the event stream for runID. Any previous stream is
// stopped first. Starting a different run clears all per-agent state;
// starting the same run again is a reconnect and keeps transcripts as-is.
// The stream runs until RunComplete, StopStream, reconnect exhaustion, or
// ctx cancellation.
func (c *Coordinator) StartStream(ctx context.Context, runID string) error {
	if runID == "" {
		return NewStreamError("StartStream", runID, ErrInvalidRunID)
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.stop()

	c.mu.Lock()
	if c.runID != runID {
		c.resetAgentStateLocked()
	}
	c.runID = runID
	c.active = true
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel, c.done = cancel, done
	c.mu.Unlock()

	go c.run(runCtx, runID, done)
	return nil
}

// StopStream closes the connection and destroys every pacing buffer. Pending
// unemitted text is dropped. Once StopStream returns, no transcript mutates
// and no token callback fires. Safe to call when no stream is open.
func (c *Coordinator) StopStream() {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	c.stop()
	c.setState(StateDisconnected, nil)
}

func (c *Coordinator) stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.active = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	c.mu.Lock()
	buffers := c.buffers
	c.buffers = make(map[int]*pacer.Buffer)
	c.mu.Unlock()
	for _, b := range buffers {
		b.Destroy()
	}
}

// ClearStreams resets all per-agent transcripts, errors, and completion
// marks without touching connection state. Pending paced text is dropped
// with the transcripts it belonged to.
func (c *Coordinator) ClearStreams() {
	c.mu.Lock()
	buffers := c.buffers
	c.buffers = make(map[int]*pacer.Buffer)
	c.transcripts = make(map[int]*Transcript)
	c.agentErrors = make(map[int]string)
	c.completed = make(map[int]bool)
	c.winner = nil
	c.mu.Unlock()
	for _, b := range buffers {
		b.Destroy()
	}
}

// ClearLogs discards collected log entries, all of them or only those for
// the given agents.
func (c *Coordinator) ClearLogs(agentIDs ...int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(agentIDs) == 0 {
		c.logs = nil
		return
	}
	drop := make(map[int]bool, len(agentIDs))
	for _, id := range agentIDs {
		drop[id] = true
	}
	kept := c.logs[:0]
	for _, entry := range c.logs {
		if !drop[entry.AgentID] {
			kept = append(kept, entry)
		}
	}
	c.logs = kept
}

// PauseStream suspends paced emissions, for the given agents or for all of
// them. Pending text is preserved. Pausing all agents also applies to agents
// first seen while paused.
func (c *Coordinator) PauseStream(agentIDs ...int) {
	for _, b := range c.pickBuffers(agentIDs, true) {
		b.Pause()
	}
}

// ResumeStream resumes paced emissions, for the given agents or for all.
func (c *Coordinator) ResumeStream(agentIDs ...int) {
	for _, b := range c.pickBuffers(agentIDs, false) {
		b.Resume()
	}
}

func (c *Coordinator) pickBuffers(agentIDs []int, pause bool) []*pacer.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*pacer.Buffer
	if len(agentIDs) == 0 {
		c.paused = pause
		for _, b := range c.buffers {
			out = append(out, b)
		}
		return out
	}
	for _, id := range agentIDs {
		if b, ok := c.buffers[id]; ok {
			out = append(out, b)
		}
	}
	return out
}

// SelectAgent submits agentID as the winner of the active run. It fails with
// ErrNoActiveRun when no stream has been started, and propagates any
// selector failure to the caller.
func (c *Coordinator) SelectAgent(ctx context.Context, agentID int) error {
	c.mu.Lock()
	runID, active := c.runID, c.active
	c.mu.Unlock()

	if !active {
		return NewStreamError("SelectAgent", runID, ErrNoActiveRun)
	}
	if c.cfg.selector == nil {
		return NewStreamError("SelectAgent", runID, ErrNoSelector)
	}
	if err := c.cfg.selector.SelectWinner(ctx, runID, agentID); err != nil {
		return NewStreamError("SelectAgent", runID, err)
	}

	c.mu.Lock()
	id := agentID
	c.winner = &id
	c.mu.Unlock()
	c.cfg.logger.Info("winner selected",
		zap.String("run_id", runID),
		zap.Int("agent_id", agentID))
	return nil
}

// =========================================================================
// Connection loop
// =========================================================================

func (c *Coordinator) run(ctx context.Context, runID string, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		if c.done == done {
			c.cancel, c.done = nil, nil
			c.active = false
		}
		c.mu.Unlock()
		close(done)
	}()

	log := c.cfg.logger.With(zap.String("run_id", runID))
	bo := c.newBackoff()
	attempts := 0

	for {
		c.setState(StateConnecting, nil)
		conn, err := c.transport.Dial(ctx, runID)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(StateDisconnected, nil)
				return
			}
			if !c.retryWait(ctx, bo, &attempts, log, err) {
				return
			}
			continue
		}

		attempts = 0
		bo.Reset()
		c.setState(StateConnected, nil)
		log.Info("stream connected")

		err = c.consume(ctx, conn)
		conn.Close()

		switch {
		case errors.Is(err, errRunFinished):
			log.Info("run complete")
			c.setState(StateDisconnected, nil)
			return
		case ctx.Err() != nil:
			c.setState(StateDisconnected, nil)
			return
		default:
			// Dropped mid-run, io.EOF without run_complete included.
			if !c.retryWait(ctx, bo, &attempts, log, err) {
				return
			}
		}
	}
}

// retryWait sleeps out one backoff interval. It returns false when the
// attempt budget is spent or the context is canceled, meaning the loop
// should exit.
func (c *Coordinator) retryWait(ctx context.Context, bo backoff.BackOff, attempts *int, log *zap.Logger, cause error) bool {
	*attempts++
	c.cfg.metrics.Reconnect()

	if *attempts > c.cfg.maxRetryAttempts {
		log.Error("reconnect attempts exhausted",
			zap.Int("attempts", *attempts-1),
			zap.Error(cause))
		c.setState(StateError, fmt.Errorf("%w: %v", ErrRetriesExhausted, cause))
		return false
	}

	delay := bo.NextBackOff()
	log.Warn("stream dropped, reconnecting",
		zap.Int("attempt", *attempts),
		zap.Duration("delay", delay),
		zap.Error(cause))

	select {
	case <-ctx.Done():
		c.setState(StateDisconnected, nil)
		return false
	case <-time.After(delay):
		return true
	}
}

func (c *Coordinator) newBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.baseRetryDelay
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = c.cfg.maxRetryDelay
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

func (c *Coordinator) consume(ctx context.Context, conn transport.Conn) error {
	for {
		frame, err := conn.Next(ctx)
		if err != nil {
			return err
		}
		c.cfg.metrics.EventReceived(frame.Event)

		ev, err := stream.Decode(frame.Event, frame.Data)
		if err != nil {
			// A single bad frame is dropped, the stream stays up.
			c.cfg.metrics.ParseError()
			c.cfg.logger.Warn("dropping undecodable event",
				zap.String("event", frame.Event),
				zap.Error(err))
			continue
		}

		if handler, ok := c.dispatch[ev.Type()]; ok {
			if handler(ev) {
				return errRunFinished
			}
		}
	}
}

// =========================================================================
// Event handlers
//
// Handlers run on the connection loop goroutine only. They take c.mu for
// map access but always call pacing buffer methods outside it, because
// Complete and a full-buffer Add drain synchronously through the emit
// callback.
// =========================================================================

func (c *Coordinator) handleContent(ev stream.Event) bool {
	e := ev.(*stream.ContentEvent)

	cls := c.cfg.classifier(e.Text)
	if cls.Kind == stream.KindLog {
		entry := *cls.Log
		entry.AgentID = e.AgentID
		entry.SeenAt = time.Now()
		c.mu.Lock()
		c.logs = append(c.logs, entry)
		c.mu.Unlock()
		if c.cfg.onLog != nil {
			c.cfg.onLog(entry)
		}
		return false
	}

	if !c.bufferFor(e.AgentID).Add(cls.Display) {
		c.cfg.logger.Debug("content after completion dropped",
			zap.Int("agent_id", e.AgentID))
	}
	return false
}

func (c *Coordinator) handleAgentError(ev stream.Event) bool {
	e := ev.(*stream.AgentErrorEvent)

	c.mu.Lock()
	tr := c.transcripts[e.AgentID]
	if tr == nil {
		tr = NewTranscript(e.AgentID)
		c.transcripts[e.AgentID] = tr
	}
	c.agentErrors[e.AgentID] = e.Message
	c.mu.Unlock()

	// Errors bypass pacing: they show at once.
	tr.Append(fmt.Sprintf("\n[error] %s\n", e.Message))
	if c.cfg.onAgentError != nil {
		c.cfg.onAgentError(e.AgentID, e.Message)
	}
	return false
}

func (c *Coordinator) handleAgentComplete(ev stream.Event) bool {
	e := ev.(*stream.AgentCompleteEvent)

	c.mu.Lock()
	b := c.buffers[e.AgentID]
	c.completed[e.AgentID] = true
	c.mu.Unlock()

	if b != nil {
		b.Complete()
	}
	return false
}

func (c *Coordinator) handleRunComplete(stream.Event) bool {
	c.mu.Lock()
	buffers := c.buffers
	c.buffers = make(map[int]*pacer.Buffer)
	for id := range c.transcripts {
		c.completed[id] = true
	}
	c.mu.Unlock()

	// Flush whatever is still pending before tearing the buffers down, so
	// an orderly finish never loses text.
	for _, b := range buffers {
		b.Complete()
		b.Destroy()
	}
	return true
}

func (c *Coordinator) handleHeartbeat(stream.Event) bool {
	c.mu.Lock()
	c.lastHeartbeat = time.Now()
	c.mu.Unlock()
	return false
}

// bufferFor returns the pacing buffer for agentID, creating the buffer and
// its transcript on first sight of that agent.
func (c *Coordinator) bufferFor(agentID int) *pacer.Buffer {
	c.mu.Lock()
	if b, ok := c.buffers[agentID]; ok {
		c.mu.Unlock()
		return b
	}

	tr := c.transcripts[agentID]
	if tr == nil {
		tr = NewTranscript(agentID)
		c.transcripts[agentID] = tr
	}
	b := pacer.New(c.emitter(agentID, tr), &pacer.Config{
		TokensPerSecond:   c.cfg.tokensPerSecond,
		MinChunkSize:      c.cfg.minChunkSize,
		MaxBufferSize:     c.cfg.maxBufferSize,
		RespectBoundaries: c.cfg.respectBoundaries,
	})
	c.buffers[agentID] = b
	paused := c.paused
	c.mu.Unlock()

	if paused {
		b.Pause()
	}
	return b
}

func (c *Coordinator) emitter(agentID int, tr *Transcript) func(string) {
	return func(chunk string) {
		tr.Append(chunk)
		c.cfg.metrics.TokensEmitted(len(strings.Fields(chunk)))
		if c.cfg.onToken != nil {
			c.cfg.onToken(agentID, chunk)
		}
	}
}

func (c *Coordinator) setState(s ConnectionState, err error) {
	c.mu.Lock()
	if c.state == s && err == nil {
		c.mu.Unlock()
		return
	}
	c.state = s
	if err != nil {
		c.lastErr = err
	}
	cb := c.cfg.onStateChange
	c.mu.Unlock()

	if cb != nil {
		cb(s, err)
	}
}

func (c *Coordinator) resetAgentStateLocked() {
	c.transcripts = make(map[int]*Transcript)
	c.agentErrors = make(map[int]string)
	c.completed = make(map[int]bool)
	c.logs = nil
	c.winner = nil
}

// =========================================================================
// Accessors
// =========================================================================

// State returns the current connection state.
func (c *Coordinator) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the most recent terminal error, if any.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// RunID returns the id of the most recently started run.
func (c *Coordinator) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

// Active reports whether a stream is currently wanted (started and not yet
// stopped, completed, or failed terminally).
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Transcript returns the transcript for agentID, or nil if that agent has
// not been seen.
func (c *Coordinator) Transcript(agentID int) *Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcripts[agentID]
}

// Agents returns the ids of all agents seen so far, sorted.
func (c *Coordinator) Agents() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int, 0, len(c.transcripts))
	for id := range c.transcripts {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Logs returns collected log entries in arrival order, all of them or only
// those for the given agents.
func (c *Coordinator) Logs(agentIDs ...int) []stream.LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(agentIDs) == 0 {
		out := make([]stream.LogEntry, len(c.logs))
		copy(out, c.logs)
		return out
	}
	want := make(map[int]bool, len(agentIDs))
	for _, id := range agentIDs {
		want[id] = true
	}
	var out []stream.LogEntry
	for _, entry := range c.logs {
		if want[entry.AgentID] {
			out = append(out, entry)
		}
	}
	return out
}

// AgentError returns the recorded error message for agentID, if any.
func (c *Coordinator) AgentError(agentID int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.agentErrors[agentID]
	return msg, ok
}

// Completed reports whether agentID has finished streaming.
func (c *Coordinator) Completed(agentID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed[agentID]
}

// Winner returns the agent id submitted via SelectAgent, if any.
func (c *Coordinator) Winner() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.winner == nil {
		return 0, false
	}
	return *c.winner, true
}

// LastHeartbeat returns when the last heartbeat event arrived, zero if none
// has.
func (c *Coordinator) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeat
}
