package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	defaultAgentCount  = 3
	defaultHeartbeat   = 5 * time.Second
	defaultEventRate   = rate.Limit(20) // content events per second per agent
	defaultEventBurst  = 5
	subscriberChanSize = 256
)

// Config holds server tuning knobs. Zero values get sensible defaults.
type Config struct {
	// AgentCount is used when a run request does not specify one.
	AgentCount int

	// Heartbeat is the interval between heartbeat events per run.
	Heartbeat time.Duration

	// EventRate throttles content events per agent, simulating model
	// latency in scripted mode.
	EventRate rate.Limit

	// EventBurst is the rate limiter burst size.
	EventBurst int

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

func (c *Config) withDefaults() Config {
	out := Config{
		AgentCount: defaultAgentCount,
		Heartbeat:  defaultHeartbeat,
		EventRate:  defaultEventRate,
		EventBurst: defaultEventBurst,
		Logger:     zap.NewNop(),
	}
	if c == nil {
		return out
	}
	if c.AgentCount > 0 {
		out.AgentCount = c.AgentCount
	}
	if c.Heartbeat > 0 {
		out.Heartbeat = c.Heartbeat
	}
	if c.EventRate > 0 {
		out.EventRate = c.EventRate
	}
	if c.EventBurst > 0 {
		out.EventBurst = c.EventBurst
	}
	if c.Logger != nil {
		out.Logger = c.Logger
	}
	return out
}

// event is one named frame to broadcast.
type event struct {
	Name string
	Data json.RawMessage
}

// Server implements the run protocol over HTTP. Create one, mount Handler()
// on an http.Server, and point clients at it.
type Server struct {
	streamer Streamer
	cfg      Config
	logger   *zap.Logger

	mu   sync.Mutex
	runs map[string]*run
}

// NewServer returns a Server producing agent output from streamer.
func NewServer(streamer Streamer, cfg *Config) *Server {
	resolved := cfg.withDefaults()
	return &Server{
		streamer: streamer,
		cfg:      resolved,
		logger:   resolved.Logger,
		runs:     make(map[string]*run),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/runs", s.handleCreateRun)
	mux.HandleFunc("GET /v1/runs/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /v1/runs/{id}/ws", s.handleWS)
	mux.HandleFunc("POST /v1/runs/{id}/winner", s.handleWinner)
	return mux
}

// Shutdown cancels all in-flight runs.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		r.cancel()
	}
}

// =========================================================================
// Run state and broadcasting
// =========================================================================

type run struct {
	id         string
	agentCount int
	cancel     context.CancelFunc

	mu      sync.Mutex
	history []event
	subs    map[chan event]struct{}
	winner  *int
}

func (r *run) publish(ev event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, ev)
	for ch := range r.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; it will miss this event.
		}
	}
}

// subscribe replays the run's history and then delivers live events.
func (r *run) subscribe() (chan event, func()) {
	ch := make(chan event, subscriberChanSize)
	r.mu.Lock()
	for _, ev := range r.history {
		select {
		case ch <- ev:
		default:
		}
	}
	r.subs[ch] = struct{}{}
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		delete(r.subs, ch)
		r.mu.Unlock()
	}
	return ch, cancel
}

func payload(fields map[string]any) json.RawMessage {
	fields["timestamp"] = time.Now().Format(time.RFC3339Nano)
	data, _ := json.Marshal(fields)
	return data
}

// =========================================================================
// Producers
// =========================================================================

func (s *Server) startRun(prompt string, agentCount int) *run {
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:         uuid.NewString(),
		agentCount: agentCount,
		cancel:     cancel,
		subs:       make(map[chan event]struct{}),
	}

	s.mu.Lock()
	s.runs[r.id] = r
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < agentCount; i++ {
		agentID := i
		g.Go(func() error {
			s.streamAgent(gctx, r, agentID, prompt)
			return nil
		})
	}

	// Heartbeats until the run finishes.
	hbCtx, hbCancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(s.cfg.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				r.publish(event{Name: "heartbeat", Data: payload(map[string]any{})})
			}
		}
	}()

	go func() {
		g.Wait()
		hbCancel()
		r.publish(event{Name: "run_complete", Data: payload(map[string]any{})})
		s.logger.Info("run complete", zap.String("run_id", r.id))
	}()

	s.logger.Info("run started",
		zap.String("run_id", r.id),
		zap.Int("agent_count", agentCount))
	return r
}

func (s *Server) streamAgent(ctx context.Context, r *run, agentID int, prompt string) {
	limiter := rate.NewLimiter(s.cfg.EventRate, s.cfg.EventBurst)

	emit := func(text string) error {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		r.publish(event{Name: "content", Data: payload(map[string]any{
			"agentId": agentID,
			"text":    text,
		})})
		return nil
	}

	if err := s.streamer.Stream(ctx, agentID, prompt, emit); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("agent failed",
			zap.String("run_id", r.id),
			zap.Int("agent_id", agentID),
			zap.Error(err))
		r.publish(event{Name: "agent_error", Data: payload(map[string]any{
			"agentId": agentID,
			"message": err.Error(),
		})})
		return
	}

	r.publish(event{Name: "agent_complete", Data: payload(map[string]any{
		"agentId": agentID,
	})})
}

// =========================================================================
// Handlers
// =========================================================================

type createRunRequest struct {
	Prompt     string `json:"prompt"`
	AgentCount int    `json:"agentCount"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, req *http.Request) {
	var body createRunRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Prompt == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}
	agentCount := body.AgentCount
	if agentCount <= 0 {
		agentCount = s.cfg.AgentCount
	}

	r := s.startRun(body.Prompt, agentCount)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"runId": r.id})
}

func (s *Server) lookupRun(w http.ResponseWriter, req *http.Request) *run {
	s.mu.Lock()
	r := s.runs[req.PathValue("id")]
	s.mu.Unlock()
	if r == nil {
		http.Error(w, "run not found", http.StatusNotFound)
	}
	return r
}

func (s *Server) handleEvents(w http.ResponseWriter, req *http.Request) {
	r := s.lookupRun(w, req)
	if r == nil {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch, cancel := r.subscribe()
	defer cancel()

	for {
		select {
		case <-req.Context().Done():
			return
		case ev := <-ch:
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, ev.Data)
			flusher.Flush()
			if ev.Name == "run_complete" {
				return
			}
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, req *http.Request) {
	r := s.lookupRun(w, req)
	if r == nil {
		return
	}

	conn, err := websocket.Accept(w, req, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "server shutting down")

	ch, cancel := r.subscribe()
	defer cancel()

	for {
		select {
		case <-req.Context().Done():
			return
		case ev := <-ch:
			env, _ := json.Marshal(map[string]any{
				"event": ev.Name,
				"data":  ev.Data,
			})
			if err := conn.Write(req.Context(), websocket.MessageText, env); err != nil {
				return
			}
			if ev.Name == "run_complete" {
				conn.Close(websocket.StatusNormalClosure, "run complete")
				return
			}
		}
	}
}

type winnerRequest struct {
	AgentID *int `json:"agentId"`
}

func (s *Server) handleWinner(w http.ResponseWriter, req *http.Request) {
	r := s.lookupRun(w, req)
	if r == nil {
		return
	}

	var body winnerRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.AgentID == nil {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}
	if *body.AgentID < 0 || *body.AgentID >= r.agentCount {
		http.Error(w, "unknown agent id", http.StatusBadRequest)
		return
	}

	r.mu.Lock()
	r.winner = body.AgentID
	r.mu.Unlock()

	s.logger.Info("winner recorded",
		zap.String("run_id", r.id),
		zap.Int("agent_id", *body.AgentID))
	w.WriteHeader(http.StatusNoContent)
}

// Winner returns the recorded winner for a run, if any.
func (s *Server) Winner(runID string) (int, bool) {
	s.mu.Lock()
	r := s.runs[runID]
	s.mu.Unlock()
	if r == nil {
		return 0, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.winner == nil {
		return 0, false
	}
	return *r.winner, true
}
