// Package devserver is a self-contained run server for local development and
// end-to-end tests. It speaks the same protocol as the production backend:
// run creation, SSE and WebSocket event streams, and winner selection. Agent
// output comes from a pluggable Streamer, either scripted text or a live
// Anthropic model.
package devserver

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// Streamer produces one agent's output for a prompt, calling emit for each
// text fragment as it becomes available. Returning an error marks the agent
// as failed; other agents are unaffected.
type Streamer interface {
	Stream(ctx context.Context, agentID int, prompt string, emit func(text string) error) error
}

// Scripted replays canned text fragments, varying slightly per agent so
// panels are distinguishable. It never fails.
type Scripted struct {
	// Chunks are emitted in order for every agent. Empty means a small
	// built-in script.
	Chunks []string
}

var defaultScript = []string{
	"Thinking about ",
	"the prompt... ",
	"here is my answer: ",
	"a paced stream ",
	"of text fragments, ",
	"arriving burst by burst.",
}

// Stream implements Streamer.
func (s *Scripted) Stream(ctx context.Context, agentID int, _ string, emit func(string) error) error {
	chunks := s.Chunks
	if len(chunks) == 0 {
		chunks = defaultScript
	}
	if err := emit(fmt.Sprintf("[agent %d] ", agentID)); err != nil {
		return err
	}
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(chunk); err != nil {
			return err
		}
	}
	return nil
}

// Anthropic streams real model output. Every agent runs the same prompt
// independently, which is the whole point of a comparison run.
type Anthropic struct {
	Client    anthropic.Client
	Model     anthropic.Model
	MaxTokens int64
}

// Stream implements Streamer by forwarding text deltas as they arrive.
func (a *Anthropic) Stream(ctx context.Context, _ int, prompt string, emit func(string) error) error {
	model := a.Model
	if model == "" {
		model = anthropic.Model("claude-sonnet-4-5-20250929")
	}
	maxTokens := a.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	stream := a.Client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if err := emit(delta.Text); err != nil {
					return err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("streaming error: %w", err)
	}
	return nil
}
