package agentstream

import (
	"strings"
	"sync"
)

// Transcript is the ordered, append-only text an agent has produced so far.
// It is safe for concurrent use: pacing timers append while the UI reads.
type Transcript struct {
	agentID int

	mu        sync.RWMutex
	fragments []string
	size      int
}

// NewTranscript returns an empty transcript for agentID.
func NewTranscript(agentID int) *Transcript {
	return &Transcript{agentID: agentID}
}

// AgentID returns the agent this transcript belongs to.
func (t *Transcript) AgentID() int {
	return t.agentID
}

// Append adds one fragment at the end.
func (t *Transcript) Append(fragment string) {
	if fragment == "" {
		return
	}
	t.mu.Lock()
	t.fragments = append(t.fragments, fragment)
	t.size += len(fragment)
	t.mu.Unlock()
}

// Fragments returns a copy of the fragments in arrival order.
func (t *Transcript) Fragments() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.fragments))
	copy(out, t.fragments)
	return out
}

// String returns the full transcript text.
func (t *Transcript) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var b strings.Builder
	b.Grow(t.size)
	for _, f := range t.fragments {
		b.WriteString(f)
	}
	return b.String()
}

// Len returns the total text length in bytes.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size
}
