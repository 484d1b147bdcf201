package agentstream

import (
	"fmt"
	"sync"
	"testing"
)

func TestTranscript_AppendAndRead(t *testing.T) {
	tr := NewTranscript(4)
	if tr.AgentID() != 4 {
		t.Errorf("AgentID() = %d, want 4", tr.AgentID())
	}

	tr.Append("Hello")
	tr.Append("")
	tr.Append(" World")

	if got := tr.String(); got != "Hello World" {
		t.Errorf("String() = %q, want %q", got, "Hello World")
	}
	if got := tr.Len(); got != len("Hello World") {
		t.Errorf("Len() = %d, want %d", got, len("Hello World"))
	}
	// Empty fragments are not stored.
	if got := len(tr.Fragments()); got != 2 {
		t.Errorf("len(Fragments()) = %d, want 2", got)
	}
}

func TestTranscript_ConcurrentAppend(t *testing.T) {
	tr := NewTranscript(0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Append(fmt.Sprintf("[%d:%d]", n, j))
			}
		}(i)
	}
	wg.Wait()

	if got := len(tr.Fragments()); got != 800 {
		t.Errorf("len(Fragments()) = %d, want 800", got)
	}
}
