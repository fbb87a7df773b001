// internal/agent/history.go
package agent

import (
	"fmt"
	"sync"
)

// History is the append-only context buffer shared between the planner and
// the escalation controller for the lifetime of one task. Each task gets its
// own instance; entries are never rewritten.
type History struct {
	mu      sync.Mutex
	entries []string
}

// NewHistory creates an empty history buffer.
func NewHistory() *History {
	return &History{}
}

// Append records one entry.
func (h *History) Append(entry string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
}

// AppendStep records the outcome of one executed action.
func (h *History) AppendStep(step int, summary string, ok bool) {
	status := "OK"
	if !ok {
		status = "FAILED"
	}
	h.Append(fmt.Sprintf("step %d: %s [%s]", step, summary, status))
}

// Tail returns the trailing window of entries, most recent last.
func (h *History) Tail(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n <= 0 || n >= len(h.entries) {
		n = len(h.entries)
	}
	tail := make([]string, n)
	copy(tail, h.entries[len(h.entries)-n:])
	return tail
}

// Len reports the number of recorded entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
