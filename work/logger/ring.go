package logger

import (
	"strings"
	"sync"
	"time"
)

// maxDiagnostics caps the in-memory diagnostics ring.
const maxDiagnostics = 1000

// Entry is one captured log line as served by the diagnostics endpoint.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component,omitempty"`
	Message   string `json:"message"`
}

type ring struct {
	mu      sync.Mutex
	entries []Entry
}

var diagnostics = &ring{entries: make([]Entry, 0, maxDiagnostics)}

func (r *ring) add(lvl LogLevel, component, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, Entry{
		Timestamp: time.Now().Format("2006-01-02 15:04:05"),
		Level:     strings.ToLower(lvl.String()),
		Component: component,
		Message:   message,
	})
	if len(r.entries) > maxDiagnostics {
		r.entries = r.entries[len(r.entries)-maxDiagnostics:]
	}
}

// Recent returns a copy of the captured log lines, oldest first.
func Recent() []Entry {
	diagnostics.mu.Lock()
	defer diagnostics.mu.Unlock()

	out := make([]Entry, len(diagnostics.entries))
	copy(out, diagnostics.entries)
	return out
}

// ClearRecent empties the diagnostics ring.
func ClearRecent() {
	diagnostics.mu.Lock()
	defer diagnostics.mu.Unlock()
	diagnostics.entries = diagnostics.entries[:0]
}
