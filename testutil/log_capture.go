package testutil

import (
	"bytes"
	"io"
	"log"
	"strings"
	"sync"
)

// LogCapture redirects the default logger into a buffer so tests can assert
// on operational log lines (watcher startup, fallback transitions, command
// dispatch). The capture is itself the io.Writer, so reads and logger writes
// share one mutex.
type LogCapture struct {
	buf      bytes.Buffer
	mu       sync.Mutex
	original io.Writer
}

// NewLogCapture remembers the current log destination for restore on Stop.
func NewLogCapture() *LogCapture {
	return &LogCapture{original: log.Writer()}
}

// Start points the default logger at the capture buffer.
func (lc *LogCapture) Start() {
	log.SetOutput(lc)
}

// Stop restores the original log destination.
func (lc *LogCapture) Stop() {
	log.SetOutput(lc.original)
}

// Write appends logger output to the buffer.
func (lc *LogCapture) Write(p []byte) (int, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buf.Write(p)
}

// String returns everything captured so far.
func (lc *LogCapture) String() string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buf.String()
}

// Contains reports whether the captured output includes substr.
func (lc *LogCapture) Contains(substr string) bool {
	return strings.Contains(lc.String(), substr)
}

// ContainsAll reports whether the captured output includes every substring.
func (lc *LogCapture) ContainsAll(substrs ...string) bool {
	content := lc.String()
	for _, substr := range substrs {
		if !strings.Contains(content, substr) {
			return false
		}
	}
	return true
}
