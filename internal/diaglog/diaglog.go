// Package diaglog provides structured NDJSON diagnostic logging for bagcap.
// Activated by BAGCAP_DEBUG_CAPTURE=true. When the env var is absent, all
// Log calls are no-ops and no file is created.
package diaglog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// ── Component labels ─────────────────────────────────────────────────────────

const (
	ComponentController     = "session-controller"
	ComponentCaptureSession = "capture-session"
	ComponentControlChannel = "control-channel"
	ComponentCommandWatcher = "command-watcher"
	ComponentBagWriter      = "bag-writer"
	ComponentCore           = "bagcap-core"
	ComponentDiagExport     = "diag-export"
)

// ── Event names ──────────────────────────────────────────────────────────────

const (
	EventSignalReceived     = "signal_received"
	EventCaptureBegin       = "capture_begin"
	EventCaptureBeginFailed = "capture_begin_failed"
	EventCaptureEnd         = "capture_end"
	EventCaptureEndFailed   = "capture_end_failed"
	EventCaptureReset       = "capture_reset"
	EventWriteError         = "write_error"
	EventWSConnect          = "ws_connect"
	EventWSDisconnect       = "ws_disconnect"
	EventWSFrame            = "ws_frame"
	EventCommandReceived    = "command_received"
)

// ── LogEntry ─────────────────────────────────────────────────────────────────

// LogEntry is one structured event record written as a single JSON line.
type LogEntry struct {
	Timestamp string      `json:"ts"`                   // RFC3339Nano
	Component string      `json:"component"`            // see Component* constants
	Event     string      `json:"event"`                // see Event* constants
	SessionID string      `json:"session_id,omitempty"` // active capture session
	Reason    string      `json:"reason,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// ── Logger ───────────────────────────────────────────────────────────────────

// Logger writes LogEntry values to a rolling NDJSON file. When debug mode is
// disabled every Log call is a no-op.
type Logger struct {
	rw      *rollingWriter
	mu      sync.Mutex
	enabled bool
}

// New opens (or creates) the NDJSON log file at path. If debug mode is
// disabled, path is ignored and a no-op logger is returned.
func New(path string) (*Logger, error) {
	if !IsDebugEnabled() {
		return &Logger{enabled: false}, nil
	}
	rw, err := newRollingWriter(path, 10*1024*1024)
	if err != nil {
		return nil, err
	}
	return &Logger{rw: rw, enabled: true}, nil
}

// Log serialises entry to JSON, appends a newline, and writes to the rolling
// file.
func (l *Logger) Log(entry LogEntry) {
	if l == nil || !l.enabled {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.rw.Write(data)
}

// Close flushes and closes the underlying file. Safe on nil/disabled logger.
func (l *Logger) Close() error {
	if l == nil || !l.enabled || l.rw == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rw.close()
}

// IsDebugEnabled reports whether BAGCAP_DEBUG_CAPTURE is set to "true".
func IsDebugEnabled() bool {
	return os.Getenv("BAGCAP_DEBUG_CAPTURE") == "true"
}

// NewNoOp returns a logger where every Log call is a no-op. Use as a safe
// fallback when New fails (e.g., disk full, permissions error).
func NewNoOp() *Logger {
	return &Logger{enabled: false}
}
