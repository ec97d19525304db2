package ipc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// StatusSnapshot represents the daemon's recording state at a point in time.
type StatusSnapshot struct {
	State           string    `json:"state"`                      // "idle" | "recording"
	SessionID       string    `json:"session_id,omitempty"`      // active bag directory name
	OutputURI       string    `json:"output_uri,omitempty"`      // active bag directory path
	StartedAt       time.Time `json:"started_at,omitempty"`      // active session start
	DurationSeconds int       `json:"duration_seconds,omitempty"` // seconds since session start
	RecordAll       bool      `json:"record_all"`                // wildcard scope active
	Topics          []string  `json:"topics,omitempty"`          // explicit topic scope
	LastError       string    `json:"last_error,omitempty"`      // most recent begin/end failure
	Timestamp       time.Time `json:"timestamp"`                 // snapshot time
}

// WriteStatus persists a StatusSnapshot to the cache dir using atomic write.
func WriteStatus(status *StatusSnapshot) error {
	if err := os.MkdirAll(CacheDir(), 0755); err != nil {
		return err
	}
	return atomicWriteJSON(filepath.Join(CacheDir(), "status.json"), status)
}

// ReadStatus loads the StatusSnapshot from the cache dir.
func ReadStatus() (*StatusSnapshot, error) {
	data, err := os.ReadFile(filepath.Join(CacheDir(), "status.json"))
	if err != nil {
		return nil, err
	}

	var status StatusSnapshot
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}

	return &status, nil
}

// atomicWriteJSON writes data to a file atomically using temp file + rename.
func atomicWriteJSON(path string, data interface{}) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "status-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	// Ensure cleanup on error
	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	// Write JSON with indentation for readability
	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return err
	}

	// Sync to disk before rename
	if err := tmpFile.Sync(); err != nil {
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}
	tmpFile = nil // Prevent defer cleanup

	// Atomic rename
	return os.Rename(tmpPath, path)
}
