package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/daqflow/bagcap/internal/diaglog"
)

// Metadata is the sidecar JSON written into the bag directory when a
// session ends.
type Metadata struct {
	Version    string    `json:"version"`
	SessionID  string    `json:"session_id"`
	StartedAt  time.Time `json:"started_at"`
	StoppedAt  time.Time `json:"stopped_at"`
	Duration   string    `json:"duration"`
	DurationMs int64     `json:"duration_ms"`
	RecordAll  bool      `json:"record_all"`
	Topics     []string  `json:"topics,omitempty"`
	Format     string    `json:"format"`
	OutputURI  string    `json:"output_uri"`
	Segments   int       `json:"segments,omitempty"`
}

// segmentCounter is implemented by writers that track their segment count.
type segmentCounter interface {
	SegmentCount() int
}

// writeMetadata writes <OutputURI>/session.json atomically (temp + rename).
func (s *Session) writeMetadata(stoppedAt time.Time) error {
	duration := stoppedAt.Sub(s.startedAt)
	meta := Metadata{
		Version:    diaglog.Version,
		SessionID:  s.id,
		StartedAt:  s.startedAt,
		StoppedAt:  stoppedAt,
		Duration:   duration.String(),
		DurationMs: duration.Milliseconds(),
		RecordAll:  s.scope.RecordAll,
		Topics:     s.scope.Topics,
		Format:     s.opts.Format,
		OutputURI:  s.opts.OutputURI,
	}
	if sc, ok := s.writer.(segmentCounter); ok {
		meta.Segments = sc.SegmentCount()
	}

	metaPath := filepath.Join(s.opts.OutputURI, "session.json")
	tmpFile, err := os.CreateTemp(s.opts.OutputURI, "session-*.tmp")
	if err != nil {
		return fmt.Errorf("create metadata temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(meta); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync metadata: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close metadata temp: %w", err)
	}
	success = true

	if err := os.Rename(tmpPath, metaPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename metadata: %w", err)
	}
	return nil
}
