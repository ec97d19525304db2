// Package storage defines the writer service a capture session records
// through, plus the bag writer implementation: a directory of time-rotated,
// zstd-compressed CBOR segment files.
package storage

import (
	"errors"
	"time"

	"github.com/daqflow/bagcap/internal/bus"
)

// ErrUnavailable marks storage errors (target path cannot be opened or
// written). The controller reports these and returns to idle rather than
// crashing the process.
var ErrUnavailable = errors.New("storage unavailable")

const (
	// DefaultCacheBytes is the fixed in-memory write-cache budget per session.
	DefaultCacheBytes = 10485760

	// FormatCBORZstd identifies the structured binary segment format.
	FormatCBORZstd = "cbor+zstd"
)

// Options describes one recording target.
type Options struct {
	OutputURI    string        // Session directory; created on open
	MaxDuration  time.Duration // Time-based segment rotation span
	MaxFileBytes int64         // Size-based rotation; 0 disables it
	CacheBytes   int           // Write-cache budget before flush
	Format       string        // Segment format identifier
	SnapshotMode bool          // Buffer-only mode; off in this design
}

// Writer persists captured messages. Implementations are single-caller:
// the capture session serializes WriteMessage and Close.
type Writer interface {
	WriteMessage(msg bus.Message) error
	Close() error
}

// OpenFunc allocates a Writer for the given options. The bag writer's Open
// satisfies it; tests substitute fakes.
type OpenFunc func(opts Options) (Writer, error)
