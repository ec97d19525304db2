package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/daqflow/bagcap/internal/bus"
)

// record is the CBOR envelope for one captured message.
type record struct {
	Topic   string `cbor:"topic"`
	Type    string `cbor:"type,omitempty"`
	LogTime int64  `cbor:"log_time"` // Unix nanoseconds
	Data    []byte `cbor:"data"`
}

// BagWriter writes messages as a CBOR sequence into zstd-compressed segment
// files under the session directory, rolling to a new segment when the
// configured rotation span (or size limit, if set) is exceeded.
type BagWriter struct {
	opts Options
	now  func() time.Time

	file     *os.File
	buf      *bufio.Writer
	zw       *zstd.Encoder
	enc      *cbor.Encoder
	segIndex int
	segStart time.Time
	segBytes int64 // uncompressed payload bytes in current segment
}

// Open creates the session directory and the first segment. Failures wrap
// ErrUnavailable so callers can distinguish storage faults from logic faults.
func Open(opts Options) (Writer, error) {
	if opts.CacheBytes <= 0 {
		opts.CacheBytes = DefaultCacheBytes
	}
	if opts.Format == "" {
		opts.Format = FormatCBORZstd
	}

	if err := os.MkdirAll(opts.OutputURI, 0755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrUnavailable, opts.OutputURI, err)
	}

	w := &BagWriter{opts: opts, now: time.Now}
	if err := w.openSegment(); err != nil {
		return nil, err
	}
	return w, nil
}

// WriteMessage appends one message to the current segment, rolling first if
// the segment has exceeded its rotation span or size limit.
func (w *BagWriter) WriteMessage(msg bus.Message) error {
	if w.file == nil {
		return fmt.Errorf("%w: writer is closed", ErrUnavailable)
	}

	if w.shouldRotate() {
		if err := w.closeSegment(); err != nil {
			return err
		}
		if err := w.openSegment(); err != nil {
			return err
		}
	}

	logTime := msg.Received
	if logTime.IsZero() {
		logTime = w.now()
	}
	rec := record{
		Topic:   msg.Topic,
		Type:    msg.Type,
		LogTime: logTime.UnixNano(),
		Data:    msg.Data,
	}
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("%w: encode record: %v", ErrUnavailable, err)
	}
	w.segBytes += int64(len(msg.Data))
	return nil
}

// Close flushes and closes the current segment. Safe to call once; the
// capture session guarantees single-caller discipline.
func (w *BagWriter) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.closeSegment()
	w.file = nil
	return err
}

// SegmentCount returns how many segments have been opened so far.
func (w *BagWriter) SegmentCount() int {
	return w.segIndex
}

func (w *BagWriter) shouldRotate() bool {
	if w.opts.MaxDuration > 0 && w.now().Sub(w.segStart) >= w.opts.MaxDuration {
		return true
	}
	if w.opts.MaxFileBytes > 0 && w.segBytes >= w.opts.MaxFileBytes {
		return true
	}
	return false
}

func (w *BagWriter) openSegment() error {
	name := fmt.Sprintf("segment_%04d.cbz", w.segIndex)
	f, err := os.OpenFile(filepath.Join(w.opts.OutputURI, name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("%w: open segment %s: %v", ErrUnavailable, name, err)
	}

	buf := bufio.NewWriterSize(f, w.opts.CacheBytes)
	zw, err := zstd.NewWriter(buf)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: init compressor: %v", ErrUnavailable, err)
	}

	w.file = f
	w.buf = buf
	w.zw = zw
	w.enc = cbor.NewEncoder(zw)
	w.segIndex++
	w.segStart = w.now()
	w.segBytes = 0
	return nil
}

func (w *BagWriter) closeSegment() error {
	if err := w.zw.Close(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("%w: flush compressor: %v", ErrUnavailable, err)
	}
	if err := w.buf.Flush(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("%w: flush cache: %v", ErrUnavailable, err)
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("%w: sync segment: %v", ErrUnavailable, err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("%w: close segment: %v", ErrUnavailable, err)
	}
	return nil
}
