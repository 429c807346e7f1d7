// Package replay persists a hosted session's outbound traffic so a play
// session can be inspected after the fact: reactive events as a compressed
// JSONL log, periodic state frames as a compressed binary stream.
package replay

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"flyknight/netplay/internal/logging"
)

// flushInterval batches buffered frames before they hit the zstd stream.
const flushInterval = 200 * time.Millisecond

// Manifest describes the bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version    int    `json:"version"`
	CreatedAt  string `json:"created_at"`
	EventsPath string `json:"events_path"`
	FramesPath string `json:"frames_path"`
}

type frameBlob struct {
	capturedAt time.Time
	payload    []byte
}

// Recorder streams session artefacts to disk. It implements the host's
// broadcast sink.
type Recorder struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
	log *logging.Logger

	eventFile   *os.File
	eventStream *snappy.Writer
	frameFile   *os.File
	frameStream *zstd.Encoder

	pending   []frameBlob
	lastFlush time.Time

	events uint64
	frames uint64
	closed bool
}

// Option configures optional Recorder behaviour.
type Option func(*Recorder)

// WithClock overrides the time source; primarily used in tests.
func WithClock(clock func() time.Time) Option {
	return func(r *Recorder) {
		if clock != nil {
			r.now = clock
		}
	}
}

// NewRecorder creates a timestamped bundle directory under root and opens the
// compressed sinks.
func NewRecorder(root string, logger *logging.Logger, opts ...Option) (*Recorder, error) {
	if root == "" {
		return nil, fmt.Errorf("replay root must be provided")
	}
	if logger == nil {
		logger = logging.L()
	}
	r := &Recorder{now: time.Now, log: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	created := r.now().UTC()
	r.dir = filepath.Join(root, fmt.Sprintf("session-%s", created.Format("20060102T150405Z")))
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, err
	}

	eventsPath := filepath.Join(r.dir, "events.jsonl.sz")
	framesPath := filepath.Join(r.dir, "frames.bin.zst")

	eventFile, err := os.Create(eventsPath)
	if err != nil {
		return nil, err
	}
	frameFile, err := os.Create(framesPath)
	if err != nil {
		eventFile.Close()
		return nil, err
	}
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		eventFile.Close()
		frameFile.Close()
		return nil, err
	}

	manifest := Manifest{
		Version:    1,
		CreatedAt:  created.Format(time.RFC3339Nano),
		EventsPath: "events.jsonl.sz",
		FramesPath: "frames.bin.zst",
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		frameStream.Close()
		frameFile.Close()
		eventFile.Close()
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(r.dir, "manifest.json"), data, 0o644); err != nil {
		frameStream.Close()
		frameFile.Close()
		eventFile.Close()
		return nil, err
	}

	r.eventFile = eventFile
	r.eventStream = snappy.NewBufferedWriter(eventFile)
	r.frameFile = frameFile
	r.frameStream = frameStream
	return r, nil
}

// Directory exposes the directory backing the bundle.
func (r *Recorder) Directory() string {
	if r == nil {
		return ""
	}
	return r.dir
}

// RecordEvent appends one reactive broadcast to the compressed event log.
func (r *Recorder) RecordEvent(messageType string, encoded []byte) error {
	if r == nil {
		return nil
	}
	captured := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("recorder closed")
	}
	record := struct {
		CapturedAt string `json:"captured_at"`
		Type       string `json:"type"`
		PayloadB64 string `json:"payload_b64"`
	}{
		CapturedAt: captured.Format(time.RFC3339Nano),
		Type:       messageType,
		PayloadB64: base64.StdEncoding.EncodeToString(encoded),
	}
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if _, err := r.eventStream.Write(append(line, '\n')); err != nil {
		return err
	}
	r.events++
	return r.eventStream.Flush()
}

// RecordFrame buffers one encoded game_state frame until the flush cadence is
// reached.
func (r *Recorder) RecordFrame(encoded []byte) error {
	if r == nil {
		return nil
	}
	captured := r.now().UTC()
	clone := append([]byte(nil), encoded...)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("recorder closed")
	}
	r.pending = append(r.pending, frameBlob{capturedAt: captured, payload: clone})
	if r.lastFlush.IsZero() {
		r.lastFlush = captured
		return nil
	}
	if captured.Sub(r.lastFlush) >= flushInterval {
		if err := r.flushLocked(); err != nil {
			return err
		}
		r.lastFlush = captured
	}
	return nil
}

// Close flushes all buffers, releases the file handles, and logs a size
// summary of what was captured. Idempotent.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var firstErr error
	if err := r.flushLocked(); err != nil {
		firstErr = err
	}
	if err := r.eventStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.eventFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.frameStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.frameFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	r.log.Info("replay bundle closed",
		logging.String("dir", r.dir),
		logging.Int64("events", int64(r.events)),
		logging.Int64("frames", int64(r.frames)),
		logging.String("events_size", humanize.Bytes(fileSize(filepath.Join(r.dir, "events.jsonl.sz")))),
		logging.String("frames_size", humanize.Bytes(fileSize(filepath.Join(r.dir, "frames.bin.zst")))))
	return firstErr
}

// flushLocked writes buffered frames length-prefixed into the zstd stream.
func (r *Recorder) flushLocked() error {
	if len(r.pending) == 0 {
		return nil
	}
	for _, frame := range r.pending {
		header := make([]byte, 8+4)
		binary.LittleEndian.PutUint64(header[0:8], uint64(frame.capturedAt.UnixNano()))
		binary.LittleEndian.PutUint32(header[8:12], uint32(len(frame.payload)))
		if _, err := r.frameStream.Write(header); err != nil {
			return err
		}
		if _, err := r.frameStream.Write(frame.payload); err != nil {
			return err
		}
		r.frames++
	}
	r.pending = r.pending[:0]
	return nil
}

func fileSize(path string) uint64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return uint64(info.Size())
}
