// Package trace records one JSON snapshot per tick into a zstd-compressed
// JSON Lines file and reads it back.
package trace

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/cory-johannsen/fleetsim/internal/sim/world"
)

// Ext is the file extension of a trace.
const Ext = ".jsonl.zst"

// ErrClosed reports a write to a closed Writer.
var ErrClosed = errors.New("trace writer closed")

// Path returns the trace file for runID under dir.
func Path(dir string, runID uuid.UUID) string {
	return filepath.Join(dir, runID.String()+Ext)
}

// Writer appends snapshots to a single trace file.
// It is safe for concurrent use.
type Writer struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

// Create opens a new trace for runID under dir, creating dir if needed.
//
// Postcondition: the file exists and is empty until the first Record.
func Create(dir string, runID uuid.UUID) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating trace dir %q: %w", dir, err)
	}
	path := Path(dir, runID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening trace %q: %w", path, err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	return &Writer{
		path: path,
		f:    f,
		enc:  enc,
		w:    bufio.NewWriterSize(enc, 128*1024),
	}, nil
}

// Path returns the file being written.
func (t *Writer) Path() string { return t.path }

// Record appends s as one line.
func (t *Writer) Record(s world.Snapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding tick %d: %w", s.Tick, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w == nil {
		return ErrClosed
	}
	if _, err := t.w.Write(b); err != nil {
		return err
	}
	return t.w.WriteByte('\n')
}

// Close flushes buffered lines and finishes the zstd frame.
// Calling it more than once is safe.
func (t *Writer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.w == nil {
		return nil
	}
	errs := []error{t.w.Flush(), t.enc.Close(), t.f.Close()}
	t.w, t.enc, t.f = nil, nil, nil
	return errors.Join(errs...)
}

// Read decodes the trace at path, calling fn for each snapshot in order.
// Iteration stops at the first error fn returns.
func Read(path string, fn func(world.Snapshot) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Decode(f, fn)
}

// Decode reads a zstd-compressed JSON Lines stream from r.
func Decode(r io.Reader, fn func(world.Snapshot) error) error {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var s world.Snapshot
		if err := json.Unmarshal(sc.Bytes(), &s); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	return sc.Err()
}
