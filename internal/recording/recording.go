// Package recording stores push frames as JSON lines, zstd-compressed when
// the file name ends in ".zst", and loads them back for replay.
package recording

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/dgnsrekt/cargoviz-realtime/internal/ws"
)

var ErrEmpty = errors.New("recording has no frames")

func compressed(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

// Recorder appends events to a file, one frame per line.
type Recorder struct {
	mu   sync.Mutex
	file *os.File
	zw   *zstd.Encoder
	w    *bufio.Writer
	n    int
}

// NewRecorder creates (or truncates) path.
func NewRecorder(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating recording: %w", err)
	}

	r := &Recorder{file: f}
	var dst io.Writer = f
	if compressed(path) {
		zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		r.zw = zw
		dst = zw
	}
	r.w = bufio.NewWriter(dst)
	return r, nil
}

// Write appends one event as it was received, compacted onto a single line.
func (r *Recorder) Write(ev ws.Event) error {
	raw, err := ev.MarshalJSON()
	if err != nil {
		return err
	}
	var line bytes.Buffer
	if err := json.Compact(&line, raw); err != nil {
		return fmt.Errorf("compacting frame: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.w.Write(line.Bytes()); err != nil {
		return err
	}
	if err := r.w.WriteByte('\n'); err != nil {
		return err
	}
	r.n++
	return nil
}

// Count returns the number of frames written.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Close flushes buffered frames and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	errs := []error{r.w.Flush()}
	if r.zw != nil {
		errs = append(errs, r.zw.Close())
	}
	errs = append(errs, r.file.Close())
	return errors.Join(errs...)
}

// Load reads every frame in path. Lines that do not parse as push events
// are rejected with their line number.
func Load(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var src io.Reader = f
	if compressed(path) {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	var frames [][]byte
	scanner := bufio.NewScanner(src)

	// Increase buffer size for large lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if _, err := ws.ParseEvent(line); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		frames = append(frames, append([]byte(nil), line...))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, ErrEmpty
	}
	return frames, nil
}
