// Package trace defines the replay log: one event per tick, append
// only, gap free. Events archive to zstd-compressed JSONL files so a
// season of run attempts stays cheap to keep.
package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/codeofpride/drillcore/internal/band"
	"github.com/codeofpride/drillcore/internal/objective"
)

// Event is everything that happened at one tick. The sequence of
// events for a run is its replay log; presentation layers play it
// back without touching the engine.
type Event struct {
	Tick      int                 `json:"tick"`
	Commands  []band.Command      `json:"commands,omitempty"`
	Rejected  []band.Rejected     `json:"rejected,omitempty"`
	Entities  []band.EntityState  `json:"entities"`
	Objective []objective.Result  `json:"objective,omitempty"`
	Output    []string            `json:"output,omitempty"`
	// Fault carries the script error surfaced this tick, if any.
	FaultLine    int    `json:"fault_line,omitempty"`
	FaultMessage string `json:"fault_message,omitempty"`
	// Terminal marks the run's last event and carries the verdict.
	Terminal bool   `json:"terminal,omitempty"`
	Verdict  string `json:"verdict,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Writer archives one run's events to a .jsonl.zst file. Safe for one
// writer goroutine; Append after Close is an error.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
	closed bool
}

// NewWriter creates dir if needed and opens <dir>/<name>.jsonl.zst.
func NewWriter(dir, name string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	path := filepath.Join(dir, name+".jsonl.zst")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("trace: %w", err)
	}
	return &Writer{f: f, enc: enc, w: bufio.NewWriterSize(enc, 64*1024)}, nil
}

// Append writes one event as a JSONL line.
func (w *Writer) Append(ev Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("trace: writer closed")
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("trace: %w", err)
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Close flushes and finalizes the archive.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	var first error
	if err := w.w.Flush(); err != nil {
		first = err
	}
	if err := w.enc.Close(); err != nil && first == nil {
		first = err
	}
	if err := w.f.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// ReadFile loads a whole archived trace back into memory.
func ReadFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	defer dec.Close()

	var events []Event
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("trace: corrupt line %d: %w", len(events), err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	return events, nil
}
