package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cwbudde/circlez/internal/fit"
)

// TraceEntry is one line of trace.jsonl
type TraceEntry struct {
	Round     int       `json:"round"`
	Loss      float64   `json:"loss"`
	MeanLoss  float64   `json:"meanLoss"`
	Accepted  uint64    `json:"accepted"`
	Timestamp time.Time `json:"timestamp"`
}

// EntryFromStats converts a round summary into a trace line
func EntryFromStats(stats fit.RoundStats) TraceEntry {
	return TraceEntry{
		Round:     stats.Round,
		Loss:      stats.Loss,
		MeanLoss:  stats.MeanLoss,
		Accepted:  stats.TotalAccepted,
		Timestamp: time.Now(),
	}
}

// TraceWriter appends JSON lines to a trace file. Safe for concurrent use.
type TraceWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
	path string
}

// OpenTrace opens the trace of run id for writing. With appendMode the
// previous entries are kept, which is what a resumed run wants.
func (s *FSStore) OpenTrace(id string, appendMode bool) (*TraceWriter, error) {
	if err := os.MkdirAll(s.RunDir(id), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	return NewTraceWriter(s.TracePath(id), appendMode)
}

// NewTraceWriter opens path for writing trace lines
func NewTraceWriter(path string, appendMode bool) (*TraceWriter, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	buf := bufio.NewWriterSize(f, 32*1024)
	return &TraceWriter{
		file: f,
		buf:  buf,
		enc:  json.NewEncoder(buf),
		path: path,
	}, nil
}

// Write buffers one entry; it reaches disk on Flush or Close
func (w *TraceWriter) Write(entry TraceEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Encode terminates every value with a newline
	if err := w.enc.Encode(entry); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	return nil
}

// Flush writes buffered entries and syncs the file
func (w *TraceWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace: %w", err)
	}
	return nil
}

// Close flushes and closes the file
func (w *TraceWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush trace on close: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close trace: %w", closeErr)
	}
	return nil
}

// Path returns the trace file path
func (w *TraceWriter) Path() string { return w.path }

// ReadTrace returns every entry of the trace of run id
func (s *FSStore) ReadTrace(id string) ([]TraceEntry, error) {
	f, err := os.Open(s.TracePath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{RunID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer f.Close()

	return ReadTraceFrom(f)
}

// ReadTraceFrom decodes JSON lines until EOF
func ReadTraceFrom(r io.Reader) ([]TraceEntry, error) {
	var entries []TraceEntry
	dec := json.NewDecoder(r)
	for {
		var entry TraceEntry
		err := dec.Decode(&entry)
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode trace entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, entry)
	}
}

// DeleteTrace removes the trace of run id; a missing trace is not an error
func (s *FSStore) DeleteTrace(id string) error {
	err := os.Remove(filepath.Join(s.RunDir(id), traceFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete trace: %w", err)
	}
	return nil
}
