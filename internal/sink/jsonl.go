package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vinayprograms/agentrace/internal/trace"
)

// Line is one entry of a span log.
type Line struct {
	Event string       `json:"event"` // started or ended
	Span  trace.Record `json:"span"`
}

// JSONL appends span records to a writer, one JSON object per line.
type JSONL struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewJSONL writes to w.
func NewJSONL(w io.Writer) *JSONL {
	return &JSONL{w: w}
}

// OpenJSONL appends to the file at path, creating it if needed.
func OpenJSONL(path string) (*JSONL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open span log: %w", err)
	}
	return &JSONL{w: f, closer: f}, nil
}

// SpanStarted implements trace.Sink.
func (j *JSONL) SpanStarted(rec trace.Record) error {
	return j.write(Line{Event: "started", Span: rec})
}

// SpanEnded implements trace.Sink.
func (j *JSONL) SpanEnded(rec trace.Record) error {
	return j.write(Line{Event: "ended", Span: rec})
}

func (j *JSONL) write(l Line) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to encode span %s: %w", l.Span.RunID, err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write span %s: %w", l.Span.RunID, err)
	}
	return nil
}

// Close closes the underlying file, if JSONL opened it.
func (j *JSONL) Close() error {
	if j.closer == nil {
		return nil
	}
	return j.closer.Close()
}
