// Package eventlog records raw lifecycle events to JSONL and replays them.
package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/zoobzio/clockz"

	"github.com/vinayprograms/agentrace/internal/trace"
)

// Record types in the log.
const (
	RecordTypeHeader = "header" // log metadata (first line)
	RecordTypeStart  = "start"  // start event
	RecordTypeEnd    = "end"    // end event
)

// Entry is one line of an event log.
type Entry struct {
	RecordType string    `json:"_type"`
	Seq        uint64    `json:"seq,omitempty"`
	Timestamp  time.Time `json:"timestamp"`

	// Header fields
	ID      string `json:"id,omitempty"`
	Service string `json:"service,omitempty"`

	Start *trace.StartEvent `json:"start,omitempty"`
	End   *trace.EndEvent   `json:"end,omitempty"`
}

// Log is an event log read back from disk.
type Log struct {
	ID        string
	Service   string
	CreatedAt time.Time
	Entries   []Entry
}

// Recorder is a trace.Handler that appends every event it sees to a JSONL
// log before forwarding it downstream. Write failures are logged and never
// reach the caller.
type Recorder struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	seq    uint64
	next   trace.Handler
	clock  clockz.Clock
	logger *logging.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock sets the clock used for entry timestamps.
func WithClock(c clockz.Clock) Option {
	return func(r *Recorder) {
		if c != nil {
			r.clock = c
		}
	}
}

// NewRecorder writes a header to w and returns a recorder forwarding to next.
// next may be nil when only the log is wanted.
func NewRecorder(w io.Writer, service string, next trace.Handler, opts ...Option) (*Recorder, error) {
	r := &Recorder{
		w:      w,
		next:   next,
		clock:  clockz.RealClock,
		logger: logging.New().WithComponent("eventlog"),
	}
	for _, opt := range opts {
		opt(r)
	}
	header := Entry{
		RecordType: RecordTypeHeader,
		Timestamp:  r.clock.Now(),
		ID:         uuid.NewString(),
		Service:    service,
	}
	if err := r.writeLine(header); err != nil {
		return nil, err
	}
	return r, nil
}

// Create creates (or truncates) the log file at path and records to it.
func Create(path, service string, next trace.Handler, opts ...Option) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create event log directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}
	r, err := NewRecorder(f, service, next, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// OnStart implements trace.Handler.
func (r *Recorder) OnStart(ev trace.StartEvent) trace.Outcome {
	if ev.RunID == "" {
		ev.RunID = uuid.NewString()
	}
	r.record(Entry{RecordType: RecordTypeStart, Start: &ev})
	if r.next == nil {
		return trace.Outcome{RunID: ev.RunID}
	}
	return r.next.OnStart(ev)
}

// OnEnd implements trace.Handler.
func (r *Recorder) OnEnd(ev trace.EndEvent) (trace.Span, bool) {
	r.record(Entry{RecordType: RecordTypeEnd, End: &ev})
	if r.next == nil {
		return trace.Span{}, false
	}
	return r.next.OnEnd(ev)
}

// Seq returns the sequence number of the last recorded event.
func (r *Recorder) Seq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Close closes the log file if the recorder created it.
func (r *Recorder) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func (r *Recorder) record(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	e.Seq = r.seq
	e.Timestamp = r.clock.Now()
	err := r.writeLine(e)
	if err != nil && unencodable(err) {
		err = r.writeLine(Sanitize(e))
	}
	if err != nil {
		r.logger.Warn("failed to record event", map[string]interface{}{
			"seq":   e.Seq,
			"type":  e.RecordType,
			"error": err.Error(),
		})
	}
}

// writeLine writes a single JSONL record. Callers hold mu, except during
// construction.
func (r *Recorder) writeLine(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return &encodeError{err: err}
	}
	if _, err := r.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event log: %w", err)
	}
	return nil
}

type encodeError struct{ err error }

func (e *encodeError) Error() string { return "failed to marshal record: " + e.err.Error() }
func (e *encodeError) Unwrap() error { return e.err }

func unencodable(err error) bool {
	_, ok := err.(*encodeError)
	return ok
}

// Sanitize replaces payloads that cannot be JSON-encoded with their type name.
func Sanitize(e Entry) Entry {
	if e.Start != nil {
		s := *e.Start
		if _, err := json.Marshal(s.Input); err != nil {
			s.Input = fmt.Sprintf("<%T>", s.Input)
		}
		if _, err := json.Marshal(s.Metadata); err != nil {
			meta := make(map[string]any, len(s.Metadata))
			for k, v := range s.Metadata {
				if _, err := json.Marshal(v); err != nil {
					v = fmt.Sprintf("<%T>", v)
				}
				meta[k] = v
			}
			s.Metadata = meta
		}
		e.Start = &s
	}
	if e.End != nil {
		en := *e.End
		if _, err := json.Marshal(en.Output); err != nil {
			en.Output = fmt.Sprintf("<%T>", en.Output)
		}
		e.End = &en
	}
	return e
}

// Load reads the event log at path.
func Load(path string) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read parses an event log. A truncated final line, as left by a writer that
// is still running, is ignored.
func Read(rd io.Reader) (*Log, error) {
	l := &Log{}
	reader := bufio.NewReader(rd)
	lineNo := 0
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("error reading event log: %w", err)
		}
		eof := err == io.EOF
		lineNo++

		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var e Entry
			if jerr := json.Unmarshal(line, &e); jerr != nil {
				if eof {
					break
				}
				return nil, fmt.Errorf("failed to parse event log line %d: %w", lineNo, jerr)
			}
			l.add(e)
		}
		if eof {
			break
		}
	}
	return l, nil
}

func (l *Log) add(e Entry) {
	switch e.RecordType {
	case RecordTypeHeader:
		l.ID = e.ID
		l.Service = e.Service
		l.CreatedAt = e.Timestamp
	case RecordTypeStart:
		if e.Start != nil {
			l.Entries = append(l.Entries, e)
		}
	case RecordTypeEnd:
		if e.End != nil {
			l.Entries = append(l.Entries, e)
		}
	}
}

// Replay feeds the log's events to h in recorded order and returns how many
// were delivered.
func (l *Log) Replay(h trace.Handler) int {
	n := 0
	for _, e := range l.Entries {
		if deliver(h, e) {
			n++
		}
	}
	return n
}

func deliver(h trace.Handler, e Entry) bool {
	switch {
	case e.Start != nil:
		h.OnStart(*e.Start)
	case e.End != nil:
		h.OnEnd(*e.End)
	default:
		return false
	}
	return true
}

// Stepper is a controllable clock, such as clockz's fake clock.
type Stepper interface {
	Now() time.Time
	Advance(d time.Duration)
}

// ReplayTimed is Replay with clk moved forward to each entry's recorded
// timestamp before delivery, so an engine driven by clk reproduces the
// recorded durations.
func (l *Log) ReplayTimed(h trace.Handler, clk Stepper) int {
	n := 0
	for _, e := range l.Entries {
		if d := e.Timestamp.Sub(clk.Now()); d > 0 {
			clk.Advance(d)
		}
		if deliver(h, e) {
			n++
		}
	}
	return n
}

// Replay reads a log from rd and feeds it to h.
func Replay(rd io.Reader, h trace.Handler) (int, error) {
	l, err := Read(rd)
	if err != nil {
		return 0, err
	}
	return l.Replay(h), nil
}
