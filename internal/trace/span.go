package trace

import (
	"maps"
	"slices"
	"time"
)

// Kind classifies a resolved span.
type Kind string

const (
	KindOrchestration Kind = "ORCHESTRATION"
	KindSubagent      Kind = "SUBAGENT"
	KindTool          Kind = "TOOL"
	KindModel         Kind = "MODEL"
	KindGeneric       Kind = "GENERIC"
)

// State is the lifecycle state of a span.
type State string

const (
	StateOpen       State = "OPEN"
	StateClosed     State = "CLOSED"
	StateSuppressed State = "SUPPRESSED"
)

// Span is one resolved unit of work.
type Span struct {
	RunID       string
	ParentRunID string
	Name        string
	Kind        Kind
	Tags        []string
	Metadata    map[string]any
	Input       any
	Output      any
	Error       string
	State       State
	StartedAt   time.Time
	EndedAt     time.Time
}

// Duration returns the span's elapsed time, zero while open.
func (s Span) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Subagent returns the routing context the span was resolved under, if any.
func (s Span) Subagent() string {
	v, _ := s.Metadata[MetaSubagent].(string)
	return v
}

func (s *Span) clone() Span {
	c := *s
	c.Tags = slices.Clone(s.Tags)
	c.Metadata = maps.Clone(s.Metadata)
	return c
}

func (s *Span) record() Record {
	return Record{
		RunID:       s.RunID,
		ParentRunID: s.ParentRunID,
		Name:        s.Name,
		Kind:        s.Kind,
		Tags:        slices.Clone(s.Tags),
		Metadata:    maps.Clone(s.Metadata),
		Input:       s.Input,
		Output:      s.Output,
		Error:       s.Error,
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
		Incomplete:  s.State == StateOpen,
	}
}

// Record is the form in which resolved spans are handed to sinks.
type Record struct {
	RunID       string         `json:"run_id"`
	ParentRunID string         `json:"parent_run_id,omitempty"`
	Name        string         `json:"name"`
	Kind        Kind           `json:"kind"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Input       any            `json:"input,omitempty"`
	Output      any            `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     time.Time      `json:"ended_at,omitzero"`
	Incomplete  bool           `json:"incomplete,omitempty"`
}

// Sink receives resolved span records. Errors are logged by the engine and
// never propagate to event producers.
type Sink interface {
	SpanStarted(rec Record) error
	SpanEnded(rec Record) error
}

// Outcome is the result of delivering a start event.
type Outcome struct {
	RunID      string
	Span       Span
	Suppressed bool
	Duplicate  bool
	Reason     string
}

// Visible reports whether the outcome produced a span in the visible tree.
func (o Outcome) Visible() bool {
	return !o.Suppressed
}

// Metadata keys the engine sets on resolved spans.
const (
	MetaSubagent     = "current_subagent"
	MetaNode         = "node"
	MetaLauncher     = "is_subagent_launcher"
	MetaEventName    = "event_name"
	MetaSerialized   = "serialized_name"
	MetaInputStr     = "input_str"
	MetaRawParent    = "raw_parent_run_id"
	MetaEventType    = "event_type"
	MetaGraphPrefix  = "graph."
	MetaUpstreamMeta = "metadata"
)
