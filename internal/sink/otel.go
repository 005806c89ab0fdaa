package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/agentrace/internal/trace"
)

// Attribute keys set on exported spans.
const (
	AttrRunID      = "agentrace.run_id"
	AttrKind       = "agentrace.kind"
	AttrTags       = "agentrace.tags"
	AttrSubagent   = "agentrace.subagent"
	AttrInput      = "agentrace.input"
	AttrOutput     = "agentrace.output"
	AttrIncomplete = "agentrace.incomplete"
)

const maxAttrChars = 2000

// OTel mirrors resolved spans into an OpenTelemetry tracer, preserving the
// engine's timestamps and parent links.
type OTel struct {
	tracer oteltrace.Tracer

	mu   sync.Mutex
	live map[string]oteltrace.Span
}

// NewOTel exports through a tracer obtained from tp.
func NewOTel(tp oteltrace.TracerProvider) *OTel {
	return &OTel{
		tracer: tp.Tracer("github.com/vinayprograms/agentrace"),
		live:   make(map[string]oteltrace.Span),
	}
}

// SpanStarted implements trace.Sink.
func (o *OTel) SpanStarted(rec trace.Record) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.live[rec.RunID]; ok {
		return nil
	}

	ctx := context.Background()
	if parent, ok := o.live[rec.ParentRunID]; ok && rec.ParentRunID != "" {
		ctx = oteltrace.ContextWithSpan(ctx, parent)
	}

	attrs := []attribute.KeyValue{
		attribute.String(AttrRunID, rec.RunID),
		attribute.String(AttrKind, string(rec.Kind)),
	}
	if len(rec.Tags) > 0 {
		attrs = append(attrs, attribute.StringSlice(AttrTags, rec.Tags))
	}
	if sub, _ := rec.Metadata[trace.MetaSubagent].(string); sub != "" {
		attrs = append(attrs, attribute.String(AttrSubagent, sub))
	}
	if rec.Input != nil {
		attrs = append(attrs, attribute.String(AttrInput, encode(rec.Input)))
	}

	_, span := o.tracer.Start(ctx, rec.Name,
		oteltrace.WithTimestamp(rec.StartedAt),
		oteltrace.WithAttributes(attrs...),
		oteltrace.WithSpanKind(spanKind(rec.Kind)),
	)
	o.live[rec.RunID] = span
	return nil
}

// SpanEnded implements trace.Sink. Ending a span this sink never started
// returns trace.ErrCrossContext.
func (o *OTel) SpanEnded(rec trace.Record) error {
	o.mu.Lock()
	span, ok := o.live[rec.RunID]
	delete(o.live, rec.RunID)
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: span %s (%s)", trace.ErrCrossContext, rec.RunID, rec.Name)
	}

	if rec.Output != nil {
		span.SetAttributes(attribute.String(AttrOutput, encode(rec.Output)))
	}
	if rec.Error != "" {
		span.SetStatus(codes.Error, rec.Error)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(oteltrace.WithTimestamp(rec.EndedAt))
	return nil
}

// Open returns the number of spans started but not yet ended.
func (o *OTel) Open() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.live)
}

// Close ends every span still open, marking it incomplete.
func (o *OTel) Close() error {
	o.mu.Lock()
	live := o.live
	o.live = make(map[string]oteltrace.Span)
	o.mu.Unlock()
	for _, span := range live {
		span.SetAttributes(attribute.Bool(AttrIncomplete, true))
		span.End()
	}
	return nil
}

func spanKind(k trace.Kind) oteltrace.SpanKind {
	switch k {
	case trace.KindModel:
		return oteltrace.SpanKindClient
	case trace.KindOrchestration:
		return oteltrace.SpanKindServer
	default:
		return oteltrace.SpanKindInternal
	}
}

func encode(v any) string {
	var s string
	if str, ok := v.(string); ok {
		s = str
	} else if data, err := json.Marshal(v); err == nil {
		s = string(data)
	} else {
		s = fmt.Sprintf("%v", v)
	}
	if len(s) > maxAttrChars {
		s = s[:maxAttrChars] + "..."
	}
	return s
}
