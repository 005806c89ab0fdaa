// Operational tracing for the orchestrator, separate from the reconstructed
// agent trace.
package orchestrator

import (
	"context"

	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxSpanOutput = 2000

// startTurnSpan starts a span for an orchestrator turn.
func (o *Orchestrator) startTurnSpan(ctx context.Context, input string) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "orchestrator.turn")
	span.SetAttributes(attribute.Int("orchestrator.subagents", o.registry.Len()))
	if tracer.Debug() {
		span.SetAttributes(attribute.String("orchestrator.input", truncate(input, maxSpanOutput)))
	}
	return ctx, span
}

// endTurnSpan ends the turn span with result info.
func (o *Orchestrator) endTurnSpan(span trace.Span, res *Result, err error) {
	span.SetAttributes(
		attribute.String("orchestrator.status", string(res.Status)),
		attribute.Int("orchestrator.rounds", res.Rounds),
		attribute.Int("orchestrator.dispatches", len(res.Dispatches)),
	)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// startDispatchSpan starts a span for one subagent dispatch.
func (o *Orchestrator) startDispatchSpan(ctx context.Context, agent string) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "dispatch."+agent)
	span.SetAttributes(attribute.String("dispatch.agent", agent))
	return ctx, span
}

// endDispatchSpan ends the dispatch span.
func (o *Orchestrator) endDispatchSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
