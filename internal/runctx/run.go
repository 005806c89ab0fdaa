package runctx

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/vinayprograms/agentrace/internal/trace"
)

// Run is an open unit of work. End delivers its end event exactly once.
type Run struct {
	ID      string
	Outcome trace.Outcome

	handler trace.Handler
	once    sync.Once
}

// End delivers the end event. Later calls do nothing.
func (r *Run) End(output any, err error) {
	r.once.Do(func() {
		if r.handler == nil {
			return
		}
		ev := trace.EndEvent{RunID: r.ID, Output: output}
		if err != nil {
			ev.Err = err.Error()
		}
		r.handler.OnEnd(ev)
	})
}

// Start fills in run id, parent, tags, name hint and inherited metadata from
// ctx, delivers ev to the context's handler and returns a context for the
// run's children. The name hint applies only when ev.Name is empty and is not
// passed on to children.
func Start(ctx context.Context, ev trace.StartEvent) (context.Context, *Run) {
	ev.RunID = uuid.NewString()
	if ev.ParentRunID == "" {
		ev.ParentRunID = Parent(ctx)
	}
	ev.Tags = append(Tags(ctx), ev.Tags...)
	if ev.Name == "" {
		ev.Name = RunName(ctx)
	}
	meta := Metadata(ctx)
	if len(ev.Metadata) > 0 {
		if meta == nil {
			meta = make(map[string]any, len(ev.Metadata))
		}
		for k, v := range ev.Metadata {
			meta[k] = v
		}
	}
	ev.Metadata = meta

	run := &Run{ID: ev.RunID, handler: HandlerFrom(ctx)}
	if run.handler != nil {
		run.Outcome = run.handler.OnStart(ev)
	}

	child := WithParent(ctx, ev.RunID)
	if RunName(ctx) != "" {
		child = WithRunName(child, "")
	}
	child = WithMetadata(child, ev.Metadata)
	return child, run
}

// StartChain starts a chain event for a component.
func StartChain(ctx context.Context, component string, input any) (context.Context, *Run) {
	return Start(ctx, trace.StartEvent{
		Type:       trace.EventChain,
		Serialized: trace.Descriptor{Name: component},
		Input:      input,
	})
}

// StartNode starts a chain event for a named graph node. The node identifier
// is inherited by everything started under the returned context.
func StartNode(ctx context.Context, node string, input any) (context.Context, *Run) {
	return Start(ctx, trace.StartEvent{
		Type:       trace.EventChain,
		Serialized: trace.Descriptor{Name: node},
		Name:       node,
		Input:      input,
		Metadata:   map[string]any{"node": node},
	})
}

// StartTool starts a tool event.
func StartTool(ctx context.Context, name string, input any) (context.Context, *Run) {
	return Start(ctx, trace.StartEvent{
		Type:       trace.EventTool,
		Serialized: trace.Descriptor{Name: name},
		Name:       name,
		Input:      input,
	})
}

// StartModel starts a model event.
func StartModel(ctx context.Context, model string, input any) (context.Context, *Run) {
	return Start(ctx, trace.StartEvent{
		Type:       trace.EventModel,
		Serialized: trace.Descriptor{Name: model},
		Name:       model,
		Input:      input,
	})
}
