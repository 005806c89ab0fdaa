// Package wrapper binds a subagent handle to its name so that every event the
// handle emits carries the subagent's routing tag.
package wrapper

import (
	"context"

	"github.com/vinayprograms/agentrace/internal/registry"
	"github.com/vinayprograms/agentrace/internal/runctx"
	"github.com/vinayprograms/agentrace/internal/trace"
)

// TaggedHandle is a registry.Handle that runs its inner handle under the
// subagent's routing context.
type TaggedHandle struct {
	name  string
	inner registry.Handle
}

// Wrap binds h to name.
func Wrap(name string, h registry.Handle) *TaggedHandle {
	return &TaggedHandle{name: name, inner: h}
}

// Name returns the subagent name.
func (t *TaggedHandle) Name() string {
	return t.name
}

// Invoke emits the wrapper frame, then calls the inner handle with the routing
// tag added and the display-name hint set. The inner handle's result and error
// are returned unchanged. On cancellation the frame is left open.
func (t *TaggedHandle) Invoke(ctx context.Context, req registry.Request) (registry.Response, error) {
	ctx, frame := runctx.Start(ctx, trace.StartEvent{
		Type:       trace.EventChain,
		Serialized: trace.Descriptor{Name: trace.WrapperFrame, ID: []string{trace.WrapperFrame, "wrapper"}},
		Name:       trace.WrapperFrame,
		Input:      map[string]any{"task": req.Task, "subagent": t.name},
	})

	ctx = runctx.WithTags(ctx, trace.RoutingTag(t.name))
	ctx = runctx.WithRunName(ctx, t.name)
	// Node identifiers from the dispatching graph do not apply inside the subagent.
	ctx = runctx.WithMetadata(ctx, map[string]any{"node": ""})

	resp, err := t.inner.Invoke(ctx, req)
	if err != nil && runctx.IsCancellation(err) {
		return resp, err
	}
	if err != nil {
		frame.End(nil, err)
	} else {
		frame.End(resp.Output, nil)
	}
	return resp, err
}
