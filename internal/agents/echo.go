package agents

import (
	"context"

	"github.com/vinayprograms/agentrace/internal/registry"
	"github.com/vinayprograms/agentrace/internal/runctx"
)

// Echo answers with its task. It stands in for subagents that have no
// backend configured.
type Echo struct {
	Prefix string
}

// Invoke implements registry.Handle.
func (e Echo) Invoke(ctx context.Context, req registry.Request) (registry.Response, error) {
	_, root := runctx.StartChain(ctx, "EchoAgent", map[string]any{"task": req.Task})
	out := e.Prefix + req.Task
	root.End(out, nil)
	return registry.Response{Output: out}, nil
}
