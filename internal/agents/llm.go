package agents

import (
	"context"
	"fmt"

	"github.com/vinayprograms/agentkit/llm"

	"github.com/vinayprograms/agentrace/internal/registry"
	"github.com/vinayprograms/agentrace/internal/runctx"
)

// Model is a subagent that answers with one model call, using the prompt and
// model carried by the request. The call goes to the provider serving that model.
type Model struct {
	models Models
}

// NewModel creates a model-backed subagent.
func NewModel(models Models) *Model {
	return &Model{models: models}
}

// Invoke implements registry.Handle.
func (m *Model) Invoke(ctx context.Context, req registry.Request) (registry.Response, error) {
	ctx, root := runctx.StartChain(ctx, "ModelAgent", map[string]any{"task": req.Task})

	nodeCtx, node := runctx.StartNode(ctx, "model", map[string]any{"task": req.Task})
	_, call := runctx.StartModel(nodeCtx, req.Model, req.Task)

	provider, err := m.models.Provider(req.Model)
	if err != nil {
		call.End(nil, err)
		node.End(nil, err)
		root.End(nil, err)
		return registry.Response{}, err
	}

	var msgs []llm.Message
	if req.Prompt != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: req.Prompt})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: req.Task})
	resp, err := provider.Chat(ctx, llm.ChatRequest{Messages: msgs})
	if err != nil {
		if !runctx.IsCancellation(err) {
			call.End(nil, err)
			node.End(nil, err)
			root.End(nil, err)
		}
		return registry.Response{}, fmt.Errorf("model call failed: %w", err)
	}
	call.End(resp.Content, nil)
	node.End(resp.Content, nil)
	root.End(resp.Content, nil)
	return registry.Response{Output: resp.Content}, nil
}
