package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinayprograms/agentkit/llm"

	"github.com/vinayprograms/agentrace/internal/runctx"
	"github.com/vinayprograms/agentrace/internal/trace"
)

// LLMDecider asks a model what to do. Subagents are offered as a single
// "task" tool whose subagent_type is one of the registered names.
type LLMDecider struct {
	provider llm.Provider
	model    string
}

// NewLLMDecider creates a model-backed decider. model names the model in
// the trace.
func NewLLMDecider(provider llm.Provider, model string) *LLMDecider {
	return &LLMDecider{provider: provider, model: model}
}

// Decide implements Decider.
func (d *LLMDecider) Decide(ctx context.Context, turn Turn) (Decision, error) {
	req := llm.ChatRequest{
		Messages: d.messages(turn),
		Tools:    []llm.ToolDef{taskTool(turn)},
	}

	_, run := runctx.StartModel(ctx, d.model, map[string]any{
		"request":  turn.Request,
		"round":    turn.Round,
		"messages": len(req.Messages),
	})
	resp, err := d.provider.Chat(ctx, req)
	if err != nil {
		if !runctx.IsCancellation(err) {
			run.End(nil, err)
		}
		return Decision{}, fmt.Errorf("model call failed: %w", err)
	}

	var dispatches []Dispatch
	for _, tc := range resp.ToolCalls {
		if tc.Name != trace.LauncherTool {
			continue
		}
		agent, _ := tc.Args[trace.LauncherField].(string)
		task, _ := tc.Args["description"].(string)
		if task == "" {
			task = turn.Request
		}
		dispatches = append(dispatches, Dispatch{Agent: agent, Task: task})
	}
	run.End(map[string]any{"content": resp.Content, "dispatches": len(dispatches)}, nil)

	if len(dispatches) == 0 {
		return Decision{Answer: resp.Content}, nil
	}
	return Decision{Dispatches: dispatches}, nil
}

func (d *LLMDecider) messages(turn Turn) []llm.Message {
	var sys strings.Builder
	sys.WriteString(turn.SystemPrompt)
	sys.WriteString("\n\nAvailable agents:\n")
	for _, name := range turn.Agents {
		fmt.Fprintf(&sys, "- %s: %s\n", name, turn.Capabilities[name])
	}

	msgs := []llm.Message{
		{Role: "system", Content: sys.String()},
		{Role: "user", Content: turn.Request},
	}
	for _, h := range turn.History {
		msgs = append(msgs, llm.Message{
			Role:    "user",
			Content: fmt.Sprintf("Result from %s for %q:\n%s", h.Agent, h.Task, h.Output),
		})
	}
	return msgs
}

func taskTool(turn Turn) llm.ToolDef {
	agents := make([]interface{}, 0, len(turn.Agents))
	for _, name := range turn.Agents {
		agents = append(agents, name)
	}
	return llm.ToolDef{
		Name:        trace.LauncherTool,
		Description: "Delegate a task to one specialized agent. Call it once per agent and wait for the result before delegating again.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				trace.LauncherField: map[string]interface{}{
					"type":        "string",
					"enum":        agents,
					"description": "Name of the agent to delegate to",
				},
				"description": map[string]interface{}{
					"type":        "string",
					"description": "The task for the agent, with everything it needs to know",
				},
			},
			"required": []string{trace.LauncherField, "description"},
		},
	}
}
