package orchestrator

import (
	"context"
	"fmt"
	"strings"
)

// Turn is what a decider sees when asked what to do next.
type Turn struct {
	Request      string
	SystemPrompt string
	Agents       []string          // registration order
	Capabilities map[string]string // name to description, used verbatim
	History      []Outcome
	Round        int
}

// Outcome is a completed dispatch visible to later rounds.
type Outcome struct {
	Agent  string
	Task   string
	Output string
}

// Dispatch asks the orchestrator to delegate a task to a subagent.
type Dispatch struct {
	Agent string
	Task  string
}

// Decision is either a direct answer or a list of dispatches.
type Decision struct {
	Answer     string
	Dispatches []Dispatch
}

// Decider is the external decision procedure.
type Decider interface {
	Decide(ctx context.Context, turn Turn) (Decision, error)
}

// DeciderFunc adapts a function to a Decider.
type DeciderFunc func(ctx context.Context, turn Turn) (Decision, error)

// Decide calls f.
func (f DeciderFunc) Decide(ctx context.Context, turn Turn) (Decision, error) {
	return f(ctx, turn)
}

// Route sends requests containing any keyword to an agent.
type Route struct {
	Agent    string
	Keywords []string
}

// DefaultFallback is the rule decider's answer when no route matches.
const DefaultFallback = "I don't have a specialized agent for that request."

// RuleDecider routes by case-insensitive keyword match. Every matching route
// is dispatched once, in route order; the next round answers with the results.
type RuleDecider struct {
	routes   []Route
	fallback string
}

// NewRuleDecider creates a keyword decider.
func NewRuleDecider(routes []Route) *RuleDecider {
	return &RuleDecider{routes: routes, fallback: DefaultFallback}
}

// WithFallback sets the direct answer given when no route matches.
func (d *RuleDecider) WithFallback(answer string) *RuleDecider {
	d.fallback = answer
	return d
}

// Decide implements Decider.
func (d *RuleDecider) Decide(ctx context.Context, turn Turn) (Decision, error) {
	if len(turn.History) > 0 {
		return Decision{Answer: summarize(turn.History)}, nil
	}
	text := " " + strings.ToLower(turn.Request) + " "
	seen := make(map[string]bool)
	var dispatches []Dispatch
	for _, r := range d.routes {
		if seen[r.Agent] {
			continue
		}
		for _, kw := range r.Keywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				dispatches = append(dispatches, Dispatch{Agent: r.Agent, Task: turn.Request})
				seen[r.Agent] = true
				break
			}
		}
	}
	if len(dispatches) == 0 {
		return Decision{Answer: d.fallback}, nil
	}
	return Decision{Dispatches: dispatches}, nil
}

func summarize(history []Outcome) string {
	if len(history) == 1 {
		return history[0].Output
	}
	var b strings.Builder
	for i, h := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", h.Agent, h.Output)
	}
	return b.String()
}
