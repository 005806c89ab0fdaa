// Package orchestrator routes a request to registered subagents, one dispatch
// at a time, and emits the lifecycle events of every turn.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/zoobzio/clockz"

	"github.com/vinayprograms/agentrace/internal/registry"
	"github.com/vinayprograms/agentrace/internal/runctx"
	"github.com/vinayprograms/agentrace/internal/trace"
	"github.com/vinayprograms/agentrace/internal/wrapper"
)

// DefaultMaxRounds bounds decision rounds per turn.
const DefaultMaxRounds = 8

// State is the turn state.
type State string

const (
	StateAwaitingDecision State = "AWAITING_DECISION"
	StateDispatching      State = "DISPATCHING"
	StateDone             State = "DONE"
)

// Status represents the turn status.
type Status string

const (
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Request is one orchestrator turn.
type Request struct {
	Input    string
	Handler  trace.Handler  // receives lifecycle events; falls back to the context's
	Metadata map[string]any // attached to every event of the turn
}

// DispatchRecord describes one completed dispatch.
type DispatchRecord struct {
	Agent     string
	Task      string
	Output    string
	Error     string
	StartedAt time.Time
	EndedAt   time.Time
}

// Result is always well formed, whatever happened during the turn.
type Result struct {
	Status     Status
	Output     string
	RunID      string
	Rounds     int
	Dispatches []DispatchRecord
	Metadata   map[string]any
	Error      *ErrorPayload
}

// Profile is per-subagent prompt and model passed along with each dispatch.
type Profile struct {
	Prompt string
	Model  string
}

// Orchestrator delegates requests to subagents.
type Orchestrator struct {
	registry     *registry.Registry
	handles      map[string]*wrapper.TaggedHandle
	decider      Decider
	profiles     map[string]Profile
	systemPrompt string
	maxRounds    int
	timeout      time.Duration
	clock        clockz.Clock
	logger       *logging.Logger

	// Callbacks
	OnDispatchStart    func(agent, task string)
	OnDispatchComplete func(agent, output string, err error)
	OnStateChange      func(from, to State)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxRounds bounds decision rounds per turn.
func WithMaxRounds(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxRounds = n
		}
	}
}

// WithTimeout bounds each turn.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = d
	}
}

// WithClock sets the clock used for dispatch timings.
func WithClock(c clockz.Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithSystemPrompt sets the prompt handed to the decider.
func WithSystemPrompt(p string) Option {
	return func(o *Orchestrator) {
		o.systemPrompt = p
	}
}

// WithProfiles sets per-subagent prompts and models.
func WithProfiles(p map[string]Profile) Option {
	return func(o *Orchestrator) {
		o.profiles = p
	}
}

// New creates an orchestrator over a registry. Each registered handle is
// wrapped so that its events carry the subagent's routing tag.
func New(reg *registry.Registry, decider Decider, opts ...Option) (*Orchestrator, error) {
	if reg == nil {
		return nil, &registry.ConfigurationError{Reason: "no registry"}
	}
	if decider == nil {
		return nil, &registry.ConfigurationError{Reason: "no decision procedure"}
	}
	o := &Orchestrator{
		registry:  reg,
		handles:   make(map[string]*wrapper.TaggedHandle, reg.Len()),
		decider:   decider,
		maxRounds: DefaultMaxRounds,
		clock:     clockz.RealClock,
		logger:    logging.New().WithComponent("orchestrator"),
	}
	for _, name := range reg.Names() {
		h, err := reg.Lookup(name)
		if err != nil {
			return nil, err
		}
		o.handles[name] = wrapper.Wrap(name, h)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Registry returns the orchestrator's registry.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

// Run executes one turn. Subagent failures end up in the result, never as a
// panic or a returned error. If ctx is cancelled, spans still open are left
// open.
func (o *Orchestrator) Run(ctx context.Context, req Request) *Result {
	if req.Handler != nil {
		ctx = runctx.WithHandler(ctx, req.Handler)
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	ctx = runctx.WithMetadata(ctx, req.Metadata)

	startTime := o.clock.Now()
	o.logger.ExecutionStart(trace.SupervisorName)
	ctx, span := o.startTurnSpan(ctx, req.Input)

	ctx, turn := runctx.Start(ctx, trace.StartEvent{
		Type:       trace.EventChain,
		Serialized: trace.Descriptor{Name: trace.GraphName, ID: []string{trace.GraphName, "orchestrator"}},
		Input:      map[string]any{"input": req.Input},
		InputStr:   req.Input,
	})

	res := &Result{RunID: turn.ID, Metadata: make(map[string]any)}
	err := o.loop(ctx, req, res)

	switch {
	case err == nil:
		res.Status = StatusComplete
	case ctx.Err() != nil && runctx.IsCancellation(err):
		res.Status = StatusCancelled
		res.Error = &ErrorPayload{Error: err.Error()}
		res.Output = res.Error.String()
		o.endTurnSpan(span, res, err)
		o.logger.ExecutionComplete(trace.SupervisorName, o.clock.Since(startTime), string(res.Status))
		return res
	default:
		res.Status = StatusFailed
	}

	turn.End(res.Output, nil)
	o.endTurnSpan(span, res, err)
	o.logger.ExecutionComplete(trace.SupervisorName, o.clock.Since(startTime), string(res.Status))
	return res
}

func (o *Orchestrator) loop(ctx context.Context, req Request, res *Result) error {
	state := StateAwaitingDecision
	var history []Outcome
	for round := 0; round < o.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		res.Rounds = round + 1
		decision, err := o.decider.Decide(ctx, Turn{
			Request:      req.Input,
			SystemPrompt: o.systemPrompt,
			Agents:       o.registry.Names(),
			Capabilities: o.registry.DescribeAll(),
			History:      history,
			Round:        round,
		})
		if err != nil {
			if ctx.Err() != nil && runctx.IsCancellation(err) {
				return err
			}
			o.fail(res, "", "", fmt.Errorf("decision failed: %w", err))
			return err
		}
		if len(decision.Dispatches) == 0 {
			o.transition(&state, StateDone)
			res.Output = decision.Answer
			return nil
		}

		o.transition(&state, StateDispatching)
		for _, d := range decision.Dispatches {
			out, err := o.dispatch(ctx, d, res)
			if err != nil {
				if ctx.Err() != nil && runctx.IsCancellation(err) {
					return err
				}
				o.fail(res, d.Agent, d.Task, err)
				return err
			}
			history = append(history, Outcome{Agent: d.Agent, Task: d.Task, Output: out})
		}
		o.transition(&state, StateAwaitingDecision)
	}
	err := fmt.Errorf("no answer after %d rounds", o.maxRounds)
	o.fail(res, "", "", err)
	return err
}

// dispatch runs one subagent under a launcher tool event.
func (o *Orchestrator) dispatch(ctx context.Context, d Dispatch, res *Result) (string, error) {
	rec := DispatchRecord{Agent: d.Agent, Task: d.Task, StartedAt: o.clock.Now()}
	if o.OnDispatchStart != nil {
		o.OnDispatchStart(d.Agent, d.Task)
	}
	ctx, span := o.startDispatchSpan(ctx, d.Agent)

	lctx, launch := runctx.Start(ctx, trace.StartEvent{
		Type:       trace.EventTool,
		Serialized: trace.Descriptor{Name: trace.LauncherTool},
		Name:       trace.LauncherTool,
		Input:      map[string]any{trace.LauncherField: d.Agent, "description": d.Task},
		InputStr:   fmt.Sprintf("{'%s': '%s', 'description': '%s'}", trace.LauncherField, d.Agent, d.Task),
	})

	var resp registry.Response
	h, ok := o.handles[d.Agent]
	var err error
	if !ok {
		err = fmt.Errorf("%w: %q", registry.ErrNotFound, d.Agent)
	} else {
		p := o.profiles[d.Agent]
		resp, err = invoke(lctx, h, registry.Request{Task: d.Task, Prompt: p.Prompt, Model: p.Model})
	}

	rec.EndedAt = o.clock.Now()
	rec.Output = resp.Output
	cancelled := err != nil && ctx.Err() != nil && runctx.IsCancellation(err)
	if err != nil {
		rec.Error = err.Error()
	}
	if !cancelled {
		if err != nil {
			launch.End(nil, err)
		} else {
			launch.End(resp.Output, nil)
		}
	}
	res.Dispatches = append(res.Dispatches, rec)
	o.endDispatchSpan(span, err)
	o.logger.ToolResult(d.Agent, rec.EndedAt.Sub(rec.StartedAt), err)
	if o.OnDispatchComplete != nil {
		o.OnDispatchComplete(d.Agent, resp.Output, err)
	}

	if err != nil {
		if cancelled {
			return "", err
		}
		return "", &DispatchFailure{Agent: d.Agent, Task: d.Task, Err: err}
	}
	return resp.Output, nil
}

// invoke converts a panicking handle into an error.
func invoke(ctx context.Context, h registry.Handle, req registry.Request) (resp registry.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subagent panic: %v", r)
		}
	}()
	return h.Invoke(ctx, req)
}

// fail records a failure in the turn metadata and replaces the output with
// an error payload.
func (o *Orchestrator) fail(res *Result, agent, task string, err error) {
	msg := err.Error()
	var df *DispatchFailure
	if errors.As(err, &df) {
		msg = df.Err.Error()
	}
	entry := map[string]string{"error": msg}
	if agent != "" {
		entry["agent"] = agent
	}
	if task != "" {
		entry["task"] = task
	}
	errs, _ := res.Metadata["errors"].([]map[string]string)
	res.Metadata["errors"] = append(errs, entry)
	res.Error = &ErrorPayload{Error: msg, Agent: agent}
	res.Output = res.Error.String()
	o.logger.Warn("turn failed", map[string]interface{}{
		"agent": agent,
		"error": msg,
	})
}

func (o *Orchestrator) transition(state *State, to State) {
	if *state == to {
		return
	}
	from := *state
	*state = to
	o.logger.Debug("state change", map[string]interface{}{
		"from": string(from),
		"to":   string(to),
	})
	if o.OnStateChange != nil {
		o.OnStateChange(from, to)
	}
}
