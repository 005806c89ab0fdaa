package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vinayprograms/agentrace/internal/config"
	"github.com/vinayprograms/agentrace/internal/eventlog"
	"github.com/vinayprograms/agentrace/internal/ingest"
	"github.com/vinayprograms/agentrace/internal/orchestrator"
	"github.com/vinayprograms/agentrace/internal/replay"
	"github.com/vinayprograms/agentrace/internal/sink"
	"github.com/vinayprograms/agentrace/internal/trace"
)

// Run executes one orchestrator turn.
func (c *RunCmd) Run(cli *CLI) error {
	rt, err := loadRuntime(cli)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelSink, err := rt.startTelemetry(ctx)
	if err != nil {
		return err
	}
	var pub ingest.Publisher
	if c.Publish {
		nc, err := nats.Connect(rt.cfg.NATS.URL, nats.Name("agentrace-run"))
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		rt.closers = append(rt.closers, func() error { return nc.Drain() })
		pub = nc
	}

	opts := turnOptions{
		Overrides: config.Overrides{
			SystemPrompt: c.SystemPrompt,
			Prompts:      c.Prompt,
			Models:       c.Model,
		},
		EventLog:  firstNonEmpty(c.EventLog, rt.cfg.Trace.EventLog),
		SpanLog:   firstNonEmpty(c.SpanLog, rt.cfg.Trace.SpanLog),
		Publisher: pub,
		Verbosity: c.Verbose,
		JSON:      c.JSON,
	}
	if otelSink != nil {
		opts.Sinks = append(opts.Sinks, otelSink)
	}

	res, err := runTurn(ctx, rt, strings.Join(c.Request, " "), opts, os.Stdout)
	if err != nil {
		return err
	}
	if res.Status != orchestrator.StatusComplete {
		return fmt.Errorf("turn %s", res.Status)
	}
	return nil
}

// turnOptions are the per-invocation knobs of runTurn.
type turnOptions struct {
	Overrides config.Overrides
	EventLog  string
	SpanLog   string
	Publisher ingest.Publisher
	Sinks     []trace.Sink
	Verbosity int
	JSON      bool
}

// runTurn runs one turn through a fresh engine and writes either the result
// as JSON or the answer followed by the rendered trace.
func runTurn(ctx context.Context, rt *runtime, input string, opts turnOptions, w io.Writer) (*orchestrator.Result, error) {
	engineOpts, err := rt.engineOptions()
	if err != nil {
		return nil, err
	}
	spanLog, err := rt.spanLog(opts.SpanLog)
	if err != nil {
		return nil, err
	}
	if spanLog != nil {
		engineOpts = append(engineOpts, trace.WithSink(spanLog))
	}
	for _, s := range opts.Sinks {
		engineOpts = append(engineOpts, trace.WithSink(s))
	}
	collector := sink.NewCollector()
	engineOpts = append(engineOpts, trace.WithSink(collector))
	engine := trace.NewEngine(engineOpts...)

	var handler trace.Handler = engine
	if opts.EventLog != "" {
		rec, err := eventlog.Create(opts.EventLog, "agentrace", engine)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, rec.Close)
		handler = rec
	}
	if opts.Publisher != nil {
		handler = trace.Tee(handler, ingest.NewForwarder(opts.Publisher, rt.cfg.NATS.EventSubject))
	}

	holder, err := orchestrator.NewHolder(rt.factory(), rt.cfg)
	if err != nil {
		return nil, err
	}
	orch, err := holder.ForTurn(opts.Overrides)
	if err != nil {
		return nil, err
	}

	res := orch.Run(ctx, orchestrator.Request{Input: input, Handler: handler})
	engine.Flush()

	if opts.JSON {
		v := newResultView(res)
		v.Spans = append(collector.Export(), collector.Incomplete()...)
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return res, enc.Encode(v)
	}
	fmt.Fprintln(w, res.Output)
	replay.NewRenderer(w, opts.Verbosity).Render(res.RunID, engine.Tree())
	return res, nil
}

// resultView is the JSON form of a turn result.
type resultView struct {
	Status     string         `json:"status"`
	Output     string         `json:"output"`
	RunID      string         `json:"run_id"`
	Rounds     int            `json:"rounds"`
	Dispatches []dispatchView `json:"dispatches,omitempty"`
	Error      string         `json:"error,omitempty"`
	Spans      []trace.Record `json:"spans,omitempty"` // closed spans first, then open ones
}

type dispatchView struct {
	Agent      string `json:"agent"`
	Task       string `json:"task"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

func newResultView(res *orchestrator.Result) resultView {
	v := resultView{
		Status: string(res.Status),
		Output: res.Output,
		RunID:  res.RunID,
		Rounds: res.Rounds,
	}
	for _, d := range res.Dispatches {
		v.Dispatches = append(v.Dispatches, dispatchView{
			Agent:      d.Agent,
			Task:       d.Task,
			Output:     d.Output,
			Error:      d.Error,
			DurationMs: d.EndedAt.Sub(d.StartedAt).Milliseconds(),
		})
	}
	if res.Error != nil {
		v.Error = res.Error.Error
	}
	return v
}

// Run validates config and catalog by building an orchestrator from them.
func (v *ValidateCmd) Run(cli *CLI) error {
	rt, err := loadRuntime(cli)
	if err != nil {
		return err
	}
	defer rt.close()

	if _, err := rt.engineOptions(); err != nil {
		return err
	}
	orch, err := rt.factory().Build(rt.cfg)
	if err != nil {
		return err
	}
	fmt.Printf("✓ config valid (decider: %s, timeout: %s)\n", rt.cfg.Orchestrator.Decider, timeoutOf(rt.cfg))
	fmt.Print(orch.Registry().Describe())
	return nil
}

func timeoutOf(cfg *config.Config) string {
	if d, err := time.ParseDuration(cfg.Orchestrator.Timeout); err == nil && d > 0 {
		return d.String()
	}
	return "none"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
