// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Config  string `short:"c" help:"Config file path (default: ./agentrace.toml)" type:"path"`
	Catalog string `help:"Capability catalog (YAML), overrides the config's catalog" type:"path"`

	Run      RunCmd      `cmd:"" help:"Run one orchestrator turn and print its trace"`
	Replay   ReplayCmd   `cmd:"" help:"Rebuild and show a trace from an event log"`
	Serve    ServeCmd    `cmd:"" help:"Ingest events from NATS and answer orchestrator requests"`
	Validate ValidateCmd `cmd:"" help:"Validate config and capability catalog"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// RunCmd runs a single turn.
type RunCmd struct {
	Request      []string          `arg:"" help:"Request text"`
	EventLog     string            `help:"Record raw lifecycle events to this JSONL file (overrides config)"`
	SpanLog      string            `help:"Append resolved spans to this JSONL file (overrides config)"`
	Publish      bool              `help:"Also publish lifecycle events to NATS"`
	SystemPrompt string            `help:"Override the orchestrator system prompt for this turn"`
	Prompt       map[string]string `help:"Subagent prompt override name=prompt (repeatable)"`
	Model        map[string]string `help:"Subagent model override name=model (repeatable)"`
	Verbose      int               `short:"v" type:"counter" help:"Verbosity level (-v, -vv)"`
	JSON         bool              `help:"Print the turn result as JSON instead of the trace"`
}

// ReplayCmd replays an event log.
type ReplayCmd struct {
	Log     string `arg:"" help:"Event log (JSONL) to replay"`
	Verbose int    `short:"v" type:"counter" help:"Verbosity level (-v, -vv)"`
	NoPager bool   `help:"Disable pager for output"`
	Live    bool   `help:"Watch the log and re-render as it grows"`
}

// ServeCmd runs the long-lived ingestion service.
type ServeCmd struct {
	NATS    string `name:"nats" help:"NATS server URL (overrides config)"`
	NoWatch bool   `help:"Do not reload the config file on change"`
}

// ValidateCmd validates configuration.
type ValidateCmd struct{}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
