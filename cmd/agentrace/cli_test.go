package main

import (
	"testing"

	"github.com/alecthomas/kong"
)

func parse(t *testing.T, args ...string) (*CLI, string) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Vars(kongVars()))
	if err != nil {
		t.Fatal(err)
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		t.Fatal(err)
	}
	return &cli, ctx.Command()
}

func TestRunCmd_Flags(t *testing.T) {
	cli, cmd := parse(t, "run", "What", "is", "25", "*", "4?",
		"--event-log", "events.jsonl", "--prompt", "Math Agent=be terse", "-v", "-v", "--json")
	if cmd != "run <request>" {
		t.Errorf("unexpected command %q", cmd)
	}
	if len(cli.Run.Request) != 5 || cli.Run.Request[2] != "25" {
		t.Errorf("unexpected request %q", cli.Run.Request)
	}
	if cli.Run.EventLog != "events.jsonl" {
		t.Errorf("expected event log, got %q", cli.Run.EventLog)
	}
	if cli.Run.Prompt["Math Agent"] != "be terse" {
		t.Errorf("unexpected prompt overrides %v", cli.Run.Prompt)
	}
	if cli.Run.Verbose != 2 || !cli.Run.JSON {
		t.Errorf("expected two -v and --json, got %d, %v", cli.Run.Verbose, cli.Run.JSON)
	}
}

func TestReplayCmd_Flags(t *testing.T) {
	cli, _ := parse(t, "replay", "events.jsonl", "--live", "--no-pager", "-v")
	if cli.Replay.Log != "events.jsonl" {
		t.Errorf("expected log path, got %q", cli.Replay.Log)
	}
	if !cli.Replay.Live || !cli.Replay.NoPager || cli.Replay.Verbose != 1 {
		t.Errorf("unexpected replay flags %+v", cli.Replay)
	}
}

func TestServeCmd_Flags(t *testing.T) {
	cli, _ := parse(t, "--config", "agentrace.toml", "serve", "--nats", "nats://bus:4222", "--no-watch")
	if cli.Serve.NATS != "nats://bus:4222" || !cli.Serve.NoWatch {
		t.Errorf("unexpected serve flags %+v", cli.Serve)
	}
	if cli.Config == "" {
		t.Error("expected global config flag")
	}
}

func TestValidateAndVersion(t *testing.T) {
	if _, cmd := parse(t, "validate"); cmd != "validate" {
		t.Errorf("unexpected command %q", cmd)
	}
	if _, cmd := parse(t, "version"); cmd != "version" {
		t.Errorf("unexpected command %q", cmd)
	}
}
