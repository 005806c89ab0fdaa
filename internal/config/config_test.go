package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	cfg := New()
	if cfg.Orchestrator.Decider != DeciderRules {
		t.Errorf("expected rules decider, got %q", cfg.Orchestrator.Decider)
	}
	if cfg.Trace.MaxPayloadChars != 500 {
		t.Errorf("expected 500, got %d", cfg.Trace.MaxPayloadChars)
	}
	names := cfg.EnabledSubagents()
	if len(names) != 2 || names[0] != MathAgent || names[1] != ResearchAgent {
		t.Errorf("expected default subagents, got %v", names)
	}
	if len(cfg.Routes) != 2 || cfg.Routes[0].Agent != MathAgent {
		t.Errorf("expected math route first, got %+v", cfg.Routes)
	}
	if cfg.NATS.RequestSubject != "agentrace.requests" || cfg.NATS.EventSubject != "agentrace.events" {
		t.Errorf("unexpected NATS subjects %+v", cfg.NATS)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentrace.toml")
	content := `
[orchestrator]
decider = "llm"
max_rounds = 3

[llm]
provider = "anthropic"
model = "claude-sonnet-4-20250514"

[subagents."Math Agent"]
model = "gpt-4o"

[subagents."Weather Agent"]
description = "Looks up forecasts."

[[routes]]
agent = "Weather Agent"
keywords = ["weather", "forecast"]

[trace]
show_wrapper_frames = true
routing_policy = "last"
hidden_names = ["plumbing"]

[nats]
url = "nats://bus:4222"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Orchestrator.Decider != DeciderLLM || cfg.Orchestrator.MaxRounds != 3 {
		t.Errorf("unexpected orchestrator config %+v", cfg.Orchestrator)
	}
	if cfg.Orchestrator.SystemPrompt != DefaultSystemPrompt {
		t.Error("expected default system prompt kept")
	}
	if _, ok := cfg.Subagents[ResearchAgent]; ok {
		t.Error("expected file subagents to replace defaults")
	}
	math := cfg.Subagents[MathAgent]
	if math.Model != "gpt-4o" {
		t.Errorf("expected gpt-4o, got %q", math.Model)
	}
	if cfg.Orchestrator.Model != "claude-sonnet-4-20250514" || cfg.Subagents["Weather Agent"].Model != "claude-sonnet-4-20250514" {
		t.Errorf("expected blank models to use the [llm] model, got %q and %q",
			cfg.Orchestrator.Model, cfg.Subagents["Weather Agent"].Model)
	}
	if !strings.HasPrefix(math.Description, "Math calculation agent") {
		t.Errorf("expected default math description filled in, got %q", math.Description)
	}
	if len(cfg.Routes) != 1 || cfg.Routes[0].Agent != "Weather Agent" {
		t.Errorf("expected file routes only, got %+v", cfg.Routes)
	}
	if !cfg.Trace.ShowWrapperFrames || cfg.Trace.RoutingPolicy != "last" {
		t.Errorf("unexpected trace config %+v", cfg.Trace)
	}
	if cfg.Trace.MaxPayloadChars != 500 {
		t.Errorf("expected default payload bound kept, got %d", cfg.Trace.MaxPayloadChars)
	}
	if cfg.NATS.URL != "nats://bus:4222" || cfg.NATS.EventSubject != "agentrace.events" {
		t.Errorf("unexpected nats config %+v", cfg.NATS)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestLoadFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	os.WriteFile(path, []byte("[orchestrator\n"), 0644)
	if _, err := LoadFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadDefaultWithoutFile(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	os.Chdir(dir)

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Subagents) != 2 {
		t.Errorf("expected defaults, got %d subagents", len(cfg.Subagents))
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"decider", func(c *Config) { c.Orchestrator.Decider = "magic" }, "orchestrator.decider"},
		{"rounds", func(c *Config) { c.Orchestrator.MaxRounds = 0 }, "orchestrator.max_rounds"},
		{"no subagents", func(c *Config) {
			for name, sc := range c.Subagents {
				sc.Disabled = true
				c.Subagents[name] = sc
			}
			c.Routes = nil
		}, "subagents"},
		{"blank description", func(c *Config) {
			sc := c.Subagents[MathAgent]
			sc.Description = " "
			c.Subagents[MathAgent] = sc
		}, "subagents.Math Agent.description"},
		{"route target", func(c *Config) { c.Routes[0].Agent = "Ghost" }, "routes[0].agent"},
		{"route keywords", func(c *Config) { c.Routes[0].Keywords = nil }, "routes[0].keywords"},
		{"policy", func(c *Config) { c.Trace.RoutingPolicy = "middle" }, "trace.routing_policy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, vErr.Field)
			}
		})
	}
}

func TestOverridesApply(t *testing.T) {
	base := New()
	ov := Overrides{
		SystemPrompt: "Be terse.",
		Prompts:      map[string]string{MathAgent: "Only numbers."},
		Descriptions: map[string]string{ResearchAgent: "Finds facts."},
		Models:       map[string]string{MathAgent: "gpt-4o"},
	}
	if ov.Empty() {
		t.Fatal("expected non-empty overrides")
	}
	got, err := ov.Apply(base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Orchestrator.SystemPrompt != "Be terse." {
		t.Errorf("expected overridden prompt, got %q", got.Orchestrator.SystemPrompt)
	}
	if got.Subagents[MathAgent].Prompt != "Only numbers." || got.Subagents[MathAgent].Model != "gpt-4o" {
		t.Errorf("unexpected math agent %+v", got.Subagents[MathAgent])
	}
	if got.Subagents[ResearchAgent].Description != "Finds facts." {
		t.Errorf("unexpected research description %q", got.Subagents[ResearchAgent].Description)
	}

	if base.Orchestrator.SystemPrompt != DefaultSystemPrompt || base.Subagents[MathAgent].Model != DefaultModel {
		t.Error("expected base config untouched")
	}
}

func TestOverridesRejectInvalid(t *testing.T) {
	tests := []Overrides{
		{Prompts: map[string]string{"Ghost": "x"}},
		{Models: map[string]string{"Ghost": "x"}},
		{Descriptions: map[string]string{"Ghost": "x"}},
		{Descriptions: map[string]string{MathAgent: "   "}},
	}
	for i, ov := range tests {
		var vErr *ValidationError
		if _, err := ov.Apply(New()); !errors.As(err, &vErr) {
			t.Errorf("case %d: expected ValidationError, got %v", i, err)
		}
	}
	if !(Overrides{}).Empty() {
		t.Error("expected zero overrides to be empty")
	}
}

func TestCloneIsDeep(t *testing.T) {
	cfg := New()
	c := cfg.Clone()
	c.Routes[0].Keywords[0] = "changed"
	c.Subagents["New"] = SubagentConfig{Description: "x"}
	if cfg.Routes[0].Keywords[0] == "changed" {
		t.Error("expected route keywords copied")
	}
	if _, ok := cfg.Subagents["New"]; ok {
		t.Error("expected subagents copied")
	}
}

func TestGetAPIKey(t *testing.T) {
	t.Setenv("AGENTRACE_TEST_KEY", "secret")
	cfg := New()
	cfg.LLM.APIKeyEnv = "AGENTRACE_TEST_KEY"
	if cfg.GetAPIKey() != "secret" {
		t.Errorf("expected secret, got %q", cfg.GetAPIKey())
	}
	if DefaultAPIKeyEnv("openai") != "OPENAI_API_KEY" {
		t.Error("expected openai default env")
	}
	if DefaultAPIKeyEnv("unknown") != "" {
		t.Error("expected empty env for unknown provider")
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentrace.toml")
	os.WriteFile(path, []byte("[orchestrator]\nmax_rounds = 2\n"), 0644)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { changes <- c })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	os.WriteFile(path, []byte("[orchestrator]\nmax_rounds = 5\n"), 0644)

	select {
	case c := <-changes:
		if c.Orchestrator.MaxRounds != 5 {
			t.Errorf("expected 5 rounds, got %d", c.Orchestrator.MaxRounds)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("unexpected watch error: %v", err)
	}
}
