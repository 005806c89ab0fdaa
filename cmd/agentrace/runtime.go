package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vinayprograms/agentkit/credentials"
	"github.com/vinayprograms/agentkit/llm"

	"github.com/vinayprograms/agentrace/internal/agents"
	"github.com/vinayprograms/agentrace/internal/config"
	"github.com/vinayprograms/agentrace/internal/orchestrator"
	"github.com/vinayprograms/agentrace/internal/registry"
	"github.com/vinayprograms/agentrace/internal/sink"
	"github.com/vinayprograms/agentrace/internal/telemetry"
	"github.com/vinayprograms/agentrace/internal/trace"
)

// runtime holds what every command builds from the config.
type runtime struct {
	cfg        *config.Config
	configPath string
	catalog    []registry.CatalogEntry
	creds      *credentials.Credentials
	models     *agents.Providers // nil when no LLM is configured

	baseProvider string
	closers      []func() error
}

// loadRuntime loads config, catalog and credentials. LLM providers are set up
// only when an LLM is configured.
func loadRuntime(cli *CLI) (*runtime, error) {
	rt := &runtime{configPath: cli.Config}

	var err error
	if cli.Config != "" {
		rt.cfg, err = config.LoadFile(cli.Config)
	} else {
		rt.cfg, err = config.LoadDefault()
		if _, statErr := os.Stat(config.DefaultFile); statErr == nil {
			rt.configPath = config.DefaultFile
		}
	}
	if err != nil {
		return nil, err
	}

	catalogPath := cli.Catalog
	if catalogPath == "" {
		catalogPath = rt.cfg.Catalog
	}
	if catalogPath != "" {
		if rt.catalog, err = registry.LoadCatalog(catalogPath); err != nil {
			return nil, err
		}
	}

	// Priority: credentials.toml > env vars
	if creds, _, err := credentials.Load(); err == nil && creds != nil {
		rt.creds = creds
	}
	if err := rt.createModels(); err != nil {
		return nil, err
	}
	return rt, nil
}

// createModels sets up the per-model provider cache shared by the llm decider
// and model-backed subagents. Nothing is set up when no LLM is configured.
func (rt *runtime) createModels() error {
	base := llm.ProviderConfig{
		Provider:  rt.cfg.LLM.Provider,
		Model:     rt.cfg.LLM.Model,
		MaxTokens: rt.cfg.LLM.MaxTokens,
		BaseURL:   rt.cfg.LLM.BaseURL,
	}
	if base.Provider == "" {
		base.Provider = llm.InferProviderFromModel(base.Model)
	}
	if base.Provider == "" && base.Model == "" {
		if rt.cfg.Orchestrator.Decider == config.DeciderLLM {
			return fmt.Errorf("LLM model not configured")
		}
		return nil
	}
	if base.Model == "" {
		base.Model = rt.cfg.Orchestrator.Model
	}
	rt.baseProvider = base.Provider
	base.APIKey = rt.apiKey(base.Provider)

	rt.models = agents.NewProviders(base, agents.WithAPIKeys(rt.apiKey))
	if _, err := rt.models.Provider(""); err != nil {
		return fmt.Errorf("creating LLM provider: %w", err)
	}
	return nil
}

// apiKey looks a provider's key up in credentials.toml, then in the
// environment. api_key_env applies to the configured provider only.
func (rt *runtime) apiKey(provider string) string {
	if rt.creds != nil {
		if key := rt.creds.GetAPIKey(provider); key != "" {
			return key
		}
	}
	if provider == rt.baseProvider {
		if key := rt.cfg.GetAPIKey(); key != "" {
			return key
		}
	}
	if env := config.DefaultAPIKeyEnv(provider); env != "" {
		return os.Getenv(env)
	}
	return ""
}

// handles binds a handle to every configured subagent. The math subagent is
// local; the rest are model-backed when an LLM is configured and echo otherwise.
func (rt *runtime) handles() map[string]registry.Handle {
	out := make(map[string]registry.Handle, len(rt.cfg.Subagents))
	for name := range rt.cfg.Subagents {
		switch {
		case name == config.MathAgent:
			out[name] = agents.NewMath()
		case rt.models != nil:
			out[name] = agents.NewModel(rt.models)
		default:
			out[name] = agents.Echo{}
		}
	}
	return out
}

func (rt *runtime) factory() *orchestrator.Factory {
	f := &orchestrator.Factory{
		Handles: rt.handles(),
		Catalog: rt.catalog,
	}
	if rt.models != nil {
		f.Models = rt.models
	}
	return f
}

// engineOptions maps the trace section onto engine options.
func (rt *runtime) engineOptions() ([]trace.Option, error) {
	tc := rt.cfg.Trace
	opts := []trace.Option{
		trace.WithMaxPayloadChars(tc.MaxPayloadChars),
		trace.WithWrapperFrames(tc.ShowWrapperFrames),
	}
	if tc.RoutingPolicy != "" {
		p, err := trace.ParseRoutingPolicy(tc.RoutingPolicy)
		if err != nil {
			return nil, err
		}
		opts = append(opts, trace.WithRoutingPolicy(p))
	}
	if len(tc.HiddenTags) > 0 {
		opts = append(opts, trace.WithHiddenTags(tc.HiddenTags...))
	}
	if len(tc.HiddenNames) > 0 {
		opts = append(opts, trace.WithHiddenNames(tc.HiddenNames...))
	}
	return opts, nil
}

// startTelemetry initializes exporters when enabled and returns an OTel sink
// bound to the global tracer provider, or nil when telemetry is off.
func (rt *runtime) startTelemetry(ctx context.Context) (*sink.OTel, error) {
	tc := rt.cfg.Telemetry
	if !tc.Enabled || tc.Endpoint == "" || tc.Protocol == "noop" {
		return nil, nil
	}
	shutdown, err := telemetry.Init(ctx, tc.Endpoint, tc.ServiceName, version, tc.Insecure)
	if err != nil {
		return nil, err
	}
	otelSink := sink.NewOTel(telemetry.TracerProvider())
	rt.closers = append(rt.closers, func() error {
		otelSink.Close()
		return shutdown(context.Background())
	})
	return otelSink, nil
}

// spanLog opens the resolved span log, if one is configured.
func (rt *runtime) spanLog(path string) (*sink.JSONL, error) {
	if path == "" {
		return nil, nil
	}
	j, err := sink.OpenJSONL(path)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, j.Close)
	return j, nil
}

// close releases everything opened through the runtime, last opened first.
func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}
	rt.closers = nil
}
