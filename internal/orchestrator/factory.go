package orchestrator

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/zoobzio/clockz"

	"github.com/vinayprograms/agentrace/internal/agents"
	"github.com/vinayprograms/agentrace/internal/config"
	"github.com/vinayprograms/agentrace/internal/registry"
)

// Factory builds orchestrators from configuration.
type Factory struct {
	Handles map[string]registry.Handle
	Catalog []registry.CatalogEntry // fills in blank descriptions
	Models  agents.Models           // required by the llm decider
	Clock   clockz.Clock
}

// Build validates cfg and creates an orchestrator for it.
func (f *Factory) Build(cfg *config.Config) (*Orchestrator, error) {
	cfg = cfg.Clone()
	for _, c := range f.Catalog {
		sc, ok := cfg.Subagents[c.Name]
		if ok && strings.TrimSpace(sc.Description) == "" {
			sc.Description = c.Description
			cfg.Subagents[c.Name] = sc
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var enabled []registry.CatalogEntry
	profiles := make(map[string]Profile)
	for _, name := range cfg.EnabledSubagents() {
		sc := cfg.Subagents[name]
		enabled = append(enabled, registry.CatalogEntry{Name: name, Description: sc.Description})
		profiles[name] = Profile{Prompt: sc.Prompt, Model: sc.Model}
	}
	entries, err := registry.Bind(enabled, f.Handles)
	if err != nil {
		return nil, err
	}
	reg, err := registry.New(entries...)
	if err != nil {
		return nil, err
	}

	var decider Decider
	switch cfg.Orchestrator.Decider {
	case config.DeciderLLM:
		if f.Models == nil {
			return nil, &registry.ConfigurationError{Reason: "llm decider requires a provider"}
		}
		provider, err := f.Models.Provider(cfg.Orchestrator.Model)
		if err != nil {
			return nil, &registry.ConfigurationError{Reason: "llm decider: " + err.Error()}
		}
		decider = NewLLMDecider(provider, cfg.Orchestrator.Model)
	default:
		routes := make([]Route, 0, len(cfg.Routes))
		for _, r := range cfg.Routes {
			routes = append(routes, Route{Agent: r.Agent, Keywords: r.Keywords})
		}
		decider = NewRuleDecider(routes)
	}

	opts := []Option{
		WithMaxRounds(cfg.Orchestrator.MaxRounds),
		WithSystemPrompt(cfg.Orchestrator.SystemPrompt),
		WithProfiles(profiles),
		WithClock(f.Clock),
	}
	if cfg.Orchestrator.Timeout != "" {
		d, err := time.ParseDuration(cfg.Orchestrator.Timeout)
		if err != nil {
			return nil, &config.ValidationError{Field: "orchestrator.timeout", Reason: err.Error()}
		}
		opts = append(opts, WithTimeout(d))
	}
	return New(reg, decider, opts...)
}

type built struct {
	cfg  *config.Config
	orch *Orchestrator
}

// Holder owns the current orchestrator. Rebuild swaps it wholesale; turns
// already running keep the instance they started with.
type Holder struct {
	factory *Factory
	current atomic.Pointer[built]
	mu      sync.Mutex // serializes rebuilds
	logger  *logging.Logger
}

// NewHolder builds the first orchestrator.
func NewHolder(f *Factory, cfg *config.Config) (*Holder, error) {
	h := &Holder{factory: f, logger: logging.New().WithComponent("orchestrator")}
	if err := h.Rebuild(cfg); err != nil {
		return nil, err
	}
	return h, nil
}

// Current returns the orchestrator in use.
func (h *Holder) Current() *Orchestrator {
	return h.current.Load().orch
}

// Rebuild replaces the current orchestrator. On error the old one stays.
func (h *Holder) Rebuild(cfg *config.Config) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	orch, err := h.factory.Build(cfg)
	if err != nil {
		return fmt.Errorf("rebuild orchestrator: %w", err)
	}
	h.current.Store(&built{cfg: cfg.Clone(), orch: orch})
	h.logger.Info("orchestrator built", map[string]interface{}{
		"subagents": orch.Registry().Names(),
		"decider":   cfg.Orchestrator.Decider,
	})
	return nil
}

// ForTurn returns an orchestrator for a single turn with overrides applied.
// The held instance is not replaced.
func (h *Holder) ForTurn(ov config.Overrides) (*Orchestrator, error) {
	if ov.Empty() {
		return h.Current(), nil
	}
	cfg, err := ov.Apply(h.current.Load().cfg)
	if err != nil {
		return nil, err
	}
	return h.factory.Build(cfg)
}
