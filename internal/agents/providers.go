package agents

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vinayprograms/agentkit/llm"
)

// ErrNoModel is returned when neither the request nor the base config names a model.
var ErrNoModel = errors.New("no model configured")

// Models resolves the provider that serves a model.
type Models interface {
	Provider(model string) (llm.Provider, error)
}

// Providers creates one provider per distinct model on first use and reuses
// it afterwards. The base model keeps the configured provider; other models
// get the provider inferred from their name, falling back to the configured one.
type Providers struct {
	base   llm.ProviderConfig
	apiKey func(provider string) string
	build  func(llm.ProviderConfig) (llm.Provider, error)

	mu    sync.Mutex
	cache map[string]llm.Provider
}

// ProvidersOption configures Providers.
type ProvidersOption func(*Providers)

// WithAPIKeys sets the per-provider API key lookup. Without it every model
// uses the base config's key.
func WithAPIKeys(fn func(provider string) string) ProvidersOption {
	return func(p *Providers) {
		p.apiKey = fn
	}
}

// WithBuilder replaces llm.NewProvider.
func WithBuilder(fn func(llm.ProviderConfig) (llm.Provider, error)) ProvidersOption {
	return func(p *Providers) {
		if fn != nil {
			p.build = fn
		}
	}
}

// NewProviders creates a provider cache around base.
func NewProviders(base llm.ProviderConfig, opts ...ProvidersOption) *Providers {
	p := &Providers{
		base:  base,
		build: llm.NewProvider,
		cache: make(map[string]llm.Provider),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provider returns the provider for model. An empty model means the base model.
func (p *Providers) Provider(model string) (llm.Provider, error) {
	if model == "" {
		model = p.base.Model
	}
	if model == "" {
		return nil, ErrNoModel
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if prov, ok := p.cache[model]; ok {
		return prov, nil
	}

	cfg := p.base
	cfg.Model = model
	if model != p.base.Model || cfg.Provider == "" {
		if inferred := llm.InferProviderFromModel(model); inferred != "" {
			cfg.Provider = inferred
		}
	}
	if p.apiKey != nil {
		if key := p.apiKey(cfg.Provider); key != "" {
			cfg.APIKey = key
		}
	}
	prov, err := p.build(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating provider for %s: %w", model, err)
	}
	p.cache[model] = prov
	return prov, nil
}

// Len reports how many providers have been created.
func (p *Providers) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cache)
}
