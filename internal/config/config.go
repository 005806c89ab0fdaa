// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultFile is the config file LoadDefault looks for.
const DefaultFile = "agentrace.toml"

// Decider kinds.
const (
	DeciderRules = "rules"
	DeciderLLM   = "llm"
)

// Config represents the orchestrator configuration.
type Config struct {
	Orchestrator OrchestratorConfig        `toml:"orchestrator"`
	LLM          LLMConfig                 `toml:"llm"`
	Subagents    map[string]SubagentConfig `toml:"subagents"`
	Routes       []RouteConfig             `toml:"routes"`
	Catalog      string                    `toml:"catalog"` // YAML capability catalog
	Trace        TraceConfig               `toml:"trace"`
	Telemetry    TelemetryConfig           `toml:"telemetry"`
	NATS         NATSConfig                `toml:"nats"`
}

// OrchestratorConfig contains router settings.
type OrchestratorConfig struct {
	SystemPrompt string `toml:"system_prompt"`
	Model        string `toml:"model"`
	Decider      string `toml:"decider"`    // rules (default) or llm
	MaxRounds    int    `toml:"max_rounds"` // decision rounds per turn
	Timeout      string `toml:"timeout"`    // per-turn timeout, e.g. "2m"
}

// LLMConfig contains LLM provider settings.
type LLMConfig struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	APIKeyEnv string `toml:"api_key_env"`
	MaxTokens int    `toml:"max_tokens"`
	BaseURL   string `toml:"base_url"` // Custom API endpoint (OpenRouter, LiteLLM, Ollama, LMStudio)
}

// SubagentConfig describes one delegable subagent.
type SubagentConfig struct {
	Description string `toml:"description"`
	Prompt      string `toml:"prompt"`
	Model       string `toml:"model"`
	Disabled    bool   `toml:"disabled"`
}

// RouteConfig is a keyword rule for the rule-based decider.
type RouteConfig struct {
	Agent    string   `toml:"agent"`
	Keywords []string `toml:"keywords"`
}

// TraceConfig contains trace reconstruction settings.
type TraceConfig struct {
	MaxPayloadChars   int      `toml:"max_payload_chars"`
	HiddenTags        []string `toml:"hidden_tags"`
	HiddenNames       []string `toml:"hidden_names"`
	ShowWrapperFrames bool     `toml:"show_wrapper_frames"`
	RoutingPolicy     string   `toml:"routing_policy"` // first (default) or last
	EventLog          string   `toml:"event_log"`      // raw event JSONL
	SpanLog           string   `toml:"span_log"`       // resolved span JSONL
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled"`
	Endpoint    string `toml:"endpoint"` // OTLP/HTTP endpoint (e.g., localhost:4318)
	Protocol    string `toml:"protocol"` // http or noop
	Insecure    bool   `toml:"insecure"` // Disable TLS (default false)
	ServiceName string `toml:"service_name"`
}

// NATSConfig contains event bus settings.
type NATSConfig struct {
	URL            string `toml:"url"`
	EventSubject   string `toml:"event_subject"`   // raw lifecycle events
	SpanPrefix     string `toml:"span_prefix"`     // resolved spans: <prefix>.started|ended
	RequestSubject string `toml:"request_subject"` // orchestrator turns (request/reply)
	QueueGroup     string `toml:"queue_group"`
}

// New creates a new config with defaults.
func New() *Config {
	cfg := &Config{
		Orchestrator: OrchestratorConfig{
			Decider:   DeciderRules,
			MaxRounds: 8,
			Timeout:   "2m",
		},
		LLM: LLMConfig{
			MaxTokens: 4096,
		},
		Trace: TraceConfig{
			MaxPayloadChars: 500,
			RoutingPolicy:   "first",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "noop",
			ServiceName: "agentrace",
		},
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			EventSubject:   "agentrace.events",
			SpanPrefix:     "agentrace.spans",
			RequestSubject: "agentrace.requests",
			QueueGroup:     "agentrace",
		},
	}
	cfg.applyDefaults()
	return cfg
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	cfg.Subagents = nil
	cfg.Routes = nil
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadDefault loads configuration from agentrace.toml in the current
// directory, falling back to defaults when the file does not exist.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	path := filepath.Join(cwd, DefaultFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return New(), nil
	}
	return LoadFile(path)
}

// applyDefaults fills what the file left out. Known subagents get their
// default prompt and description; default routes are added only for
// subagents that exist. Models left blank use the [llm] model.
func (c *Config) applyDefaults() {
	model := c.LLM.Model
	if model == "" {
		model = DefaultModel
	}
	if c.Orchestrator.SystemPrompt == "" {
		c.Orchestrator.SystemPrompt = DefaultSystemPrompt
	}
	if c.Orchestrator.Model == "" {
		c.Orchestrator.Model = model
	}
	if len(c.Subagents) == 0 {
		c.Subagents = DefaultSubagents()
	}
	defaults := DefaultSubagents()
	for name, sc := range c.Subagents {
		if sc.Model == "" {
			sc.Model = model
		}
		if d, ok := defaults[name]; ok {
			if sc.Description == "" {
				sc.Description = d.Description
			}
			if sc.Prompt == "" {
				sc.Prompt = d.Prompt
			}
		}
		c.Subagents[name] = sc
	}
	if len(c.Routes) == 0 {
		for _, r := range DefaultRoutes() {
			if _, ok := c.Subagents[r.Agent]; ok {
				c.Routes = append(c.Routes, r)
			}
		}
	}
}

// EnabledSubagents returns the names of enabled subagents in sorted order.
func (c *Config) EnabledSubagents() []string {
	var names []string
	for name, sc := range c.Subagents {
		if !sc.Disabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Validate checks the configuration for values the orchestrator cannot use.
func (c *Config) Validate() error {
	switch c.Orchestrator.Decider {
	case DeciderRules, DeciderLLM:
	default:
		return &ValidationError{Field: "orchestrator.decider", Reason: fmt.Sprintf("unknown decider %q", c.Orchestrator.Decider)}
	}
	if c.Orchestrator.MaxRounds <= 0 {
		return &ValidationError{Field: "orchestrator.max_rounds", Reason: "must be positive"}
	}
	if len(c.EnabledSubagents()) == 0 {
		return &ValidationError{Field: "subagents", Reason: "no enabled subagents"}
	}
	for _, name := range c.EnabledSubagents() {
		if strings.TrimSpace(c.Subagents[name].Description) == "" {
			return &ValidationError{Field: "subagents." + name + ".description", Reason: "missing capability description"}
		}
	}
	for i, r := range c.Routes {
		sc, ok := c.Subagents[r.Agent]
		if !ok || sc.Disabled {
			return &ValidationError{Field: fmt.Sprintf("routes[%d].agent", i), Reason: fmt.Sprintf("unknown subagent %q", r.Agent)}
		}
		if len(r.Keywords) == 0 {
			return &ValidationError{Field: fmt.Sprintf("routes[%d].keywords", i), Reason: "no keywords"}
		}
	}
	switch strings.ToLower(c.Trace.RoutingPolicy) {
	case "", "first", "last", "outermost", "innermost":
	default:
		return &ValidationError{Field: "trace.routing_policy", Reason: fmt.Sprintf("unknown policy %q", c.Trace.RoutingPolicy)}
	}
	if c.Trace.MaxPayloadChars < 0 {
		return &ValidationError{Field: "trace.max_payload_chars", Reason: "must not be negative"}
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Subagents = maps.Clone(c.Subagents)
	out.Routes = make([]RouteConfig, len(c.Routes))
	for i, r := range c.Routes {
		out.Routes[i] = RouteConfig{Agent: r.Agent, Keywords: slices.Clone(r.Keywords)}
	}
	out.Trace.HiddenTags = slices.Clone(c.Trace.HiddenTags)
	out.Trace.HiddenNames = slices.Clone(c.Trace.HiddenNames)
	return &out
}

// GetAPIKey returns the API key from the configured environment variable.
// If api_key_env is not set, uses the default env var for the provider.
func (c *Config) GetAPIKey() string {
	envVar := c.LLM.APIKeyEnv
	if envVar == "" {
		envVar = DefaultAPIKeyEnv(c.LLM.Provider)
	}
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// DefaultAPIKeyEnv returns the default environment variable name for a provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	case "mistral":
		return "MISTRAL_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	default:
		return ""
	}
}

// ValidationError reports an unusable configuration value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
