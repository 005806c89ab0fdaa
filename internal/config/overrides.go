package config

import (
	"fmt"
	"sort"
	"strings"
)

// Overrides are per-turn adjustments to prompts, descriptions and models.
// Empty values leave the base configuration in place.
type Overrides struct {
	SystemPrompt      string            `json:"system_prompt,omitempty"`
	OrchestratorModel string            `json:"orchestrator_model,omitempty"`
	Prompts           map[string]string `json:"prompts,omitempty"`
	Descriptions      map[string]string `json:"descriptions,omitempty"`
	Models            map[string]string `json:"models,omitempty"`
}

// Empty reports whether the overrides change nothing.
func (o Overrides) Empty() bool {
	return o.SystemPrompt == "" && o.OrchestratorModel == "" &&
		len(o.Prompts) == 0 && len(o.Descriptions) == 0 && len(o.Models) == 0
}

// Apply validates the overrides against cfg and returns an overridden copy.
// cfg itself is not modified.
func (o Overrides) Apply(cfg *Config) (*Config, error) {
	out := cfg.Clone()
	if o.SystemPrompt != "" {
		out.Orchestrator.SystemPrompt = o.SystemPrompt
	}
	if o.OrchestratorModel != "" {
		out.Orchestrator.Model = o.OrchestratorModel
	}

	for _, name := range sortedKeys(o.Descriptions) {
		sc, ok := out.Subagents[name]
		if !ok {
			return nil, unknownSubagent("descriptions", name)
		}
		desc := o.Descriptions[name]
		if strings.TrimSpace(desc) == "" {
			return nil, &ValidationError{Field: "descriptions." + name, Reason: "blank capability description"}
		}
		sc.Description = desc
		out.Subagents[name] = sc
	}
	for _, name := range sortedKeys(o.Prompts) {
		sc, ok := out.Subagents[name]
		if !ok {
			return nil, unknownSubagent("prompts", name)
		}
		if p := o.Prompts[name]; p != "" {
			sc.Prompt = p
		}
		out.Subagents[name] = sc
	}
	for _, name := range sortedKeys(o.Models) {
		sc, ok := out.Subagents[name]
		if !ok {
			return nil, unknownSubagent("models", name)
		}
		if m := o.Models[name]; m != "" {
			sc.Model = m
		}
		out.Subagents[name] = sc
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func unknownSubagent(field, name string) error {
	return &ValidationError{Field: field + "." + name, Reason: fmt.Sprintf("unknown subagent %q", name)}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
