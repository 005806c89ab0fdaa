// Package registry holds the fixed set of subagents an orchestrator may
// delegate to, each described in natural language.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrNotFound is returned by Lookup for a name that was never registered.
var ErrNotFound = errors.New("subagent not registered")

// Request is the work handed to a subagent.
type Request struct {
	Task   string         `json:"task"`
	Input  map[string]any `json:"input,omitempty"`
	Prompt string         `json:"prompt,omitempty"`
	Model  string         `json:"model,omitempty"`
}

// Response is what a subagent hands back.
type Response struct {
	Output string         `json:"output"`
	Data   map[string]any `json:"data,omitempty"`
}

// Handle invokes a subagent.
type Handle interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// HandleFunc adapts a function to a Handle.
type HandleFunc func(ctx context.Context, req Request) (Response, error)

// Invoke calls f.
func (f HandleFunc) Invoke(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Entry binds a name and capability description to a handle.
type Entry struct {
	Name        string
	Description string
	Handle      Handle
}

// ConfigurationError reports a registry that cannot be built.
type ConfigurationError struct {
	Name   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Name == "" {
		return "registry: " + e.Reason
	}
	return fmt.Sprintf("registry: subagent %q: %s", e.Name, e.Reason)
}

// Registry is immutable once built.
type Registry struct {
	entries map[string]Entry
	order   []string
}

// New validates entries and builds a registry.
func New(entries ...Entry) (*Registry, error) {
	if len(entries) == 0 {
		return nil, &ConfigurationError{Reason: "no subagents registered"}
	}
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		name := strings.TrimSpace(e.Name)
		switch {
		case name == "":
			return nil, &ConfigurationError{Reason: "empty subagent name"}
		case name != e.Name:
			return nil, &ConfigurationError{Name: e.Name, Reason: "name has surrounding whitespace"}
		case strings.TrimSpace(e.Description) == "":
			return nil, &ConfigurationError{Name: name, Reason: "missing capability description"}
		case e.Handle == nil:
			return nil, &ConfigurationError{Name: name, Reason: "no handle bound"}
		}
		if _, dup := r.entries[name]; dup {
			return nil, &ConfigurationError{Name: name, Reason: "duplicate subagent name"}
		}
		r.entries[name] = e
		r.order = append(r.order, name)
	}
	return r, nil
}

// Lookup returns the handle registered under name.
func (r *Registry) Lookup(name string) (Handle, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return e.Handle, nil
}

// Entry returns the full entry for name.
func (r *Registry) Entry(name string) (Entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// DescribeAll returns name to description for every subagent.
func (r *Registry) DescribeAll() map[string]string {
	out := make(map[string]string, len(r.entries))
	for name, e := range r.entries {
		out[name] = e.Description
	}
	return out
}

// Names returns subagent names in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// Len returns the number of subagents.
func (r *Registry) Len() int {
	return len(r.order)
}

// Describe renders the capability list the way deciders present it: one
// "- name: description" line per subagent in registration order.
func (r *Registry) Describe() string {
	var b strings.Builder
	for _, name := range r.order {
		fmt.Fprintf(&b, "- %s: %s\n", name, r.entries[name].Description)
	}
	return b.String()
}
