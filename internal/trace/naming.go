package trace

import (
	"fmt"
	"strings"
)

// RoutingPolicy picks the routing tag when an event carries several.
type RoutingPolicy int

const (
	// FirstTag uses the first routing tag, which is the outermost subagent.
	FirstTag RoutingPolicy = iota
	// LastTag uses the last routing tag, which is the innermost subagent.
	LastTag
)

func (p RoutingPolicy) String() string {
	if p == LastTag {
		return "last"
	}
	return "first"
}

// ParseRoutingPolicy maps "first" and "last" to a policy.
func ParseRoutingPolicy(s string) (RoutingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first", "outermost":
		return FirstTag, nil
	case "last", "innermost":
		return LastTag, nil
	}
	return FirstTag, fmt.Errorf("unknown routing policy %q", s)
}

// Suppression reasons.
const (
	ReasonHiddenTag     = "hidden_tag"
	ReasonInternalFrame = "internal_frame"
	ReasonToolsNode     = "tools_node"
)

type resolution struct {
	name     string
	kind     Kind
	subagent string
	node     string
	launcher bool
	suppress string
}

// resolve applies the naming rules. root reports that the event has no
// visible parent.
func (e *Engine) resolve(ev StartEvent, root bool) resolution {
	if e.hidden(ev.Tags) {
		return resolution{suppress: ReasonHiddenTag}
	}
	switch ev.Type {
	case EventTool:
		return e.resolveTool(ev)
	case EventModel:
		return e.resolveModel(ev)
	}
	return e.resolveChain(ev, root)
}

func (e *Engine) resolveChain(ev StartEvent, root bool) resolution {
	if _, ok := e.hiddenNames[ev.Name]; ok {
		return resolution{suppress: ReasonInternalFrame}
	}
	node := nodeID(ev.Metadata)
	if sub, ok := e.routing(ev.Tags); ok {
		r := resolution{subagent: sub, node: node}
		switch {
		case ev.Name == WrapperFrame:
			r.name, r.kind = "→ "+sub, KindSubagent
		case node != "" && node != ToolsNode:
			r.name, r.kind = sub+"."+node, KindGeneric
		case node == ToolsNode:
			return resolution{suppress: ReasonToolsNode}
		default:
			r.name, r.kind = sub, KindSubagent
		}
		return r
	}
	if ev.Name == WrapperFrame {
		return resolution{name: WrapperSentinel, kind: KindGeneric, node: node}
	}
	name := firstNonEmpty(node, ev.Name, ev.Serialized.Name, first(ev.Serialized.ID))
	if name == GraphName {
		if root {
			return resolution{name: SupervisorName, kind: KindOrchestration, node: node}
		}
		return resolution{name: NestedGraphName, kind: KindGeneric, node: node}
	}
	if name == "" {
		name = fallbackChain
	}
	return resolution{name: name, kind: KindGeneric, node: node}
}

func (e *Engine) resolveTool(ev StartEvent) resolution {
	name := firstNonEmpty(ev.Name, ev.Serialized.Name, first(ev.Serialized.ID), fallbackTool)
	sub, inSub := e.routing(ev.Tags)
	if name == LauncherTool {
		if target, ok := launcherTarget(ev.Input); ok {
			return resolution{name: target, kind: KindSubagent, subagent: sub, launcher: true}
		}
	}
	if inSub {
		return resolution{name: sub + "." + name, kind: KindTool, subagent: sub}
	}
	return resolution{name: name, kind: KindTool}
}

func (e *Engine) resolveModel(ev StartEvent) resolution {
	sub, _ := e.routing(ev.Tags)
	name := firstNonEmpty(ev.Name, ev.Serialized.Name, first(ev.Serialized.ID), fallbackModel)
	return resolution{name: name, kind: KindModel, subagent: sub}
}

func (e *Engine) hidden(tags []string) bool {
	for _, t := range tags {
		if _, ok := e.hiddenTags[t]; ok {
			return true
		}
	}
	return false
}

// routing returns the subagent named by the event's routing tags.
func (e *Engine) routing(tags []string) (string, bool) {
	found, name := false, ""
	for _, t := range tags {
		sub, ok := strings.CutPrefix(t, RoutingTagPrefix)
		if !ok || sub == "" {
			continue
		}
		if e.policy == FirstTag {
			return sub, true
		}
		found, name = true, sub
	}
	return name, found
}

// launcherTarget extracts the target subagent from a launcher tool's input.
func launcherTarget(input any) (string, bool) {
	var v any
	switch in := input.(type) {
	case map[string]any:
		val, ok := in[LauncherField]
		if !ok {
			return "", false
		}
		v = val
	case map[string]string:
		val, ok := in[LauncherField]
		if !ok {
			return "", false
		}
		v = val
	default:
		return "", false
	}
	target := ""
	if v != nil {
		target = strings.TrimSpace(fmt.Sprint(v))
	}
	if target == "" {
		target = UnknownAgent
	}
	return target, true
}

func nodeID(meta map[string]any) string {
	for _, k := range nodeKeys {
		if s, ok := meta[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func first(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}
