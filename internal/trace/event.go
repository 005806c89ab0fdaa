// Package trace rebuilds a nested, named span tree from an unordered stream of
// start/end lifecycle events.
package trace

// EventType is the kind of unit of work an event describes.
type EventType string

const (
	EventChain EventType = "chain"
	EventTool  EventType = "tool"
	EventModel EventType = "model"
)

// Descriptor identifies the component that emitted an event.
type Descriptor struct {
	Name string   `json:"name,omitempty"`
	ID   []string `json:"id,omitempty"`
}

// StartEvent opens a run.
type StartEvent struct {
	Type        EventType      `json:"type"`
	Serialized  Descriptor     `json:"serialized"`
	Input       any            `json:"input,omitempty"`
	InputStr    string         `json:"input_str,omitempty"`
	RunID       string         `json:"run_id"`
	ParentRunID string         `json:"parent_run_id,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Name        string         `json:"name,omitempty"`
}

// EndEvent closes a run. Err is empty on success.
type EndEvent struct {
	RunID  string `json:"run_id"`
	Output any    `json:"output,omitempty"`
	Err    string `json:"error,omitempty"`
}

// Handler consumes lifecycle events. Engine is the canonical implementation;
// other handlers (recorders, fan-outs) forward to one.
type Handler interface {
	OnStart(ev StartEvent) Outcome
	OnEnd(ev EndEvent) (Span, bool)
}

// Well-known identifiers used by the naming rules.
const (
	// RoutingTagPrefix marks which subagent's execution an event belongs to.
	RoutingTagPrefix = "subagent:"

	// HiddenTag is the visibility tag that suppresses a frame outright.
	HiddenTag = "trace:hidden"

	// WrapperFrame is the raw name of the wrapper's own invocation frame.
	WrapperFrame = "invoke_with_name"

	// WrapperSentinel names a wrapper frame seen before routing context arrived.
	WrapperSentinel = "invoke_subagent"

	// ToolsNode is the generic node identifier for tool-dispatch plumbing.
	ToolsNode = "tools"

	// GraphName is the generic top-level identifier of an agent graph.
	GraphName = "LangGraph"

	SupervisorName  = "Supervisor Agent"
	NestedGraphName = "Agent Graph"

	// LauncherTool is the tool name through which subagents are launched.
	LauncherTool  = "task"
	LauncherField = "subagent_type"
	UnknownAgent  = "Unknown Agent"

	fallbackChain = "Chain"
	fallbackTool  = "Tool"
	fallbackModel = "LLM"
)

// Metadata keys carrying the secondary node identifier.
var nodeKeys = []string{"node", "langgraph_node"}

// DefaultHiddenTags are the visibility tags suppressed by default.
var DefaultHiddenTags = []string{HiddenTag, "langsmith:hidden"}

// DefaultHiddenNames are the internal plumbing frames suppressed by default.
// WrapperFrame is added unless wrapper frames are shown.
var DefaultHiddenNames = []string{WrapperSentinel, "model_to_tools", "tools_to_model"}

// RoutingTag returns the routing tag for a subagent name.
func RoutingTag(name string) string {
	return RoutingTagPrefix + name
}
