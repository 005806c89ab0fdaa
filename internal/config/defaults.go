package config

// DefaultModel is used for the orchestrator and subagents when neither they
// nor the [llm] section name a model.
const DefaultModel = "gpt-4o-mini"

// Names of the built-in subagents.
const (
	ResearchAgent = "Research Agent"
	MathAgent     = "Math Agent"
)

// DefaultSystemPrompt instructs the orchestrator how to delegate.
const DefaultSystemPrompt = `You are a helpful AI assistant that can delegate tasks to specialized agents when needed.

For simple greetings, small talk, or general conversational responses, respond directly yourself.
Delegate factual questions about real-world events, people, places or statistics to the Research Agent.
Delegate only queries that require calculations with specific numbers to the Math Agent.
When delegating, assign work to one agent at a time. Do not call agents in parallel.`

const researchDescription = "Research agent with web search capabilities. " +
	"Use this agent for: web searches, finding information online, " +
	"looking up current events, researching topics, gathering data from the internet, " +
	"answering questions that require external knowledge or real-time information."

const mathDescription = "Math calculation agent with arithmetic tools. " +
	"Use this agent for: mathematical calculations, arithmetic operations, " +
	"addition, subtraction, multiplication, division, numerical computations, " +
	"solving math problems, performing calculations."

const researchPrompt = `You are a research agent.

INSTRUCTIONS:
- Assist ONLY with research-related tasks, DO NOT do any math
- Provide links to sources of your information in the response
- After you're done with your tasks, respond to the supervisor directly
- Respond ONLY with the results of your work, do NOT include ANY other text.`

const mathPrompt = `You are a math agent.

INSTRUCTIONS:
- Assist ONLY with math-related tasks
- After you're done with your tasks, respond to the supervisor directly
- Respond ONLY with the results of your work, do NOT include ANY other text.`

// DefaultSubagents returns the built-in subagent set.
func DefaultSubagents() map[string]SubagentConfig {
	return map[string]SubagentConfig{
		ResearchAgent: {Description: researchDescription, Prompt: researchPrompt},
		MathAgent:     {Description: mathDescription, Prompt: mathPrompt},
	}
}

// DefaultRoutes returns keyword routes for the built-in subagents. Math is
// listed first so arithmetic phrased as a question is not sent to research.
func DefaultRoutes() []RouteConfig {
	return []RouteConfig{
		{Agent: MathAgent, Keywords: []string{"+", "*", " x ", "/", " - ", "plus", "minus", "times", "multiply", "divide", "divided by", "sum of", "product of", "calculate"}},
		{Agent: ResearchAgent, Keywords: []string{"who ", "when ", "where ", "search", "look up", "latest", "news", "population", "capital of"}},
	}
}
