package orchestrator

import (
	"encoding/json"
	"fmt"
)

// DispatchFailure reports a subagent invocation that failed. The orchestrator
// records it and turns it into an error payload instead of returning it.
type DispatchFailure struct {
	Agent string
	Task  string
	Err   error
}

func (f *DispatchFailure) Error() string {
	return fmt.Sprintf("dispatch to %s failed: %v", f.Agent, f.Err)
}

func (f *DispatchFailure) Unwrap() error {
	return f.Err
}

// ErrorPayload is the structured output of a turn that failed.
type ErrorPayload struct {
	Error string `json:"error"`
	Agent string `json:"agent,omitempty"`
}

// String renders the payload as JSON.
func (p ErrorPayload) String() string {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, p.Error)
	}
	return string(data)
}
