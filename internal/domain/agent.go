package domain

// StatusSuccess is the only agent status treated as a successful answer.
const StatusSuccess = "success"

// AgentResult is the normalized envelope returned by the remote agent call,
// independent of the agent's own response shape.
type AgentResult struct {
	Success  bool           `json:"success"`
	Response *AgentResponse `json:"response,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// AgentResponse is the agent-level status and payload.
type AgentResponse struct {
	Status  string       `json:"status"`
	Result  *AgentAnswer `json:"result,omitempty"`
	Message string       `json:"message,omitempty"`
}

// AgentAnswer carries the structured answer fields.
type AgentAnswer struct {
	Answer          string   `json:"answer"`
	Sources         []string `json:"sources"`
	Confidence      *float64 `json:"confidence,omitempty"`
	SuggestedAction string   `json:"suggested_action"`
}

// Succeeded reports whether the result is on the single success path:
// transport-level success and an agent status of "success".
func (r AgentResult) Succeeded() bool {
	return r.Success && r.Response != nil && r.Response.Status == StatusSuccess
}
