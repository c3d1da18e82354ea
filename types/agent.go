package types

// AgentResponse is the result of one agent invocation.
type AgentResponse struct {
	// AgentID identifies the agent that produced the response.
	AgentID string `json:"agent_id"`
	// Output is the agent's textual output.
	Output string `json:"output"`
	// Confidence is the agent-reported confidence in [0,1].
	// Zero when the agent reported none.
	Confidence float64 `json:"confidence,omitempty"`
	// LatencyMs is the observed round-trip latency in milliseconds.
	LatencyMs int64 `json:"latency_ms"`
}
