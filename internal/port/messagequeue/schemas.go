package messagequeue

import "encoding/json"

// AgentRunRequest is the schema for agents.run.{agent_id} requests.
type AgentRunRequest struct {
	DispatchID string          `json:"dispatch_id,omitempty"`
	TaskID     string          `json:"task_id,omitempty"`
	TaskType   string          `json:"task_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	TimeoutMS  int64           `json:"timeout_ms,omitempty"`
}

// AgentRunReply is the schema for replies to agents.run requests.
// A non-empty Error marks the attempt as failed.
type AgentRunReply struct {
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// AuditPayload is the schema for audit.{type} messages.
type AuditPayload struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"created_at"`
}
