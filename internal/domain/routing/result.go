package routing

import "time"

// Outcome is the result of a single dispatch attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
	OutcomeTimeout Outcome = "timeout"
)

// Status is the terminal status of a dispatch.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusNoAgent   Status = "no_agent"
)

// Attempt records one (agent, task) execution. Attempts are never persisted
// by the orchestrator; they travel with the Result.
type Attempt struct {
	AgentID string        `json:"agent_id"`
	Score   float64       `json:"score"`
	Outcome Outcome       `json:"outcome"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// Result is the terminal outcome of routing one task. no_agent and failed are
// normal results, not errors.
type Result struct {
	DispatchID string    `json:"dispatch_id"`
	TaskID     string    `json:"task_id,omitempty"`
	TaskType   string    `json:"task_type"`
	Status     Status    `json:"status"`
	AgentID    string    `json:"agent,omitempty"`
	Output     any       `json:"output,omitempty"`
	Attempts   []Attempt `json:"attempts"`
	Failover   bool      `json:"failover"`
	Reason     string    `json:"reason,omitempty"`
}

// InitialAgent returns the agent of the first attempt, or "".
func (r *Result) InitialAgent() string {
	if len(r.Attempts) == 0 {
		return ""
	}
	return r.Attempts[0].AgentID
}
