package routing

import (
	"time"

	"github.com/Strob0t/agentrouter/internal/domain/agent"
)

// FreshnessWindow is the inactivity span after which freshness reaches zero.
const FreshnessWindow = 60 * time.Second

// SuccessRate returns successes/(successes+failures), or 0.5 with no history.
func SuccessRate(s agent.Stats) float64 {
	total := s.Successes + s.Failures
	if total <= 0 {
		return 0.5
	}
	return float64(s.Successes) / float64(total)
}

// Freshness returns 1 for an agent seen just now, decaying linearly to 0
// after FreshnessWindow. Agents never seen score 0.
func Freshness(s agent.Stats, now time.Time) float64 {
	if s.LastSeenAt.IsZero() {
		return 0
	}
	age := now.Sub(s.LastSeenAt)
	if age < 0 {
		age = 0
	}
	ratio := float64(age) / float64(FreshnessWindow)
	if ratio > 1 {
		ratio = 1
	}
	return 1 - ratio
}

// LoadPenalty returns 1/(1+inFlight).
func LoadPenalty(s agent.Stats) float64 {
	inFlight := s.InFlight
	if inFlight < 0 {
		inFlight = 0
	}
	return 1 / (1 + float64(inFlight))
}

// Score computes the fitness of an agent for a task type. The second return
// value is false when the agent lacks the capability; such agents are
// excluded from ranking rather than scored low.
func Score(w Weights, caps agent.CapabilitySet, taskType string, s agent.Stats, now time.Time) (float64, bool) {
	if !caps.Has(taskType) {
		return 0, false
	}
	score := w.Capability +
		w.SuccessRate*SuccessRate(s) +
		w.Freshness*Freshness(s, now) +
		w.Load*LoadPenalty(s)
	return score, true
}

// Candidate is an eligible agent with its computed score.
type Candidate struct {
	AgentID string  `json:"agent_id"`
	Score   float64 `json:"score"`
}
