// Package event defines the envelope for dispatch, review and audit events
// published to live feeds and the audit log.
package event

import (
	"encoding/json"
	"time"
)

// Type identifies the kind of event.
type Type string

const (
	TypeDispatchCompleted Type = "dispatch.completed"
	TypeDispatchFailover  Type = "dispatch.failover"
	TypeDispatchFailed    Type = "dispatch.failed"
	TypeDispatchNoAgent   Type = "dispatch.no_agent"

	TypeReviewCreated       Type = "review.created"
	TypeReviewStatusChanged Type = "review.status_changed"
	TypeReviewEscalated     Type = "review.escalated"

	TypeAgentRegistered Type = "agent.registered"
)

// Event is a single immutable occurrence.
type Event struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// EscalationPayload is carried by TypeReviewEscalated audit events.
type EscalationPayload struct {
	OutputID      string   `json:"output_id"`
	ReviewID      string   `json:"review_id"`
	ExecutorLabel string   `json:"executor_label"`
	Confidence    *float64 `json:"confidence"`
	Threshold     float64  `json:"threshold"`
}

// New builds an event with a JSON-encoded payload.
func New(id string, typ Type, payload any, now time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{ID: id, Type: typ, Payload: data, CreatedAt: now}, nil
}
