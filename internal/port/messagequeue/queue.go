// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing, subscribing and request/reply.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Request sends data to subject and waits for a single reply until ctx is done.
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject prefixes used by agentrouter.
const (
	SubjectAgentRun = "agents.run" // agents.run.{agent_id}: request/reply to a remote agent
	SubjectEvents   = "events"     // events.{type}: dispatch and review feed
	SubjectAudit    = "audit"      // audit.{type}: audit trail
)

// AgentRunSubject returns the request subject of a remote agent.
func AgentRunSubject(agentID string) string {
	return SubjectAgentRun + "." + agentID
}

// EventSubject returns the publish subject for a feed event type.
func EventSubject(eventType string) string {
	return SubjectEvents + "." + eventType
}

// AuditSubject returns the publish subject for an audit event type.
func AuditSubject(eventType string) string {
	return SubjectAudit + "." + eventType
}
