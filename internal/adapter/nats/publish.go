package nats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Strob0t/agentrouter/internal/domain/event"
	"github.com/Strob0t/agentrouter/internal/port/audit"
	"github.com/Strob0t/agentrouter/internal/port/broadcast"
	"github.com/Strob0t/agentrouter/internal/port/messagequeue"
)

// publishTimeout bounds a single best-effort publish.
const publishTimeout = 2 * time.Second

// Publisher is the subset of the queue used by the event and audit sinks.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Broadcaster publishes feed events to events.<type>.
type Broadcaster struct {
	pub Publisher
}

var _ broadcast.Broadcaster = (*Broadcaster)(nil)

// NewBroadcaster creates a Broadcaster publishing through pub.
func NewBroadcaster(pub Publisher) *Broadcaster {
	return &Broadcaster{pub: pub}
}

// BroadcastEvent publishes payload as JSON. Failures are logged and dropped.
func (b *Broadcaster) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.WarnContext(ctx, "nats broadcast marshal failed", "event_type", eventType, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := b.pub.Publish(ctx, messagequeue.EventSubject(eventType), data); err != nil {
		slog.WarnContext(ctx, "nats broadcast failed", "event_type", eventType, "error", err)
	}
}

// AuditSink publishes audit events to audit.<type>.
type AuditSink struct {
	pub Publisher
}

var _ audit.Logger = (*AuditSink)(nil)

// NewAuditSink creates an AuditSink publishing through pub.
func NewAuditSink(pub Publisher) *AuditSink {
	return &AuditSink{pub: pub}
}

// Log publishes ev and returns the publish error.
func (s *AuditSink) Log(ctx context.Context, ev event.Event) error {
	data, err := json.Marshal(messagequeue.AuditPayload{
		ID:        ev.ID,
		Type:      string(ev.Type),
		Payload:   ev.Payload,
		CreatedAt: ev.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	return s.pub.Publish(ctx, messagequeue.AuditSubject(string(ev.Type)), data)
}
