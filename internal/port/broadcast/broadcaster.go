// Package broadcast defines the port for broadcasting real-time events to connected clients.
package broadcast

import "context"

// Broadcaster sends real-time events to all connected clients.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to all connected clients.
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// Fanout forwards every event to each wrapped broadcaster.
type Fanout []Broadcaster

// BroadcastEvent forwards to all non-nil broadcasters.
func (f Fanout) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	for _, b := range f {
		if b != nil {
			b.BroadcastEvent(ctx, eventType, payload)
		}
	}
}

// Nop drops all events.
type Nop struct{}

// BroadcastEvent does nothing.
func (Nop) BroadcastEvent(context.Context, string, any) {}
