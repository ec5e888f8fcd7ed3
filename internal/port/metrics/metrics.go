// Package metrics defines the optional dispatch metrics sink port.
package metrics

import (
	"context"
	"time"
)

// Recorder receives dispatch measurements. Implementations must be safe for
// concurrent use; absence of a recorder never affects routing.
type Recorder interface {
	// RecordSelection counts one selection attempt.
	RecordSelection(ctx context.Context, strategy, outcome, agentID string)
	// RecordExecution observes the duration of one agent execution.
	RecordExecution(ctx context.Context, agentID, taskType, outcome string, d time.Duration)
	// RecordFailover counts a dispatch that succeeded after earlier failures.
	RecordFailover(ctx context.Context, initialAgent, finalAgent, taskType string)
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) RecordSelection(context.Context, string, string, string)                {}
func (Nop) RecordExecution(context.Context, string, string, string, time.Duration) {}
func (Nop) RecordFailover(context.Context, string, string, string)                 {}
