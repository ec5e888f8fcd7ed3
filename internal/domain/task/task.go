// Package task defines the Task value routed to agents.
package task

import (
	"errors"
	"strings"
	"time"
)

// ErrTypeRequired is returned when a task is submitted without a type.
// It is a caller error and is never retried.
var ErrTypeRequired = errors.New("task type is required")

// Task is an immutable unit of work submitted for routing.
type Task struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`

	// Timeout overrides the per-attempt timeout for this task when > 0.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Validate checks the caller contract for a task.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Type) == "" {
		return ErrTypeRequired
	}
	if t.Timeout < 0 {
		return errors.New("task timeout must not be negative")
	}
	return nil
}
