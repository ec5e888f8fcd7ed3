// Package agent defines the executor contract and the registry projections
// the orchestrator exposes for registered agents.
package agent

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/Strob0t/agentrouter/internal/domain/task"
)

// ErrInvalidAgent is returned when an agent is registered without an ID.
var ErrInvalidAgent = errors.New("invalid agent: id is required")

// Status represents whether an agent is currently executing an attempt.
type Status string

const (
	StatusIdle Status = "idle"
	StatusBusy Status = "busy"
)

// Agent is a registered executor capable of servicing one or more task types.
// The orchestrator never inspects the value returned by Run.
type Agent interface {
	ID() string
	Kind() string
	Capabilities() []string
	Run(ctx context.Context, t task.Task) (any, error)
}

// HealthChecker is implemented by agents that can report their own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Stats holds the runtime statistics the orchestrator keeps per agent.
type Stats struct {
	Successes   int64         `json:"successes"`
	Failures    int64         `json:"failures"`
	InFlight    int64         `json:"in_flight"`
	LastLatency time.Duration `json:"last_latency"`
	LastSeenAt  time.Time     `json:"last_seen_at,omitzero"`
}

// Info is the public, read-only projection of a registered agent.
type Info struct {
	ID           string   `json:"id"`
	Kind         string   `json:"kind"`
	Capabilities []string `json:"capabilities"`
	Status       Status   `json:"status"`
	Stats        Stats    `json:"stats"`
}

// CapabilitySet is a set of task types an agent can service.
type CapabilitySet map[string]struct{}

// NewCapabilitySet builds a set from a capability list, ignoring empty entries.
func NewCapabilitySet(caps []string) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		if c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}

// Has reports whether the set contains the given task type.
func (s CapabilitySet) Has(taskType string) bool {
	_, ok := s[taskType]
	return ok
}

// List returns the capabilities in sorted order.
func (s CapabilitySet) List() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// RunFunc is the signature of an agent's execution function.
type RunFunc func(ctx context.Context, t task.Task) (any, error)

// Func is an Agent backed by a plain function. Hosts use it for in-process
// executors; tests use it for scripted agents.
type Func struct {
	id     string
	kind   string
	caps   []string
	run    RunFunc
	health func(ctx context.Context) error
}

// NewFunc creates a function-backed agent.
func NewFunc(id, kind string, caps []string, run RunFunc) *Func {
	return &Func{id: id, kind: kind, caps: slices.Clone(caps), run: run}
}

// WithHealthCheck attaches a health check to the agent.
func (f *Func) WithHealthCheck(fn func(ctx context.Context) error) *Func {
	f.health = fn
	return f
}

func (f *Func) ID() string             { return f.id }
func (f *Func) Kind() string           { return f.kind }
func (f *Func) Capabilities() []string { return slices.Clone(f.caps) }

// Run executes the underlying function.
func (f *Func) Run(ctx context.Context, t task.Task) (any, error) {
	return f.run(ctx, t)
}

// HealthCheck reports healthy when no check was attached.
func (f *Func) HealthCheck(ctx context.Context) error {
	if f.health == nil {
		return nil
	}
	return f.health(ctx)
}
