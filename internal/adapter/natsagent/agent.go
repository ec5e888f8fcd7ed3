// Package natsagent implements remote agents reached over NATS request/reply.
package natsagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Strob0t/agentrouter/internal/config"
	"github.com/Strob0t/agentrouter/internal/domain/agent"
	"github.com/Strob0t/agentrouter/internal/domain/task"
	"github.com/Strob0t/agentrouter/internal/logger"
	"github.com/Strob0t/agentrouter/internal/port/agentbackend"
	"github.com/Strob0t/agentrouter/internal/port/messagequeue"
	"github.com/Strob0t/agentrouter/internal/resilience"
)

// Transport is the agentbackend transport name served by this package.
const Transport = "nats"

// Requester is the part of the message queue a remote agent needs.
type Requester interface {
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
	IsConnected() bool
}

// ErrRemote wraps an error reported by the remote agent in its reply.
var ErrRemote = errors.New("remote agent error")

// ErrDisconnected is returned by HealthCheck while the queue is down.
var ErrDisconnected = errors.New("nats: not connected")

// Agent forwards tasks to agents.run.<id> (or a configured subject) and
// returns the JSON output of the reply.
type Agent struct {
	id      string
	kind    string
	caps    []string
	subject string
	q       Requester
	breaker *resilience.Breaker
}

var (
	_ agent.Agent         = (*Agent)(nil)
	_ agent.HealthChecker = (*Agent)(nil)
)

// New builds an agent from a definition. Options: "subject" overrides the
// request subject.
func New(def agentbackend.Definition, q Requester, cfg config.Breaker) *Agent {
	subject := def.Options["subject"]
	if subject == "" {
		subject = messagequeue.AgentRunSubject(def.ID)
	}
	kind := def.Kind
	if kind == "" {
		kind = Transport
	}
	return &Agent{
		id:      def.ID,
		kind:    kind,
		caps:    slices.Clone(def.Capabilities),
		subject: subject,
		q:       q,
		breaker: resilience.NewBreaker("natsagent:"+def.ID, cfg.MaxFailures, cfg.Timeout),
	}
}

// Factory returns an agentbackend.Factory building NATS agents on q.
func Factory(q Requester, cfg config.Breaker) agentbackend.Factory {
	return func(def agentbackend.Definition) (agent.Agent, error) {
		return New(def, q, cfg), nil
	}
}

func (a *Agent) ID() string             { return a.id }
func (a *Agent) Kind() string           { return a.kind }
func (a *Agent) Capabilities() []string { return slices.Clone(a.caps) }

// Subject returns the request subject.
func (a *Agent) Subject() string { return a.subject }

// Run sends the task and waits for the reply until ctx is done.
func (a *Agent) Run(ctx context.Context, t task.Task) (any, error) {
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	req := messagequeue.AgentRunRequest{
		DispatchID: logger.DispatchID(ctx),
		TaskID:     t.ID,
		TaskType:   t.Type,
		Payload:    payload,
	}
	if deadline, ok := ctx.Deadline(); ok {
		req.TimeoutMS = time.Until(deadline).Milliseconds()
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var out json.RawMessage
	err = a.breaker.Execute(ctx, func(ctx context.Context) error {
		raw, err := a.q.Request(ctx, a.subject, data)
		if err != nil {
			return err
		}
		var reply messagequeue.AgentRunReply
		if err := json.Unmarshal(raw, &reply); err != nil {
			return fmt.Errorf("decode reply: %w", err)
		}
		if reply.Error != "" {
			return fmt.Errorf("%w: %s", ErrRemote, reply.Error)
		}
		out = reply.Output
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.id, err)
	}
	return out, nil
}

// HealthCheck fails while the connection is down or the circuit is open.
func (a *Agent) HealthCheck(context.Context) error {
	if !a.q.IsConnected() {
		return ErrDisconnected
	}
	if a.breaker.State() == resilience.StateOpen {
		return resilience.ErrCircuitOpen
	}
	return nil
}
