package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	arotel "github.com/Strob0t/agentrouter/internal/adapter/otel"
	"github.com/Strob0t/agentrouter/internal/config"
	"github.com/Strob0t/agentrouter/internal/domain/agent"
	"github.com/Strob0t/agentrouter/internal/domain/event"
	"github.com/Strob0t/agentrouter/internal/domain/routing"
	"github.com/Strob0t/agentrouter/internal/domain/task"
	"github.com/Strob0t/agentrouter/internal/logger"
	"github.com/Strob0t/agentrouter/internal/port/broadcast"
	"github.com/Strob0t/agentrouter/internal/port/metrics"
)

// defaultAttemptTimeout applies when neither the task nor the config sets one.
const defaultAttemptTimeout = 15 * time.Second

// entry is one registered agent together with its runtime stats.
type entry struct {
	mu    sync.Mutex
	agent agent.Agent
	caps  agent.CapabilitySet
	stats agent.Stats
}

func (e *entry) snapshot() (agent.Agent, agent.CapabilitySet, agent.Stats) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agent, e.caps, e.stats
}

func (e *entry) info() agent.Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	status := agent.StatusIdle
	if e.stats.InFlight > 0 {
		status = agent.StatusBusy
	}
	return agent.Info{
		ID:           e.agent.ID(),
		Kind:         e.agent.Kind(),
		Capabilities: e.caps.List(),
		Status:       status,
		Stats:        e.stats,
	}
}

func (e *entry) begin() {
	e.mu.Lock()
	e.stats.InFlight++
	e.mu.Unlock()
}

func (e *entry) settle(ok bool, latency time.Duration, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stats.InFlight > 0 {
		e.stats.InFlight--
	}
	if ok {
		e.stats.Successes++
	} else {
		e.stats.Failures++
	}
	e.stats.LastLatency = latency
	e.stats.LastSeenAt = now
}

// OrchestratorService owns the agent registry and routes tasks to the best
// scoring agent with timeout and failover.
type OrchestratorService struct {
	cfg *config.Router

	mu     sync.RWMutex
	agents map[string]*entry
	order  []string // registration order, used as the ranking tie-break

	metrics metrics.Recorder
	hub     broadcast.Broadcaster
	now     func() time.Time
}

// NewOrchestratorService creates an OrchestratorService with an empty registry.
func NewOrchestratorService(cfg *config.Router) *OrchestratorService {
	return &OrchestratorService{
		cfg:     cfg,
		agents:  make(map[string]*entry),
		metrics: metrics.Nop{},
		hub:     broadcast.Nop{},
		now:     time.Now,
	}
}

// SetMetrics sets the metrics sink. A nil recorder disables metrics.
func (s *OrchestratorService) SetMetrics(m metrics.Recorder) {
	if m == nil {
		m = metrics.Nop{}
	}
	s.metrics = m
}

// SetBroadcaster sets the live event sink for dispatch outcomes.
func (s *OrchestratorService) SetBroadcaster(hub broadcast.Broadcaster) {
	if hub == nil {
		hub = broadcast.Nop{}
	}
	s.hub = hub
}

// RegisterAgent upserts a into the registry. Re-registering an existing ID
// replaces the executor and capabilities but keeps its runtime stats and its
// position in the tie-break order.
func (s *OrchestratorService) RegisterAgent(a agent.Agent) (agent.Info, error) {
	if a == nil || a.ID() == "" {
		return agent.Info{}, agent.ErrInvalidAgent
	}
	caps := agent.NewCapabilitySet(a.Capabilities())

	s.mu.Lock()
	e, exists := s.agents[a.ID()]
	if !exists {
		e = &entry{}
		s.agents[a.ID()] = e
		s.order = append(s.order, a.ID())
	}
	e.mu.Lock()
	e.agent = a
	e.caps = caps
	e.mu.Unlock()
	s.mu.Unlock()

	info := e.info()
	slog.Info("agent registered", "agent_id", info.ID, "kind", info.Kind, "capabilities", info.Capabilities, "replaced", exists)
	s.hub.BroadcastEvent(context.Background(), string(event.TypeAgentRegistered), info)
	return agent.Info{ID: info.ID, Kind: info.Kind, Capabilities: info.Capabilities}, nil
}

// ListAgents returns all registered agents in registration order.
func (s *OrchestratorService) ListAgents() []agent.Info {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, s.agents[id])
	}
	s.mu.RUnlock()

	out := make([]agent.Info, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.info())
	}
	return out
}

// GetAgent returns the agent with the given ID, or nil when absent.
func (s *OrchestratorService) GetAgent(id string) *agent.Info {
	e := s.lookup(id)
	if e == nil {
		return nil
	}
	info := e.info()
	return &info
}

func (s *OrchestratorService) lookup(id string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agents[id]
}

// WeightsFor resolves the scoring weights for a task type.
func (s *OrchestratorService) WeightsFor(taskType string) routing.Weights {
	var perType *routing.Override
	if tt, ok := s.cfg.TaskTypes[taskType]; ok {
		perType = tt.Weights
	}
	return routing.Resolve(s.cfg.Weights, perType)
}

// timeoutFor resolves the per-attempt timeout: task, then task type, then
// the global default.
func (s *OrchestratorService) timeoutFor(t *task.Task) time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	if tt, ok := s.cfg.TaskTypes[t.Type]; ok && tt.Timeout > 0 {
		return tt.Timeout
	}
	if s.cfg.AttemptTimeout > 0 {
		return s.cfg.AttemptTimeout
	}
	return defaultAttemptTimeout
}

func (s *OrchestratorService) maxAttempts() int {
	if s.cfg.MaxAttempts < 1 {
		return 1
	}
	return s.cfg.MaxAttempts
}

// ComputeScore returns the fitness of the agent for t. The second value is
// false when the agent is unknown or lacks the task type.
func (s *OrchestratorService) ComputeScore(t task.Task, agentID string) (float64, bool) {
	e := s.lookup(agentID)
	if e == nil {
		return 0, false
	}
	_, caps, stats := e.snapshot()
	return routing.Score(s.WeightsFor(t.Type), caps, t.Type, stats, s.now())
}

// RankAgents returns the eligible agents for t ordered by score, highest
// first. Equal scores keep registration order.
func (s *OrchestratorService) RankAgents(t task.Task) []routing.Candidate {
	s.mu.RLock()
	ids := slices.Clone(s.order)
	entries := make([]*entry, len(ids))
	for i, id := range ids {
		entries[i] = s.agents[id]
	}
	s.mu.RUnlock()

	w := s.WeightsFor(t.Type)
	now := s.now()
	candidates := make([]routing.Candidate, 0, len(entries))
	for i, e := range entries {
		_, caps, stats := e.snapshot()
		score, ok := routing.Score(w, caps, t.Type, stats, now)
		if !ok {
			continue
		}
		candidates = append(candidates, routing.Candidate{AgentID: ids[i], Score: score})
	}
	slices.SortStableFunc(candidates, func(a, b routing.Candidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return candidates
}

// RouteTask dispatches t to the best eligible agent, failing over to the next
// candidate on error or timeout. no_agent and failed are returned as results;
// only caller errors are returned as errors.
func (s *OrchestratorService) RouteTask(ctx context.Context, t task.Task) (*routing.Result, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	dispatchID := uuid.NewString()
	ctx = logger.WithDispatchID(ctx, dispatchID)
	ctx, span := arotel.StartDispatchSpan(ctx, dispatchID, t.ID, t.Type)

	res := &routing.Result{
		DispatchID: dispatchID,
		TaskID:     t.ID,
		TaskType:   t.Type,
		Attempts:   []routing.Attempt{},
	}

	candidates := s.RankAgents(t)
	if len(candidates) == 0 {
		res.Status = routing.StatusNoAgent
		res.Reason = fmt.Sprintf("no agent can handle task type %q", t.Type)
		s.finish(ctx, res)
		arotel.EndSpan(span, string(res.Status), nil)
		return res, nil
	}

	budget := min(s.maxAttempts(), len(candidates))
	timeout := s.timeoutFor(&t)

	for i, c := range candidates[:budget] {
		if err := ctx.Err(); err != nil {
			res.Reason = "dispatch aborted: " + err.Error()
			break
		}
		e := s.lookup(c.AgentID)
		att, out := s.attempt(ctx, e, t, c, i, timeout)
		res.Attempts = append(res.Attempts, att)
		s.metrics.RecordSelection(ctx, s.cfg.Strategy, string(att.Outcome), c.AgentID)

		if att.Outcome == routing.OutcomeSuccess {
			res.Status = routing.StatusCompleted
			res.AgentID = c.AgentID
			res.Output = out
			res.Failover = len(res.Attempts) > 1
			if res.Failover {
				s.metrics.RecordFailover(ctx, res.InitialAgent(), res.AgentID, t.Type)
			}
			s.finish(ctx, res)
			arotel.EndSpan(span, string(res.Status), nil)
			return res, nil
		}
	}

	res.Status = routing.StatusFailed
	if res.Reason == "" {
		res.Reason = fmt.Sprintf("all %d attempts failed", len(res.Attempts))
	}
	s.finish(ctx, res)
	arotel.EndSpan(span, string(res.Status), errors.New(res.Reason))
	return res, nil
}

type runResult struct {
	out any
	err error
}

// attempt runs one candidate under timeout. Bookkeeping is complete when it
// returns, even if the agent goroutine is still running.
func (s *OrchestratorService) attempt(ctx context.Context, e *entry, t task.Task, c routing.Candidate, idx int, timeout time.Duration) (routing.Attempt, any) {
	ctx, span := arotel.StartAttemptSpan(ctx, c.AgentID, idx, c.Score)
	a, _, _ := e.snapshot()

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.begin()
	start := time.Now()

	done := make(chan runResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- runResult{err: fmt.Errorf("agent panic: %v", r)}
			}
		}()
		out, err := a.Run(attemptCtx, t)
		done <- runResult{out: out, err: err}
	}()

	var rr runResult
	outcome := routing.OutcomeSuccess
	select {
	case rr = <-done:
		if rr.err != nil {
			outcome = routing.OutcomeError
			if errors.Is(rr.err, context.DeadlineExceeded) && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
				outcome = routing.OutcomeTimeout
			}
		}
	case <-attemptCtx.Done():
		rr.err = attemptCtx.Err()
		outcome = routing.OutcomeTimeout
		if errors.Is(ctx.Err(), context.Canceled) {
			outcome = routing.OutcomeError
		}
	}
	latency := time.Since(start)
	cancel()

	e.settle(outcome == routing.OutcomeSuccess, latency, s.now())
	s.metrics.RecordExecution(ctx, c.AgentID, t.Type, string(outcome), latency)

	att := routing.Attempt{
		AgentID: c.AgentID,
		Score:   c.Score,
		Outcome: outcome,
		Latency: latency,
	}
	if rr.err != nil {
		att.Error = rr.err.Error()
		if outcome == routing.OutcomeTimeout {
			att.Error = fmt.Sprintf("timed out after %s", timeout)
		}
		slog.WarnContext(ctx, "dispatch attempt failed",
			"agent_id", c.AgentID, "task_type", t.Type, "outcome", outcome, "latency", latency, "error", rr.err)
	}
	arotel.EndSpan(span, string(outcome), rr.err)
	return att, rr.out
}

// finish logs and broadcasts a terminal dispatch result.
func (s *OrchestratorService) finish(ctx context.Context, res *routing.Result) {
	var typ event.Type
	switch {
	case res.Status == routing.StatusNoAgent:
		typ = event.TypeDispatchNoAgent
		slog.WarnContext(ctx, "no eligible agent", "task_type", res.TaskType)
	case res.Status == routing.StatusFailed:
		typ = event.TypeDispatchFailed
		slog.WarnContext(ctx, "dispatch failed", "task_type", res.TaskType, "attempts", len(res.Attempts), "reason", res.Reason)
	case res.Failover:
		typ = event.TypeDispatchFailover
		slog.InfoContext(ctx, "dispatch completed after failover",
			"task_type", res.TaskType, "agent_id", res.AgentID, "initial_agent", res.InitialAgent(), "attempts", len(res.Attempts))
	default:
		typ = event.TypeDispatchCompleted
		slog.InfoContext(ctx, "dispatch completed", "task_type", res.TaskType, "agent_id", res.AgentID)
	}

	summary := *res
	summary.Output = nil
	s.hub.BroadcastEvent(ctx, string(typ), summary)
}

// HealthResult is the outcome of one agent health check.
type HealthResult struct {
	AgentID   string        `json:"agent_id"`
	Supported bool          `json:"supported"`
	Healthy   bool          `json:"healthy"`
	Error     string        `json:"error,omitempty"`
	Latency   time.Duration `json:"latency"`
}

// CheckHealth runs every registered agent's health check concurrently, at
// most HealthConcurrency at a time, each bounded by the attempt timeout. Agents without a health check report
// healthy and unsupported.
func (s *OrchestratorService) CheckHealth(ctx context.Context) []HealthResult {
	s.mu.RLock()
	ids := slices.Clone(s.order)
	entries := make([]*entry, len(ids))
	for i, id := range ids {
		entries[i] = s.agents[id]
	}
	s.mu.RUnlock()

	results := make([]HealthResult, len(entries))
	timeout := s.cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.HealthConcurrency > 0 {
		g.SetLimit(s.cfg.HealthConcurrency)
	}
	for i, e := range entries {
		g.Go(func() error {
			a, _, _ := e.snapshot()
			results[i] = HealthResult{AgentID: ids[i], Healthy: true}
			hc, ok := a.(agent.HealthChecker)
			if !ok {
				return nil
			}
			results[i].Supported = true

			cctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			start := time.Now()
			err := hc.HealthCheck(cctx)
			results[i].Latency = time.Since(start)
			if err != nil {
				results[i].Healthy = false
				results[i].Error = err.Error()
				slog.WarnContext(ctx, "agent health check failed", "agent_id", ids[i], "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
