package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	arotel "github.com/Strob0t/agentrouter/internal/adapter/otel"
	"github.com/Strob0t/agentrouter/internal/config"
	"github.com/Strob0t/agentrouter/internal/domain/agent"
	"github.com/Strob0t/agentrouter/internal/domain/event"
	"github.com/Strob0t/agentrouter/internal/domain/output"
	"github.com/Strob0t/agentrouter/internal/domain/review"
	"github.com/Strob0t/agentrouter/internal/domain/task"
	"github.com/Strob0t/agentrouter/internal/logger"
	"github.com/Strob0t/agentrouter/internal/port/audit"
	"github.com/Strob0t/agentrouter/internal/port/broadcast"
	"github.com/Strob0t/agentrouter/internal/port/cache"
	"github.com/Strob0t/agentrouter/internal/port/database"
)

// WorkFunc is a unit of work whose result can be captured.
type WorkFunc func(ctx context.Context, input any) (any, error)

// CapturedFunc is a WorkFunc decorated with output capture.
type CapturedFunc func(ctx context.Context, input any) (*output.Captured, error)

// OutputService records agent outputs, scores their confidence and
// escalates low-confidence outputs to the review queue.
type OutputService struct {
	store   database.OutputStore
	reviews *ReviewService
	cfg     *config.Escalation

	scorer   output.Scorer
	audit    audit.Logger
	hub      broadcast.Broadcaster
	cache    cache.Cache
	cacheTTL time.Duration
	now      func() time.Time
}

// NewOutputService creates an OutputService. Scoring, audit and caching are
// optional and configured with the setters.
func NewOutputService(store database.OutputStore, reviews *ReviewService, cfg *config.Escalation) *OutputService {
	return &OutputService{
		store:   store,
		reviews: reviews,
		cfg:     cfg,
		hub:     broadcast.Nop{},
		now:     time.Now,
	}
}

// SetScorer sets the confidence scorer. Without one, captured outputs keep a
// null confidence.
func (s *OutputService) SetScorer(sc output.Scorer) { s.scorer = sc }

// SetAudit sets the audit sink for escalations.
func (s *OutputService) SetAudit(l audit.Logger) { s.audit = l }

// SetBroadcaster sets the live event sink for escalations.
func (s *OutputService) SetBroadcaster(hub broadcast.Broadcaster) {
	if hub == nil {
		hub = broadcast.Nop{}
	}
	s.hub = hub
}

// SetCache enables read-through caching for Get.
func (s *OutputService) SetCache(c cache.Cache, ttl time.Duration) {
	s.cache = c
	s.cacheTTL = ttl
}

func outputCacheKey(id string) string { return "output:" + id }

// Record persists one output and returns its identity.
func (s *OutputService) Record(ctx context.Context, prompt, executorLabel string, out any, confidence *float64) (*output.Meta, error) {
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	req := &output.CreateRequest{
		Prompt:        prompt,
		ExecutorLabel: executorLabel,
		Output:        raw,
		Confidence:    confidence,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	o, err := s.store.CreateOutput(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("record output: %w", err)
	}
	return &output.Meta{OutputID: o.ID, CreatedAt: o.CreatedAt, Confidence: o.Confidence}, nil
}

// Get returns a captured output, through the cache when one is configured.
func (s *OutputService) Get(ctx context.Context, id string) (*output.AIOutput, error) {
	if s.cache == nil {
		return s.store.GetOutput(ctx, id)
	}

	data, err := cache.GetOrLoad(ctx, s.cache, outputCacheKey(id), s.cacheTTL, func(ctx context.Context) ([]byte, error) {
		o, err := s.store.GetOutput(ctx, id)
		if err != nil {
			return nil, err
		}
		return json.Marshal(o)
	})
	if err != nil {
		return nil, err
	}

	var o output.AIOutput
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("decode cached output %s: %w", id, err)
	}
	return &o, nil
}

// Wrap decorates fn so that every successful result is recorded, scored and,
// when confidence is missing or below the threshold, escalated. Failures
// after the record is written are logged and never fail the call.
func (s *OutputService) Wrap(fn WorkFunc, executorLabel string) CapturedFunc {
	return func(ctx context.Context, input any) (*output.Captured, error) {
		out, err := fn(ctx, input)
		if err != nil {
			return nil, err
		}

		ctx, span := arotel.StartCaptureSpan(ctx, executorLabel)
		meta, err := s.Record(ctx, promptOf(input), executorLabel, out, nil)
		if err != nil {
			arotel.EndSpan(span, "record_failed", err)
			return nil, err
		}

		s.score(ctx, meta, out)

		escalated := false
		if s.cfg.AutoEscalate && output.ShouldEscalate(meta.Confidence, s.cfg.Threshold) {
			escalated = s.escalate(ctx, meta, executorLabel)
		}

		outcome := "recorded"
		if escalated {
			outcome = "escalated"
		}
		arotel.EndSpan(span, outcome, nil)
		return &output.Captured{Output: out, Meta: *meta}, nil
	}
}

// score computes and stores the confidence of a freshly recorded output.
func (s *OutputService) score(ctx context.Context, meta *output.Meta, out any) {
	if s.scorer == nil {
		return
	}
	c, err := s.scorer.Score(ctx, out)
	if err != nil {
		slog.WarnContext(ctx, "confidence scoring failed", "output_id", meta.OutputID, "error", err)
		return
	}
	c = output.Clamp(c)
	if err := s.store.SetOutputConfidence(ctx, meta.OutputID, c); err != nil {
		slog.WarnContext(ctx, "store confidence failed", "output_id", meta.OutputID, "error", err)
		return
	}
	meta.Confidence = &c
	if s.cache != nil {
		_ = s.cache.Delete(ctx, outputCacheKey(meta.OutputID))
	}
}

// escalate creates a pending review for the output and emits an audit event.
// It reports whether the review was created.
func (s *OutputService) escalate(ctx context.Context, meta *output.Meta, executorLabel string) bool {
	notes := fmt.Sprintf("auto-escalated: confidence below %.2f", s.cfg.Threshold)
	if meta.Confidence == nil {
		notes = "auto-escalated: confidence unavailable"
	}
	r, err := s.reviews.Create(ctx, &review.CreateRequest{OutputID: meta.OutputID, Notes: &notes})
	if err != nil {
		slog.WarnContext(ctx, "auto-escalation failed", "output_id", meta.OutputID, "error", err)
		return false
	}

	payload := event.EscalationPayload{
		OutputID:      meta.OutputID,
		ReviewID:      r.ID,
		ExecutorLabel: executorLabel,
		Confidence:    meta.Confidence,
		Threshold:     s.cfg.Threshold,
	}
	slog.InfoContext(ctx, "output escalated", "output_id", meta.OutputID, "review_id", r.ID, "executor", executorLabel)
	s.hub.BroadcastEvent(ctx, string(event.TypeReviewEscalated), payload)

	if s.audit != nil {
		ev, err := event.New(uuid.NewString(), event.TypeReviewEscalated, payload, s.now())
		if err == nil {
			ev.RequestID = logger.RequestID(ctx)
			err = s.audit.Log(ctx, ev)
		}
		if err != nil {
			slog.WarnContext(ctx, "audit log failed", "output_id", meta.OutputID, "error", err)
		}
	}
	return true
}

// promptOf renders the input of a unit of work as the recorded prompt.
func promptOf(input any) string {
	switch v := input.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case json.RawMessage:
		return string(v)
	case task.Task:
		return promptOf(v.Payload)
	}
	b, err := json.Marshal(input)
	if err != nil {
		return fmt.Sprint(input)
	}
	return string(b)
}

// capturingAgent routes an agent's Run through output capture.
type capturingAgent struct {
	agent.Agent
	run CapturedFunc
}

// CaptureAgent decorates a so that every successful Run is captured under
// executorLabel (the agent ID when empty). The decorated Run returns an
// *output.Captured.
func (s *OutputService) CaptureAgent(a agent.Agent, executorLabel string) agent.Agent {
	if executorLabel == "" {
		executorLabel = a.ID()
	}
	ca := &capturingAgent{Agent: a}
	ca.run = s.Wrap(func(ctx context.Context, input any) (any, error) {
		t, _ := input.(task.Task)
		return a.Run(ctx, t)
	}, executorLabel)
	return ca
}

// Run executes the wrapped agent with capture. The recorded prompt is the
// task payload.
func (c *capturingAgent) Run(ctx context.Context, t task.Task) (any, error) {
	captured, err := c.run(ctx, t)
	if err != nil {
		return nil, err
	}
	return captured, nil
}

// HealthCheck delegates to the wrapped agent when it supports health checks.
func (c *capturingAgent) HealthCheck(ctx context.Context) error {
	if hc, ok := c.Agent.(agent.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
