package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/agentrouter/internal/config"
	"github.com/Strob0t/agentrouter/internal/domain/agent"
	"github.com/Strob0t/agentrouter/internal/domain/event"
	"github.com/Strob0t/agentrouter/internal/domain/output"
	"github.com/Strob0t/agentrouter/internal/domain/review"
	"github.com/Strob0t/agentrouter/internal/domain/routing"
	"github.com/Strob0t/agentrouter/internal/domain/task"
	"github.com/Strob0t/agentrouter/internal/port/audit"
	"github.com/Strob0t/agentrouter/internal/service"
)

func newOutputService(store *memStore, threshold float64, auto bool) *service.OutputService {
	reviews := service.NewReviewService(store, nil)
	return service.NewOutputService(store, reviews, &config.Escalation{Threshold: threshold, AutoEscalate: auto})
}

func constScorer(c float64) output.Scorer {
	return output.ScorerFunc(func(context.Context, any) (float64, error) { return c, nil })
}

func echo(_ context.Context, input any) (any, error) {
	return map[string]any{"echo": input}, nil
}

// memAudit records audit events.
type memAudit struct {
	mu     sync.Mutex
	events []event.Event
	err    error
}

func (a *memAudit) Log(_ context.Context, ev event.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
	return a.err
}

func TestRecord(t *testing.T) {
	store := newMemStore()
	svc := newOutputService(store, 0.4, true)

	conf := 0.9
	meta, err := svc.Record(context.Background(), "hello", "writer", map[string]string{"text": "hi"}, &conf)
	if err != nil {
		t.Fatal(err)
	}
	if meta.OutputID == "" || meta.CreatedAt.IsZero() {
		t.Errorf("expected identity, got %+v", meta)
	}
	if meta.Confidence == nil || *meta.Confidence != 0.9 {
		t.Errorf("expected confidence 0.9, got %v", meta.Confidence)
	}

	stored, err := store.GetOutput(context.Background(), meta.OutputID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Prompt != "hello" || stored.ExecutorLabel != "writer" || string(stored.Output) != `{"text":"hi"}` {
		t.Errorf("unexpected stored output %+v", stored)
	}
	if store.reviewCount() != 0 {
		t.Error("record alone must not create reviews")
	}
}

func TestRecord_InvalidConfidence(t *testing.T) {
	svc := newOutputService(newMemStore(), 0.4, true)
	bad := 1.5
	_, err := svc.Record(context.Background(), "p", "x", "out", &bad)
	if !errors.Is(err, output.ErrInvalidConfidence) {
		t.Fatalf("expected ErrInvalidConfidence, got %v", err)
	}
}

func TestWrap_EscalationThreshold(t *testing.T) {
	for _, tt := range []struct {
		name     string
		score    float64
		reviews  int
		escalate bool
	}{
		{"below threshold", 0.39, 1, true},
		{"above threshold", 0.41, 0, false},
		{"at threshold", 0.4, 0, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			svc := newOutputService(store, 0.4, true)
			svc.SetScorer(constScorer(tt.score))

			captured, err := svc.Wrap(echo, "writer")(context.Background(), "draft")
			if err != nil {
				t.Fatal(err)
			}
			if captured.Meta.Confidence == nil || *captured.Meta.Confidence != tt.score {
				t.Errorf("expected confidence %v, got %v", tt.score, captured.Meta.Confidence)
			}

			got := store.reviewsFor(captured.Meta.OutputID)
			if len(got) != tt.reviews {
				t.Fatalf("expected %d reviews, got %d", tt.reviews, len(got))
			}
			if store.reviewCount() != tt.reviews {
				t.Errorf("unexpected extra reviews: %d", store.reviewCount())
			}
			if tt.escalate && got[0].Status != review.StatusPending {
				t.Errorf("expected pending review, got %s", got[0].Status)
			}

			stored, _ := store.GetOutput(context.Background(), captured.Meta.OutputID)
			if stored.Confidence == nil || *stored.Confidence != tt.score {
				t.Errorf("expected stored confidence %v, got %v", tt.score, stored.Confidence)
			}
		})
	}
}

func TestWrap_ReturnsOutputAndMeta(t *testing.T) {
	svc := newOutputService(newMemStore(), 0.4, false)

	captured, err := svc.Wrap(echo, "writer")(context.Background(), "draft")
	if err != nil {
		t.Fatal(err)
	}
	out, _ := captured.Output.(map[string]any)
	if out["echo"] != "draft" {
		t.Errorf("unexpected output %v", captured.Output)
	}
	if captured.Meta.OutputID == "" {
		t.Error("expected output id")
	}
}

func TestWrap_NoScorerEscalates(t *testing.T) {
	store := newMemStore()
	svc := newOutputService(store, 0.4, true)

	captured, err := svc.Wrap(echo, "writer")(context.Background(), "draft")
	if err != nil {
		t.Fatal(err)
	}
	if captured.Meta.Confidence != nil {
		t.Errorf("expected null confidence, got %v", *captured.Meta.Confidence)
	}
	if n := len(store.reviewsFor(captured.Meta.OutputID)); n != 1 {
		t.Errorf("expected null confidence to escalate, got %d reviews", n)
	}
}

func TestWrap_AutoEscalateDisabled(t *testing.T) {
	store := newMemStore()
	svc := newOutputService(store, 0.4, false)
	svc.SetScorer(constScorer(0.1))

	if _, err := svc.Wrap(echo, "writer")(context.Background(), "draft"); err != nil {
		t.Fatal(err)
	}
	if store.reviewCount() != 0 {
		t.Error("expected no reviews with auto-escalation disabled")
	}
}

func TestWrap_ScoringFailureSwallowed(t *testing.T) {
	store := newMemStore()
	svc := newOutputService(store, 0.4, true)
	svc.SetScorer(output.ScorerFunc(func(context.Context, any) (float64, error) {
		return 0, errors.New("scorer offline")
	}))

	captured, err := svc.Wrap(echo, "writer")(context.Background(), "draft")
	if err != nil {
		t.Fatalf("scoring failure must not fail the call: %v", err)
	}
	if captured.Meta.Confidence != nil {
		t.Error("expected null confidence after scoring failure")
	}
	if n := len(store.reviewsFor(captured.Meta.OutputID)); n != 1 {
		t.Errorf("expected escalation of unscored output, got %d", n)
	}
}

func TestWrap_ConfidenceWriteFailureSwallowed(t *testing.T) {
	store := newMemStore()
	store.errSetConf = errors.New("db down")
	svc := newOutputService(store, 0.4, true)
	svc.SetScorer(constScorer(0.9))

	captured, err := svc.Wrap(echo, "writer")(context.Background(), "draft")
	if err != nil {
		t.Fatal(err)
	}
	if captured.Meta.Confidence != nil {
		t.Error("confidence must reflect what was stored")
	}
}

func TestWrap_EscalationFailureSwallowed(t *testing.T) {
	store := newMemStore()
	store.errCreateReview = errors.New("reviews table locked")
	svc := newOutputService(store, 0.4, true)
	svc.SetScorer(constScorer(0.1))

	if _, err := svc.Wrap(echo, "writer")(context.Background(), "draft"); err != nil {
		t.Fatalf("escalation failure must not fail the call: %v", err)
	}
}

func TestWrap_ClampsScore(t *testing.T) {
	store := newMemStore()
	svc := newOutputService(store, 0.4, true)
	svc.SetScorer(constScorer(3))

	captured, err := svc.Wrap(echo, "writer")(context.Background(), "draft")
	if err != nil {
		t.Fatal(err)
	}
	if *captured.Meta.Confidence != 1 {
		t.Errorf("expected clamped confidence 1, got %v", *captured.Meta.Confidence)
	}
}

func TestWrap_FunctionErrorPropagates(t *testing.T) {
	store := newMemStore()
	svc := newOutputService(store, 0.4, true)
	boom := errors.New("boom")

	_, err := svc.Wrap(func(context.Context, any) (any, error) { return nil, boom }, "writer")(context.Background(), "x")
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(store.outputs) != 0 {
		t.Error("failed work must not be recorded")
	}
}

func TestWrap_RecordFailurePropagates(t *testing.T) {
	store := newMemStore()
	store.errCreateOutput = errors.New("disk full")
	svc := newOutputService(store, 0.4, true)

	if _, err := svc.Wrap(echo, "writer")(context.Background(), "x"); err == nil {
		t.Fatal("expected record error")
	}
}

func TestWrap_AuditEvent(t *testing.T) {
	store := newMemStore()
	svc := newOutputService(store, 0.4, true)
	svc.SetScorer(constScorer(0.2))
	sink := &memAudit{}
	svc.SetAudit(audit.Multi{sink, audit.LoggerFunc(func(context.Context, event.Event) error {
		return errors.New("second sink down")
	})})

	captured, err := svc.Wrap(echo, "writer")(context.Background(), "draft")
	if err != nil {
		t.Fatalf("audit failure must not fail the call: %v", err)
	}

	if len(sink.events) != 1 {
		t.Fatalf("expected one audit event, got %d", len(sink.events))
	}
	ev := sink.events[0]
	if ev.Type != event.TypeReviewEscalated {
		t.Errorf("unexpected event type %s", ev.Type)
	}
	var p event.EscalationPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.OutputID != captured.Meta.OutputID || p.Threshold != 0.4 || p.Confidence == nil || *p.Confidence != 0.2 {
		t.Errorf("unexpected payload %+v", p)
	}
	if p.ReviewID == "" {
		t.Error("expected review id in payload")
	}
}

// mapCache is an in-memory cache.Cache.
type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func TestGet_ReadThroughCache(t *testing.T) {
	store := newMemStore()
	svc := newOutputService(store, 0.4, false)
	svc.SetCache(&mapCache{data: map[string][]byte{}}, time.Minute)

	meta, err := svc.Record(context.Background(), "p", "x", "value", nil)
	if err != nil {
		t.Fatal(err)
	}

	for range 3 {
		o, err := svc.Get(context.Background(), meta.OutputID)
		if err != nil {
			t.Fatal(err)
		}
		if o.ID != meta.OutputID || string(o.Output) != `"value"` {
			t.Errorf("unexpected output %+v", o)
		}
	}
	if store.getOutputs != 1 {
		t.Errorf("expected one store read, got %d", store.getOutputs)
	}
}

func TestGet_NotFound(t *testing.T) {
	svc := newOutputService(newMemStore(), 0.4, false)
	svc.SetCache(&mapCache{data: map[string][]byte{}}, time.Minute)

	if _, err := svc.Get(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing output")
	}
}

func TestCaptureAgent_ThroughOrchestrator(t *testing.T) {
	store := newMemStore()
	outputs := newOutputService(store, 0.4, true)
	outputs.SetScorer(service.FieldScorer{})

	orch := service.NewOrchestratorService(routerConfig(2, time.Second))
	raw := agent.NewFunc("writer", "llm", []string{"write"}, func(_ context.Context, tk task.Task) (any, error) {
		return map[string]any{"text": "ok: " + tk.Payload.(string), "confidence": 0.95}, nil
	})
	mustRegister(t, orch, outputs.CaptureAgent(raw, ""))

	res, err := orch.RouteTask(context.Background(), task.Task{Type: "write", Payload: "an ode"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != routing.StatusCompleted {
		t.Fatalf("expected completed, got %+v", res)
	}
	captured, ok := res.Output.(*output.Captured)
	if !ok {
		t.Fatalf("expected captured output, got %T", res.Output)
	}
	stored, err := store.GetOutput(context.Background(), captured.Meta.OutputID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Prompt != "an ode" || stored.ExecutorLabel != "writer" {
		t.Errorf("unexpected stored output %+v", stored)
	}
	if stored.Confidence == nil || *stored.Confidence != 0.95 {
		t.Errorf("expected self-reported confidence, got %v", stored.Confidence)
	}
	if store.reviewCount() != 0 {
		t.Error("confident output must not escalate")
	}
}
