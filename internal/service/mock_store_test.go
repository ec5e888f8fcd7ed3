package service_test

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Strob0t/agentrouter/internal/domain"
	"github.com/Strob0t/agentrouter/internal/domain/event"
	"github.com/Strob0t/agentrouter/internal/domain/output"
	"github.com/Strob0t/agentrouter/internal/domain/review"
)

// memStore is an in-memory database.Store for service tests.
type memStore struct {
	mu          sync.Mutex
	seq         int
	outputs     map[string]output.AIOutput
	reviews     map[string]review.Record
	reviewOrder []string
	audits      []event.Event
	getOutputs  int

	errCreateOutput error
	errCreateReview error
	errSetConf      error
	conflicts       int // UpdateReview returns ErrConflict this many times
}

func newMemStore() *memStore {
	return &memStore{
		outputs: make(map[string]output.AIOutput),
		reviews: make(map[string]review.Record),
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) CreateOutput(_ context.Context, req *output.CreateRequest) (*output.AIOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errCreateOutput != nil {
		return nil, m.errCreateOutput
	}
	o := output.AIOutput{
		ID:            m.nextID("out"),
		Prompt:        req.Prompt,
		ExecutorLabel: req.ExecutorLabel,
		Output:        slices.Clone(req.Output),
		Confidence:    req.Confidence,
		CreatedAt:     time.Now(),
	}
	m.outputs[o.ID] = o
	return &o, nil
}

func (m *memStore) GetOutput(_ context.Context, id string) (*output.AIOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOutputs++
	o, ok := m.outputs[id]
	if !ok {
		return nil, fmt.Errorf("get output %s: %w", id, domain.ErrNotFound)
	}
	return &o, nil
}

func (m *memStore) SetOutputConfidence(_ context.Context, id string, c float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errSetConf != nil {
		return m.errSetConf
	}
	o, ok := m.outputs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if o.Confidence != nil {
		return domain.ErrConflict
	}
	o.Confidence = &c
	m.outputs[id] = o
	return nil
}

func (m *memStore) CreateReview(_ context.Context, req *review.CreateRequest) (*review.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errCreateReview != nil {
		return nil, m.errCreateReview
	}
	now := time.Now()
	r := review.Record{
		ID:        m.nextID("rev"),
		OutputID:  req.OutputID,
		Status:    review.StatusPending,
		Notes:     req.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.reviews[r.ID] = r
	m.reviewOrder = append(m.reviewOrder, r.ID)
	return &r, nil
}

func (m *memStore) GetReview(_ context.Context, id string) (*review.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok {
		return nil, fmt.Errorf("get review %s: %w", id, domain.ErrNotFound)
	}
	return &r, nil
}

func (m *memStore) ListReviews(_ context.Context, f review.Filter) ([]review.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []review.Record
	for i := len(m.reviewOrder) - 1; i >= 0; i-- {
		r := m.reviews[m.reviewOrder[i]]
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r)
		if len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) UpdateReview(_ context.Context, r *review.Record, prev review.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		return domain.ErrConflict
	}
	cur, ok := m.reviews[r.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != prev {
		return domain.ErrConflict
	}
	m.reviews[r.ID] = *r
	return nil
}

func (m *memStore) ClaimReview(_ context.Context, id, reviewerID string) (*review.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok || r.Status != review.StatusPending || r.Claimed() {
		return nil, nil
	}
	r.ReviewerID = &reviewerID
	r.UpdatedAt = time.Now()
	m.reviews[id] = r
	return &r, nil
}

func (m *memStore) AppendAudit(_ context.Context, ev *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, *ev)
	return nil
}

func (m *memStore) reviewsFor(outputID string) []review.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []review.Record
	for _, id := range m.reviewOrder {
		if r := m.reviews[id]; r.OutputID == outputID {
			out = append(out, r)
		}
	}
	return out
}

func (m *memStore) reviewCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reviews)
}

// recordingHub collects broadcast event types.
type recordingHub struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHub) BroadcastEvent(_ context.Context, eventType string, _ any) {
	h.mu.Lock()
	h.events = append(h.events, eventType)
	h.mu.Unlock()
}

func (h *recordingHub) has(eventType string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Contains(h.events, eventType)
}
