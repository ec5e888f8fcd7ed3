package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Strob0t/agentrouter/internal/domain/agent"
	"github.com/Strob0t/agentrouter/internal/domain/output"
	"github.com/Strob0t/agentrouter/internal/domain/review"
	"github.com/Strob0t/agentrouter/internal/domain/routing"
	"github.com/Strob0t/agentrouter/internal/domain/task"
	"github.com/Strob0t/agentrouter/internal/service"
)

// Orchestrator routes tasks and reports on registered agents.
type Orchestrator interface {
	RouteTask(ctx context.Context, t task.Task) (*routing.Result, error)
	ListAgents() []agent.Info
	GetAgent(id string) *agent.Info
	CheckHealth(ctx context.Context) []service.HealthResult
}

// Reviews manages the review queue.
type Reviews interface {
	Create(ctx context.Context, req *review.CreateRequest) (*review.Record, error)
	Get(ctx context.Context, id string) (*review.Record, error)
	List(ctx context.Context, f review.Filter) ([]review.Record, error)
	UpdateStatus(ctx context.Context, req *review.UpdateRequest) (*review.Record, error)
	Approve(ctx context.Context, id string, reviewerID, notes *string) (*review.Record, error)
	Reject(ctx context.Context, id string, reviewerID, notes *string) (*review.Record, error)
	Escalate(ctx context.Context, id string, reviewerID, notes *string) (*review.Record, error)
	Claim(ctx context.Context, id, reviewerID string) (*review.Record, error)
}

// Outputs reads captured outputs.
type Outputs interface {
	Get(ctx context.Context, id string) (*output.AIOutput, error)
}

// Handlers holds the services behind the REST API.
type Handlers struct {
	Orchestrator Orchestrator
	Reviews      Reviews
	Outputs      Outputs
}

// dispatchRequest is the body of POST /dispatch.
type dispatchRequest struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
	TimeoutMS int64  `json:"timeout_ms"`
}

// Dispatch handles POST /api/v1/dispatch. no_agent and failed dispatches are
// results and answer 200; only caller errors answer 400.
func (h *Handlers) Dispatch(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[dispatchRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	if req.TimeoutMS < 0 {
		writeError(w, http.StatusBadRequest, "timeout_ms must not be negative")
		return
	}

	res, err := h.Orchestrator.RouteTask(r.Context(), task.Task{
		ID:      req.ID,
		Type:    req.Type,
		Payload: req.Payload,
		Timeout: time.Duration(req.TimeoutMS) * time.Millisecond,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListAgents handles GET /api/v1/agents.
func (h *Handlers) ListAgents(w http.ResponseWriter, _ *http.Request) {
	agents := h.Orchestrator.ListAgents()
	if agents == nil {
		agents = []agent.Info{}
	}
	writeJSON(w, http.StatusOK, agents)
}

// GetAgent handles GET /api/v1/agents/{id}.
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	info := h.Orchestrator.GetAgent(urlParam(r, "id"))
	if info == nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// AgentHealth handles GET /api/v1/agents/health.
func (h *Handlers) AgentHealth(w http.ResponseWriter, r *http.Request) {
	results := h.Orchestrator.CheckHealth(r.Context())
	if results == nil {
		results = []service.HealthResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

// GetOutput handles GET /api/v1/outputs/{id}.
func (h *Handlers) GetOutput(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Outputs.Get, "output not found")(w, r)
}

// ListReviews handles GET /api/v1/reviews?status=&limit=.
func (h *Handlers) ListReviews(w http.ResponseWriter, r *http.Request) {
	f := review.Filter{Status: review.Status(r.URL.Query().Get("status"))}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}

	items, err := h.Reviews.List(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, err, "reviews not found")
		return
	}
	if items == nil {
		items = []review.Record{}
	}
	writeJSON(w, http.StatusOK, items)
}

// CreateReview handles POST /api/v1/reviews.
func (h *Handlers) CreateReview(w http.ResponseWriter, r *http.Request) {
	handleCreate(h.Reviews.Create, "output not found")(w, r)
}

// GetReview handles GET /api/v1/reviews/{id}.
func (h *Handlers) GetReview(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Reviews.Get, "review not found")(w, r)
}

// UpdateReview handles PATCH /api/v1/reviews/{id}.
func (h *Handlers) UpdateReview(w http.ResponseWriter, r *http.Request) {
	handleUpdate(func(ctx context.Context, id string, req review.UpdateRequest) (*review.Record, error) {
		req.ID = id
		return h.Reviews.UpdateStatus(ctx, &req)
	}, "review not found")(w, r)
}

// reviewActionRequest is the optional body of the review action endpoints.
type reviewActionRequest struct {
	ReviewerID *string `json:"reviewer_id"`
	Notes      *string `json:"notes"`
}

type reviewActionFunc func(ctx context.Context, id string, reviewerID, notes *string) (*review.Record, error)

// reviewAction adapts Approve, Reject and Escalate to a handler.
func reviewAction(fn reviewActionFunc) http.HandlerFunc {
	return handleUpdate(func(ctx context.Context, id string, req reviewActionRequest) (*review.Record, error) {
		return fn(ctx, id, req.ReviewerID, req.Notes)
	}, "review not found")
}

// ApproveReview handles POST /api/v1/reviews/{id}/approve.
func (h *Handlers) ApproveReview(w http.ResponseWriter, r *http.Request) {
	reviewAction(h.Reviews.Approve)(w, r)
}

// RejectReview handles POST /api/v1/reviews/{id}/reject.
func (h *Handlers) RejectReview(w http.ResponseWriter, r *http.Request) {
	reviewAction(h.Reviews.Reject)(w, r)
}

// EscalateReview handles POST /api/v1/reviews/{id}/escalate.
func (h *Handlers) EscalateReview(w http.ResponseWriter, r *http.Request) {
	reviewAction(h.Reviews.Escalate)(w, r)
}

// ClaimReview handles POST /api/v1/reviews/{id}/claim. A review that is no
// longer claimable answers 409.
func (h *Handlers) ClaimReview(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[reviewActionRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	reviewerID := ""
	if req.ReviewerID != nil {
		reviewerID = *req.ReviewerID
	}
	if !requireField(w, reviewerID, "reviewer_id") {
		return
	}

	rec, err := h.Reviews.Claim(r.Context(), urlParam(r, "id"), reviewerID)
	if err != nil {
		writeDomainError(w, r, err, "review not found")
		return
	}
	if rec == nil {
		writeError(w, http.StatusConflict, "review is not claimable")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
