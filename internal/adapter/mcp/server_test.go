package mcp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	armcp "github.com/Strob0t/agentrouter/internal/adapter/mcp"
	"github.com/Strob0t/agentrouter/internal/domain"
	"github.com/Strob0t/agentrouter/internal/domain/agent"
	"github.com/Strob0t/agentrouter/internal/domain/output"
	"github.com/Strob0t/agentrouter/internal/domain/review"
	"github.com/Strob0t/agentrouter/internal/domain/routing"
	"github.com/Strob0t/agentrouter/internal/domain/task"
)

// --- Mocks ---

type mockDispatcher struct {
	got task.Task
}

func (m *mockDispatcher) RouteTask(_ context.Context, t task.Task) (*routing.Result, error) {
	m.got = t
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &routing.Result{DispatchID: "d1", TaskType: t.Type, Status: routing.StatusCompleted, AgentID: "a1"}, nil
}

type mockAgents struct{ infos []agent.Info }

func (m *mockAgents) ListAgents() []agent.Info { return m.infos }

type mockReviews struct {
	records map[string]*review.Record
	filter  review.Filter
}

func (m *mockReviews) Get(_ context.Context, id string) (*review.Record, error) {
	if r, ok := m.records[id]; ok {
		return r, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockReviews) List(_ context.Context, f review.Filter) ([]review.Record, error) {
	m.filter = f
	out := []review.Record{}
	for _, r := range m.records {
		if f.Status == "" || r.Status == f.Status {
			out = append(out, *r)
		}
	}
	return out, nil
}

type mockOutputs struct{}

func (mockOutputs) Get(_ context.Context, id string) (*output.AIOutput, error) {
	if id != "o1" {
		return nil, domain.ErrNotFound
	}
	return &output.AIOutput{ID: "o1", ExecutorLabel: "a1", Output: json.RawMessage(`"hi"`)}, nil
}

func newTestServer(deps armcp.ServerDeps) *armcp.Server {
	return armcp.NewServer(armcp.ServerConfig{Name: "test", Version: "0.1.0"}, deps)
}

func callTool(t *testing.T, s *armcp.Server, name string, args map[string]any) *mcplib.CallToolResult {
	t.Helper()
	tool, ok := s.MCPServer().ListTools()[name]
	if !ok {
		t.Fatalf("%s tool not found", name)
	}
	req := mcplib.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := tool.Handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return result
}

func resultText(t *testing.T, r *mcplib.CallToolResult) string {
	t.Helper()
	text, ok := r.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	return text.Text
}

// --- Tests ---

func TestToolRegistration(t *testing.T) {
	s := newTestServer(armcp.ServerDeps{})

	tools := s.MCPServer().ListTools()
	for _, name := range []string{"dispatch_task", "list_agents", "list_reviews", "get_review", "get_output"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("expected tool %q not registered", name)
		}
	}
	if len(tools) != 5 {
		t.Fatalf("expected 5 tools, got %d", len(tools))
	}
}

func TestHandleDispatchTask(t *testing.T) {
	d := &mockDispatcher{}
	s := newTestServer(armcp.ServerDeps{Dispatcher: d})

	res := callTool(t, s, "dispatch_task", map[string]any{
		"task_type": "summarize",
		"payload":   map[string]any{"text": "hello"},
	})
	if res.IsError {
		t.Fatalf("tool returned error: %v", res.Content)
	}
	var got routing.Result
	if err := json.Unmarshal([]byte(resultText(t, res)), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != routing.StatusCompleted || got.AgentID != "a1" {
		t.Fatalf("unexpected result %+v", got)
	}
	if d.got.Type != "summarize" {
		t.Fatalf("dispatcher got %+v", d.got)
	}
}

func TestHandleDispatchTaskMissingType(t *testing.T) {
	s := newTestServer(armcp.ServerDeps{Dispatcher: &mockDispatcher{}})

	res := callTool(t, s, "dispatch_task", map[string]any{})
	if !res.IsError {
		t.Fatal("expected error result for missing task_type")
	}
}

func TestHandleListReviewsFilter(t *testing.T) {
	reviews := &mockReviews{records: map[string]*review.Record{
		"r1": {ID: "r1", Status: review.StatusPending},
		"r2": {ID: "r2", Status: review.StatusApproved},
	}}
	s := newTestServer(armcp.ServerDeps{Reviews: reviews})

	res := callTool(t, s, "list_reviews", map[string]any{"status": "pending", "limit": float64(5)})
	var list []review.Record
	if err := json.Unmarshal([]byte(resultText(t, res)), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list) != 1 || list[0].ID != "r1" {
		t.Fatalf("unexpected list %+v", list)
	}
	if reviews.filter.Limit != 5 {
		t.Fatalf("expected limit 5, got %d", reviews.filter.Limit)
	}
}

func TestHandleGetReviewNotFound(t *testing.T) {
	s := newTestServer(armcp.ServerDeps{Reviews: &mockReviews{}})

	if res := callTool(t, s, "get_review", map[string]any{"review_id": "nope"}); !res.IsError {
		t.Fatal("expected error result for unknown review")
	}
	if res := callTool(t, s, "get_review", map[string]any{}); !res.IsError {
		t.Fatal("expected error result for missing review_id")
	}
}

func TestHandleGetOutput(t *testing.T) {
	s := newTestServer(armcp.ServerDeps{Outputs: mockOutputs{}})

	res := callTool(t, s, "get_output", map[string]any{"output_id": "o1"})
	if res.IsError {
		t.Fatalf("tool returned error: %v", res.Content)
	}
	var o output.AIOutput
	if err := json.Unmarshal([]byte(resultText(t, res)), &o); err != nil || o.ID != "o1" {
		t.Fatalf("unexpected output %+v (%v)", o, err)
	}
}

func TestHandleNilDeps(t *testing.T) {
	s := newTestServer(armcp.ServerDeps{})

	for _, name := range []string{"dispatch_task", "list_agents", "list_reviews", "get_output"} {
		if res := callTool(t, s, name, map[string]any{"task_type": "x", "output_id": "o1"}); !res.IsError {
			t.Errorf("%s: expected error result when deps are nil", name)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	key := "secret"
	h := armcp.AuthMiddleware(func() string { return key }, ok)

	cases := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer wrong", http.StatusForbidden},
		{"Bearer secret", http.StatusNoContent},
		{"secret", http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/mcp", http.NoBody)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("Authorization %q: got %d, want %d", tc.header, rec.Code, tc.want)
		}
	}

	key = "rotated"
	req := httptest.NewRequest(http.MethodPost, "/mcp", http.NoBody)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("old key after rotation: got %d, want %d", rec.Code, http.StatusForbidden)
	}

	key = ""
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", http.NoBody))
	if rec.Code != http.StatusNoContent {
		t.Errorf("empty key should disable auth: got %d", rec.Code)
	}

	if armcp.AuthMiddleware(nil, ok) == nil {
		t.Fatal("expected pass-through handler when auth is disabled")
	}
}

