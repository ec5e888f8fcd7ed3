package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/agentrouter/internal/domain/review"
	"github.com/Strob0t/agentrouter/internal/domain/task"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.dispatchTaskTool(),
		s.listAgentsTool(),
		s.listReviewsTool(),
		s.getReviewTool(),
		s.getOutputTool(),
	)
}

func (s *Server) dispatchTaskTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("dispatch_task",
		mcplib.WithDescription("Route a task to the best available agent and return the dispatch result"),
		mcplib.WithString("task_type",
			mcplib.Required(),
			mcplib.Description("The task type used for capability matching"),
		),
		mcplib.WithString("task_id",
			mcplib.Description("Optional caller-supplied task ID"),
		),
		mcplib.WithObject("payload",
			mcplib.Description("Opaque task payload forwarded to the agent"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleDispatchTask}
}

func (s *Server) listAgentsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_agents",
		mcplib.WithDescription("List registered agents with their capabilities and runtime statistics"),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListAgents}
}

func (s *Server) listReviewsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_reviews",
		mcplib.WithDescription("List reviews, newest first"),
		mcplib.WithString("status",
			mcplib.Description("Filter by status"),
			mcplib.Enum(string(review.StatusPending), string(review.StatusApproved), string(review.StatusRejected), string(review.StatusEscalated)),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of reviews (default 100)"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleListReviews}
}

func (s *Server) getReviewTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_review",
		mcplib.WithDescription("Get a review by ID"),
		mcplib.WithString("review_id", mcplib.Required(), mcplib.Description("The review ID")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetReview}
}

func (s *Server) getOutputTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_output",
		mcplib.WithDescription("Get a captured agent output by ID"),
		mcplib.WithString("output_id", mcplib.Required(), mcplib.Description("The output ID")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetOutput}
}

func (s *Server) handleDispatchTask(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Dispatcher == nil {
		return mcplib.NewToolResultError("dispatcher not configured"), nil
	}
	args := req.GetArguments()
	taskType, _ := args["task_type"].(string)
	taskID, _ := args["task_id"].(string)
	t := task.Task{ID: taskID, Type: taskType, Payload: args["payload"]}

	res, err := s.deps.Dispatcher.RouteTask(ctx, t)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("dispatch rejected", err), nil
	}
	return jsonResult(res, "dispatch result")
}

func (s *Server) handleListAgents(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Agents == nil {
		return mcplib.NewToolResultError("agent lister not configured"), nil
	}
	return jsonResult(s.deps.Agents.ListAgents(), "agents")
}

func (s *Server) handleListReviews(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Reviews == nil {
		return mcplib.NewToolResultError("review reader not configured"), nil
	}
	args := req.GetArguments()
	f := review.Filter{}
	if st, ok := args["status"].(string); ok {
		f.Status = review.Status(st)
	}
	if n, ok := args["limit"].(float64); ok {
		f.Limit = int(n)
	}
	list, err := s.deps.Reviews.List(ctx, f)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list reviews", err), nil
	}
	return jsonResult(list, "reviews")
}

func (s *Server) handleGetReview(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Reviews == nil {
		return mcplib.NewToolResultError("review reader not configured"), nil
	}
	id, ok := req.GetArguments()["review_id"].(string)
	if !ok || id == "" {
		return mcplib.NewToolResultError("review_id is required"), nil
	}
	r, err := s.deps.Reviews.Get(ctx, id)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get review %s", id), err), nil
	}
	return jsonResult(r, "review")
}

func (s *Server) handleGetOutput(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Outputs == nil {
		return mcplib.NewToolResultError("output reader not configured"), nil
	}
	id, ok := req.GetArguments()["output_id"].(string)
	if !ok || id == "" {
		return mcplib.NewToolResultError("output_id is required"), nil
	}
	o, err := s.deps.Outputs.Get(ctx, id)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get output %s", id), err), nil
	}
	return jsonResult(o, "output")
}

// jsonResult marshals v into a text tool result.
func jsonResult(v any, what string) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal "+what, err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}
