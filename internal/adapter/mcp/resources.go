package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/agentrouter/internal/domain/review"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"agentrouter://agents",
			"Agent Registry",
			mcplib.WithResourceDescription("Registered agents with capabilities and runtime statistics"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleAgentsResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"agentrouter://reviews/pending",
			"Pending Reviews",
			mcplib.WithResourceDescription("Reviews waiting for a human decision"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handlePendingReviewsResource,
	)
}

func (s *Server) handleAgentsResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Agents == nil {
		return jsonContents(req.Params.URI, `{"error":"agent lister not configured"}`), nil
	}
	data, err := json.Marshal(s.deps.Agents.ListAgents())
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, string(data)), nil
}

func (s *Server) handlePendingReviewsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Reviews == nil {
		return jsonContents(req.Params.URI, `{"error":"review reader not configured"}`), nil
	}
	list, err := s.deps.Reviews.List(ctx, review.Filter{Status: review.StatusPending})
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, string(data)), nil
}

func jsonContents(uri, text string) []mcplib.ResourceContents {
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     text,
		},
	}
}
