// Package mcp connects agentrouter to the Model Context Protocol in both
// directions: remote agents reached as MCP tools, and an MCP server exposing
// dispatch, agent and review operations to MCP clients.
package mcp

import (
	"context"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/agentrouter/internal/domain/agent"
	"github.com/Strob0t/agentrouter/internal/domain/output"
	"github.com/Strob0t/agentrouter/internal/domain/review"
	"github.com/Strob0t/agentrouter/internal/domain/routing"
	"github.com/Strob0t/agentrouter/internal/domain/task"
)

// Dispatcher routes a task to an agent.
type Dispatcher interface {
	RouteTask(ctx context.Context, t task.Task) (*routing.Result, error)
}

// AgentLister lists registered agents.
type AgentLister interface {
	ListAgents() []agent.Info
}

// ReviewReader reads the review queue.
type ReviewReader interface {
	Get(ctx context.Context, id string) (*review.Record, error)
	List(ctx context.Context, f review.Filter) ([]review.Record, error)
}

// OutputReader reads captured outputs.
type OutputReader interface {
	Get(ctx context.Context, id string) (*output.AIOutput, error)
}

// ServerDeps holds the services exposed over MCP. Nil dependencies make the
// matching tools return a tool error.
type ServerDeps struct {
	Dispatcher Dispatcher
	Agents     AgentLister
	Reviews    ReviewReader
	Outputs    OutputReader
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Name    string
	Version string
	APIKey  func() string // nil or empty disables authentication
}

// Server exposes agentrouter over MCP.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
}

// NewServer creates an MCP server with all tools and resources registered.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	if cfg.Name == "" {
		cfg.Name = "agentrouter"
	}
	s := &Server{cfg: cfg, deps: deps}
	s.mcpServer = mcpserver.NewMCPServer(
		cfg.Name,
		cfg.Version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Handler returns the StreamableHTTP transport behind the API key check.
func (s *Server) Handler() http.Handler {
	return AuthMiddleware(s.cfg.APIKey, mcpserver.NewStreamableHTTPServer(s.mcpServer))
}
