package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/agentrouter/internal/config"
	"github.com/Strob0t/agentrouter/internal/domain/agent"
	"github.com/Strob0t/agentrouter/internal/domain/task"
	"github.com/Strob0t/agentrouter/internal/port/agentbackend"
	"github.com/Strob0t/agentrouter/internal/resilience"
)

// Transport is the agentbackend transport name served by this package.
const Transport = "mcp"

// MCP client transports selectable with the "mcp_transport" option.
const (
	TransportStreamableHTTP = "streamable_http"
	TransportSSE            = "sse"
	TransportStdio          = "stdio"
)

// ErrToolFailed is returned when the server reports a tool error.
var ErrToolFailed = errors.New("mcp tool failed")

// ToolClient is the part of an MCP client used by Agent.
type ToolClient interface {
	Initialize(ctx context.Context, req mcplib.InitializeRequest) (*mcplib.InitializeResult, error)
	CallTool(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// Dialer opens a client for an agent definition.
type Dialer func(ctx context.Context, def agentbackend.Definition) (ToolClient, error)

// Agent runs tasks as MCP tool calls. The tool name is the "tool" option or,
// when unset, the task type.
type Agent struct {
	def     agentbackend.Definition
	dial    Dialer
	breaker *resilience.Breaker

	mu     sync.Mutex
	client ToolClient
}

var (
	_ agent.Agent         = (*Agent)(nil)
	_ agent.HealthChecker = (*Agent)(nil)
)

// NewAgent creates an MCP agent. The connection is opened on first use.
func NewAgent(def agentbackend.Definition, dial Dialer, cfg config.Breaker) *Agent {
	if def.Kind == "" {
		def.Kind = Transport
	}
	def.Capabilities = slices.Clone(def.Capabilities)
	return &Agent{
		def:     def,
		dial:    dial,
		breaker: resilience.NewBreaker("mcp:"+def.ID, cfg.MaxFailures, cfg.Timeout),
	}
}

// Factory returns an agentbackend.Factory building MCP agents.
func Factory(dial Dialer, cfg config.Breaker) agentbackend.Factory {
	return func(def agentbackend.Definition) (agent.Agent, error) {
		if def.Options["url"] == "" && def.Options["command"] == "" {
			return nil, fmt.Errorf("agent %s: mcp needs a url or command option", def.ID)
		}
		return NewAgent(def, dial, cfg), nil
	}
}

func (a *Agent) ID() string             { return a.def.ID }
func (a *Agent) Kind() string           { return a.def.Kind }
func (a *Agent) Capabilities() []string { return slices.Clone(a.def.Capabilities) }

func (a *Agent) toolFor(t *task.Task) string {
	if name := a.def.Options["tool"]; name != "" {
		return name
	}
	return t.Type
}

// conn returns the open client, dialing and initializing it if needed.
func (a *Agent) conn(ctx context.Context) (ToolClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return a.client, nil
	}

	c, err := a.dial(ctx, a.def)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	req := mcplib.InitializeRequest{}
	req.Params.ProtocolVersion = mcplib.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcplib.Implementation{Name: "agentrouter", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, req); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	a.client = c
	return c, nil
}

// reset drops a broken client so the next call reconnects.
func (a *Agent) reset(c ToolClient) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == c {
		a.client = nil
		_ = c.Close()
	}
}

// Run calls the task's tool with the payload as arguments.
func (a *Agent) Run(ctx context.Context, t task.Task) (any, error) {
	args, err := toolArguments(t.Payload)
	if err != nil {
		return nil, err
	}
	req := mcplib.CallToolRequest{}
	req.Params.Name = a.toolFor(&t)
	req.Params.Arguments = args

	var out any
	err = a.breaker.Execute(ctx, func(ctx context.Context) error {
		c, err := a.conn(ctx)
		if err != nil {
			return err
		}
		res, err := c.CallTool(ctx, req)
		if err != nil {
			if ctx.Err() == nil {
				a.reset(c)
			}
			return err
		}
		out, err = decodeResult(res)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("agent %s: tool %s: %w", a.def.ID, req.Params.Name, err)
	}
	return out, nil
}

// HealthCheck pings the server.
func (a *Agent) HealthCheck(ctx context.Context) error {
	if a.breaker.State() == resilience.StateOpen {
		return resilience.ErrCircuitOpen
	}
	c, err := a.conn(ctx)
	if err != nil {
		return err
	}
	if err := c.Ping(ctx); err != nil {
		a.reset(c)
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close releases the connection.
func (a *Agent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil {
		return nil
	}
	err := a.client.Close()
	a.client = nil
	return err
}

// toolArguments turns a task payload into a tool argument object. Non-object
// payloads are passed as {"input": payload}.
func toolArguments(payload any) (map[string]any, error) {
	switch v := payload.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err == nil && obj != nil {
		return obj, nil
	}
	return map[string]any{"input": payload}, nil
}

// decodeResult extracts the output of a tool call: structured content when
// present, else the text content (as raw JSON when it parses).
func decodeResult(res *mcplib.CallToolResult) (any, error) {
	var texts []string
	for _, c := range res.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	text := strings.Join(texts, "\n")

	if res.IsError {
		return nil, fmt.Errorf("%w: %s", ErrToolFailed, text)
	}
	if res.StructuredContent != nil {
		return res.StructuredContent, nil
	}
	if json.Valid([]byte(text)) {
		return json.RawMessage(text), nil
	}
	return text, nil
}

// Dial opens an mcp-go client using the definition options:
// mcp_transport (streamable_http, sse or stdio), url, command, args
// (space separated) and header.<name> entries.
func Dial(ctx context.Context, def agentbackend.Definition) (ToolClient, error) {
	headers := map[string]string{}
	for k, v := range def.Options {
		if name, ok := strings.CutPrefix(k, "header."); ok {
			headers[name] = v
		}
	}

	var (
		c   *mcpclient.Client
		err error
	)
	switch def.Options["mcp_transport"] {
	case "", TransportStreamableHTTP:
		c, err = mcpclient.NewStreamableHttpClient(def.Options["url"], transport.WithHTTPHeaders(headers))
	case TransportSSE:
		c, err = mcpclient.NewSSEMCPClient(def.Options["url"], transport.WithHeaders(headers))
	case TransportStdio:
		// Stdio clients start their subprocess on creation.
		c, err = mcpclient.NewStdioMCPClient(def.Options["command"], nil, strings.Fields(def.Options["args"])...)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported mcp transport %q", def.Options["mcp_transport"])
	}
	if err != nil {
		return nil, err
	}
	// The session outlives the attempt that opened it.
	if err := c.Start(context.WithoutCancel(ctx)); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("start: %w", err)
	}
	slog.InfoContext(ctx, "mcp client connected", "agent_id", def.ID, "url", def.Options["url"])
	return c, nil
}
