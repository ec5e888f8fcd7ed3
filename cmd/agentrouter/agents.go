package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/Strob0t/agentrouter/internal/domain/agent"
	"github.com/Strob0t/agentrouter/internal/port/agentbackend"
)

// agentRegistrar is the part of the orchestrator that accepts agents.
type agentRegistrar interface {
	RegisterAgent(a agent.Agent) (agent.Info, error)
}

// agentCapturer decorates an agent with output capture.
type agentCapturer interface {
	CaptureAgent(a agent.Agent, executorLabel string) agent.Agent
}

// registerAgents builds every configured agent through the transport
// registry and registers it. Agents holding connections are returned so the
// caller can close them on shutdown.
func registerAgents(reg agentRegistrar, backends *agentbackend.Registry, capture agentCapturer, defs []agentbackend.Definition) ([]io.Closer, error) {
	var closers []io.Closer
	for i := range defs {
		def := defs[i]
		a, err := backends.New(def)
		if err != nil {
			closeAgents(closers)
			return nil, fmt.Errorf("agent %s: %w", def.ID, err)
		}
		if c, ok := a.(io.Closer); ok {
			closers = append(closers, c)
		}
		if def.Capture {
			a = capture.CaptureAgent(a, def.ID)
		}

		info, err := reg.RegisterAgent(a)
		if err != nil {
			closeAgents(closers)
			return nil, fmt.Errorf("register agent %s: %w", def.ID, err)
		}
		slog.Info("agent registered",
			"agent_id", info.ID,
			"kind", info.Kind,
			"transport", def.Transport,
			"capabilities", info.Capabilities,
			"capture", def.Capture,
		)
	}
	return closers, nil
}

func closeAgents(closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			slog.Warn("close agent", "error", err)
		}
	}
}
