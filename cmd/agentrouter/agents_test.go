package main

import (
	"context"
	"errors"
	"testing"

	"github.com/Strob0t/agentrouter/internal/domain/agent"
	"github.com/Strob0t/agentrouter/internal/domain/task"
	"github.com/Strob0t/agentrouter/internal/port/agentbackend"
)

type closableAgent struct {
	*agent.Func
	closed bool
}

func (c *closableAgent) Close() error {
	c.closed = true
	return nil
}

type recordingRegistrar struct {
	agents []agent.Agent
	fail   string
}

func (r *recordingRegistrar) RegisterAgent(a agent.Agent) (agent.Info, error) {
	if a.ID() == r.fail {
		return agent.Info{}, agent.ErrInvalidAgent
	}
	r.agents = append(r.agents, a)
	return agent.Info{ID: a.ID(), Kind: a.Kind(), Capabilities: a.Capabilities()}, nil
}

type wrapCapturer struct {
	labels []string
}

func (w *wrapCapturer) CaptureAgent(a agent.Agent, label string) agent.Agent {
	w.labels = append(w.labels, label)
	return a
}

func newTestBackends(t *testing.T, built map[string]*closableAgent) *agentbackend.Registry {
	t.Helper()
	backends := agentbackend.NewRegistry()
	err := backends.Register("fake", func(def agentbackend.Definition) (agent.Agent, error) {
		a := &closableAgent{Func: agent.NewFunc(def.ID, def.Kind, def.Capabilities, func(context.Context, task.Task) (any, error) {
			return "ok", nil
		})}
		built[def.ID] = a
		return a, nil
	})
	if err != nil {
		t.Fatalf("register transport: %v", err)
	}
	return backends
}

func TestRegisterAgents(t *testing.T) {
	built := make(map[string]*closableAgent)
	reg := &recordingRegistrar{}
	capture := &wrapCapturer{}

	defs := []agentbackend.Definition{
		{ID: "a1", Kind: "remote", Capabilities: []string{"summarize"}, Transport: "fake"},
		{ID: "a2", Kind: "remote", Capabilities: []string{"classify"}, Transport: "fake", Capture: true},
	}
	closers, err := registerAgents(reg, newTestBackends(t, built), capture, defs)
	if err != nil {
		t.Fatalf("registerAgents: %v", err)
	}

	if len(reg.agents) != 2 {
		t.Fatalf("expected 2 registered agents, got %d", len(reg.agents))
	}
	if len(capture.labels) != 1 || capture.labels[0] != "a2" {
		t.Errorf("expected capture for a2 only, got %v", capture.labels)
	}
	if len(closers) != 2 {
		t.Fatalf("expected 2 closers, got %d", len(closers))
	}

	closeAgents(closers)
	for id, a := range built {
		if !a.closed {
			t.Errorf("agent %s not closed", id)
		}
	}
}

func TestRegisterAgents_UnknownTransportClosesBuilt(t *testing.T) {
	built := make(map[string]*closableAgent)
	defs := []agentbackend.Definition{
		{ID: "a1", Capabilities: []string{"summarize"}, Transport: "fake"},
		{ID: "a2", Capabilities: []string{"summarize"}, Transport: "carrier-pigeon"},
	}

	_, err := registerAgents(&recordingRegistrar{}, newTestBackends(t, built), &wrapCapturer{}, defs)
	if !errors.Is(err, agentbackend.ErrUnknownTransport) {
		t.Fatalf("expected ErrUnknownTransport, got %v", err)
	}
	if !built["a1"].closed {
		t.Error("already built agent must be closed on failure")
	}
}

func TestRegisterAgents_RegistrationFailure(t *testing.T) {
	built := make(map[string]*closableAgent)
	defs := []agentbackend.Definition{
		{ID: "bad", Capabilities: []string{"summarize"}, Transport: "fake"},
	}

	_, err := registerAgents(&recordingRegistrar{fail: "bad"}, newTestBackends(t, built), &wrapCapturer{}, defs)
	if !errors.Is(err, agent.ErrInvalidAgent) {
		t.Fatalf("expected ErrInvalidAgent, got %v", err)
	}
	if !built["bad"].closed {
		t.Error("agent must be closed when registration fails")
	}
}
