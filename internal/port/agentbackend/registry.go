// Package agentbackend builds remote agents from declarative definitions.
// Transports (NATS, MCP, ...) register a Factory on an explicit Registry
// owned by the host process.
package agentbackend

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Strob0t/agentrouter/internal/domain/agent"
)

// Definition describes one remote agent.
type Definition struct {
	ID           string            `yaml:"id"`
	Kind         string            `yaml:"kind"`
	Capabilities []string          `yaml:"capabilities"`
	Transport    string            `yaml:"transport"`
	Capture      bool              `yaml:"capture"` // route Run through output capture
	Options      map[string]string `yaml:"options"`
}

// Validate checks the required fields.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return agent.ErrInvalidAgent
	}
	if d.Transport == "" {
		return fmt.Errorf("agent %s: transport is required", d.ID)
	}
	if len(d.Capabilities) == 0 {
		return fmt.Errorf("agent %s: at least one capability is required", d.ID)
	}
	return nil
}

// Factory is a constructor function that creates an agent from a definition.
type Factory func(def Definition) (agent.Agent, error)

// ErrUnknownTransport is returned for a transport without a registered factory.
var ErrUnknownTransport = errors.New("agentbackend: unknown transport")

// Registry maps transport names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register makes a transport factory available by name.
func (r *Registry) Register(transport string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[transport]; exists {
		return fmt.Errorf("agentbackend: duplicate registration for %q", transport)
	}
	r.factories[transport] = factory
	return nil
}

// New creates an agent from def using the factory of its transport.
func (r *Registry) New(def Definition) (agent.Agent, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	factory, ok := r.factories[def.Transport]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownTransport, def.Transport)
	}
	return factory(def)
}

// Available returns the registered transport names, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
