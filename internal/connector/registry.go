package connector

import (
	"fmt"
	"sort"
	"sync"
)

// UnknownConnectorError is returned when a lookup names a connector that was
// never registered.
type UnknownConnectorError struct {
	Name string
}

func (e *UnknownConnectorError) Error() string {
	return fmt.Sprintf("unknown connector %q", e.Name)
}

// Registry maps connector names to implementations. Populated once at
// startup; lookups are safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]Connector)}
}

// Register adds a connector; registering the same name twice is a wiring bug
// and fails.
func (r *Registry) Register(c Connector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.connectors[name]; exists {
		return fmt.Errorf("connector %q already registered", name)
	}
	r.connectors[name] = c
	return nil
}

// Get resolves a connector by name.
func (r *Registry) Get(name string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.connectors[name]
	if !ok {
		return nil, &UnknownConnectorError{Name: name}
	}
	return c, nil
}

// Names lists registered connectors in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
