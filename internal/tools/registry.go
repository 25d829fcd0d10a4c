// Package tools defines the tool contract and the registry the agent
// dispatches against. Leaf capability packs (pymol, vision, desktop) register
// themselves here at startup; the registry itself never executes anything.
package tools

import (
	"context"
	"fmt"
	"sync"
)

// Executor is the callable every leaf capability exposes. It receives the
// arguments the model supplied, already validated against the tool's Spec,
// and reports internal failures through the error return rather than
// panicking across the boundary. Implementations must honor ctx cancellation
// and deadlines.
type Executor func(ctx context.Context, args map[string]any) (map[string]any, error)

// ParamType enumerates the argument types a tool may declare.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
)

// Param describes a single tool parameter.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// Spec is the machine-readable signature of a tool. It is owned by the
// registry; callers treat it as read-only.
type Spec struct {
	Name        string
	Description string
	Params      []Param
	// Destructive marks tools whose side effects are not safely reversible.
	// The dispatch guard requires explicit confirmation before running them.
	Destructive bool
}

// DuplicateToolError reports a second registration under the same name.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool already registered: %s", e.Name)
}

// UnknownToolError reports a lookup for a name nobody registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// Registry maps tool names to executors and their specs. It is populated
// during startup and read-only afterwards, so one instance is safely shared
// across conversations.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
	order []string
}

type entry struct {
	spec Spec
	exec Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]entry)}
}

// Register adds a tool under spec.Name.
func (r *Registry) Register(spec Spec, exec Executor) error {
	if spec.Name == "" {
		return fmt.Errorf("tool spec has no name")
	}
	if exec == nil {
		return fmt.Errorf("tool %s has no executor", spec.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[spec.Name]; exists {
		return &DuplicateToolError{Name: spec.Name}
	}
	r.tools[spec.Name] = entry{spec: spec, exec: exec}
	r.order = append(r.order, spec.Name)
	return nil
}

// Resolve returns the executor and spec for name.
func (r *Registry) Resolve(name string) (Executor, Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return nil, Spec{}, &UnknownToolError{Name: name}
	}
	return e.exec, e.spec, nil
}

// Specs returns all registered specs in registration order. The result is a
// copy; mutating it does not affect the registry.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].spec)
	}
	return specs
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
