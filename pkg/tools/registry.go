package tools

import (
	"context"
	"fmt"
	"sync"
)

// Spec describes one invocable operation: its name, what it does, and its
// parameter contract. Immutable once registered.
type Spec struct {
	Name        string
	Description string
	Parameters  *Schema
}

// ErrUnknownTool reports a call naming a tool outside the registry.
type ErrUnknownTool struct {
	Name string
}

func (e *ErrUnknownTool) Error() string {
	return fmt.Sprintf("tool %q not found", e.Name)
}

type registered struct {
	spec Spec
	exec ExecutorFunc
}

// Registry is the closed catalog of invocable operations. Specs surface to
// the model in registration order so earlier tools are not implicitly
// prioritized; the model chooses by name, not position.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]*registered
}

// NewRegistry creates a new empty tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*registered),
	}
}

// Register adds a tool spec with its bound executor.
func (r *Registry) Register(spec Spec, exec ExecutorFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if spec.Name == "" {
		return fmt.Errorf("tool spec has no name")
	}
	if exec == nil {
		return fmt.Errorf("tool %q has no executor", spec.Name)
	}
	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("tool %q already registered", spec.Name)
	}

	if spec.Parameters == nil {
		spec.Parameters = &Schema{Type: "object"}
	}
	// Unknown argument keys are rejected by validation.
	if spec.Parameters.AdditionalProperties == nil {
		spec.Parameters.AdditionalProperties = false
	}

	r.order = append(r.order, spec.Name)
	r.tools[spec.Name] = &registered{spec: spec, exec: exec}
	return nil
}

// Get retrieves a tool spec by name.
func (r *Registry) Get(name string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, exists := r.tools[name]
	if !exists {
		return Spec{}, false
	}
	return reg.spec, true
}

// Specs returns all registered specs in registration order.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].spec)
	}
	return specs
}

// Count returns the number of registered tools
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tools)
}

// ValidateCall checks a proposed call without executing it. Returns
// *ErrUnknownTool or *SchemaViolationError; both are recoverable at the
// conversation level.
func (r *Registry) ValidateCall(name string, args map[string]interface{}) error {
	r.mu.RLock()
	reg, exists := r.tools[name]
	r.mu.RUnlock()

	if !exists {
		return &ErrUnknownTool{Name: name}
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return validateArgs(name, reg.spec.Parameters, args)
}

// Execute validates a call and, only if it conforms, runs the bound
// executor. A validation failure never reaches the executor.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (*Result, error) {
	if err := r.ValidateCall(name, args); err != nil {
		return nil, err
	}

	r.mu.RLock()
	reg := r.tools[name]
	r.mu.RUnlock()

	if args == nil {
		args = map[string]interface{}{}
	}
	return reg.exec(ctx, args)
}
