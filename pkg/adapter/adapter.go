package adapter

import (
	"context"
	"fmt"
	"sort"
)

// Adapter is the provider contract: one prompt in, one artifact plus
// normalized usage out.
type Adapter interface {
	// Generate sends a prompt to the model and returns the response.
	Generate(ctx context.Context, model string, prompt string) (*Response, error)

	// Name returns the adapter's identifier.
	Name() string

	// Models returns the list of supported models.
	Models() []string
}

// Registry resolves adapters by name or by the model id they serve.
type Registry struct {
	byName  map[string]Adapter
	byModel map[string]Adapter
}

// NewRegistry creates a registry over the given adapters. Later adapters
// win model-id collisions.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{
		byName:  make(map[string]Adapter),
		byModel: make(map[string]Adapter),
	}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds an adapter and indexes its models.
func (r *Registry) Register(a Adapter) {
	r.byName[a.Name()] = a
	for _, m := range a.Models() {
		r.byModel[m] = a
	}
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("no adapter named %q", name)
	}
	return a, nil
}

// ForModel returns the adapter that serves the model id.
func (r *Registry) ForModel(model string) (Adapter, error) {
	a, ok := r.byModel[model]
	if !ok {
		return nil, fmt.Errorf("no adapter serves model %q", model)
	}
	return a, nil
}

// Names returns the registered adapter names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
