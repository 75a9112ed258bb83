// Package registry binds requests to storage engines. The mapping is built
// once at start-up and never mutated afterwards, so lookups need no locking.
package registry

import (
	"fmt"
	"sort"

	"graphserver/application/ports"
	apperrors "graphserver/pkg/errors"
)

// Registry is an immutable mapping from engine name to adapter instance.
type Registry struct {
	engines     map[string]ports.Engine
	defaultName string
}

// New builds a registry from the given engines. The default engine must be
// one of the registered names; a misconfigured default is a start-up error
// rather than an endless stream of 503s.
func New(engines map[string]ports.Engine, defaultName string) (*Registry, error) {
	if len(engines) == 0 {
		return nil, fmt.Errorf("no storage engines configured")
	}
	if _, ok := engines[defaultName]; !ok {
		return nil, fmt.Errorf("default engine %q is not among the configured engines", defaultName)
	}
	copied := make(map[string]ports.Engine, len(engines))
	for name, e := range engines {
		copied[name] = e
	}
	return &Registry{engines: copied, defaultName: defaultName}, nil
}

// Resolve returns the adapter bound to name, or the default adapter when
// name is empty. Unknown names yield EngineNotAvailable.
func (r *Registry) Resolve(name string) (string, ports.Engine, error) {
	if name == "" {
		name = r.defaultName
	}
	engine, ok := r.engines[name]
	if !ok {
		return "", nil, apperrors.NewEngineNotAvailable(name)
	}
	return name, engine, nil
}

// Names returns the registered engine names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns the configured default engine name.
func (r *Registry) Default() string {
	return r.defaultName
}
