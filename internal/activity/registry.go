package activity

import (
	"sort"
	"sync"
)

// Registry maps behavior-type names to their event sources. It is
// populated at startup from configuration, so adding a type is a
// config change, never a code change; table names are bound once here
// instead of being constructed per request.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]EventSource
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]EventSource)}
}

// Register binds a behavior type to its source. Re-registering a name
// replaces the previous source.
func (r *Registry) Register(name string, src EventSource) {
	r.mu.Lock()
	r.sources[name] = src
	r.mu.Unlock()
}

// Source returns the source for a type, or nil if none is registered.
func (r *Registry) Source(name string) EventSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[name]
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.sources))
	for name := range r.sources {
		out = append(out, name)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
