// Package registry holds the runtime component instances of one agent:
// every loaded protocol, contract, connection and skill, addressable by
// type and public id.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/agentforge-io/agentforge/engine/component"
	"github.com/agentforge-io/agentforge/engine/core"
)

// Resources indexes runtime instances by (type, public id). A builder
// populates one registry per build; agents read from it concurrently.
type Resources struct {
	mu sync.RWMutex
	// byType maps component type -> hashless public id -> instance.
	byType map[core.ComponentType]map[core.PublicId]*component.Component
	// order records registration order per type for deterministic listing.
	order map[core.ComponentType][]core.PublicId
}

// New returns an empty registry with all component type buckets in place.
func New() *Resources {
	r := &Resources{
		byType: make(map[core.ComponentType]map[core.PublicId]*component.Component),
		order:  make(map[core.ComponentType][]core.PublicId),
	}
	for _, t := range core.ComponentTypes() {
		r.byType[t] = make(map[core.PublicId]*component.Component)
	}
	return r
}

// Register adds an instance. Registering the same (type, id) twice is an
// error; instances are never silently replaced.
func (r *Resources) Register(c *component.Component) error {
	if c == nil {
		return core.NewError(
			fmt.Errorf("cannot register a nil component"),
			core.CodeConfigurationInvalid,
			nil,
		)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t := c.Kind()
	bucket, ok := r.byType[t]
	if !ok {
		return core.NewError(
			fmt.Errorf("unknown component type %q", t),
			core.CodeConfigurationInvalid,
			nil,
		)
	}
	id := c.PublicId()
	if _, exists := bucket[id]; exists {
		return core.NewError(
			fmt.Errorf("%s %s is already registered", t, id),
			core.CodeDuplicateComponent,
			map[string]any{"component": core.NewComponentId(t, id).String()},
		)
	}
	bucket[id] = c
	r.order[t] = append(r.order[t], id)
	return nil
}

// Get returns the instance for (type, id), hash ignored.
func (r *Resources) Get(t core.ComponentType, id core.PublicId) (*component.Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byType[t][id.WithoutHash()]
	return c, ok
}

// OfType returns all instances of one type in registration order.
func (r *Resources) OfType(t core.ComponentType) []*component.Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*component.Component, 0, len(r.order[t]))
	for _, id := range r.order[t] {
		out = append(out, r.byType[t][id])
	}
	return out
}

// Ids returns the registered public ids of one type, sorted.
func (r *Resources) Ids(t core.ComponentType) []core.PublicId {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]core.PublicId(nil), r.order[t]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}

// Len returns the total number of registered instances.
func (r *Resources) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, bucket := range r.byType {
		n += len(bucket)
	}
	return n
}
