// Package depgraph maintains the project's component dependency graph:
// the authoritative index of every configuration the builder knows about,
// its declared dependencies and the inverse of that relation.
package depgraph

import (
	"fmt"
	"sort"

	"github.com/agentforge-io/agentforge/engine/component"
	"github.com/agentforge-io/agentforge/engine/core"
	"github.com/agentforge-io/agentforge/engine/requirements"
)

// Graph holds component configurations keyed by id and keeps the derived
// indices consistent with every mutation. It is not safe for concurrent
// use; the builder serializes access.
type Graph struct {
	configs map[core.ComponentId]*component.Config
	// order records insertion order; iteration helpers use it so results
	// never depend on map ordering.
	order []core.ComponentId
	// inverse maps each component to the set of components that declare
	// it as a dependency.
	inverse map[core.ComponentId]map[core.ComponentId]struct{}
	// byPrefix groups all registered versions of the same package.
	byPrefix map[core.Prefix][]core.ComponentId
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		configs:  make(map[core.ComponentId]*component.Config),
		inverse:  make(map[core.ComponentId]map[core.ComponentId]struct{}),
		byPrefix: make(map[core.Prefix][]core.ComponentId),
	}
}

// Len returns the number of registered components.
func (g *Graph) Len() int {
	return len(g.order)
}

// Get returns the configuration for id, hash ignored.
func (g *Graph) Get(id core.ComponentId) (*component.Config, bool) {
	cfg, ok := g.configs[id.WithoutHash()]
	return cfg, ok
}

// Has reports whether id is registered, hash ignored.
func (g *Graph) Has(id core.ComponentId) bool {
	_, ok := g.configs[id.WithoutHash()]
	return ok
}

// All returns every configuration in insertion order.
func (g *Graph) All() []*component.Config {
	out := make([]*component.Config, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.configs[id])
	}
	return out
}

// OfType returns the configurations of one type in insertion order.
func (g *Graph) OfType(t core.ComponentType) []*component.Config {
	var out []*component.Config
	for _, id := range g.order {
		if id.Type == t {
			out = append(out, g.configs[id])
		}
	}
	return out
}

// Add registers a configuration. The checks run in order — uniqueness,
// declared dependencies present, runtime requirements satisfiable — and
// all of them complete before the graph is written, so a failed Add
// leaves the graph exactly as it was.
func (g *Graph) Add(cfg *component.Config) error {
	id := cfg.ComponentId()
	if _, exists := g.configs[id]; exists {
		return core.NewError(
			fmt.Errorf("component %s is already registered", id),
			core.CodeDuplicateComponent,
			map[string]any{"component": id.String()},
		)
	}
	deps, err := cfg.PackageDependencies()
	if err != nil {
		return err
	}
	var missing []string
	for _, dep := range deps {
		if _, ok := g.configs[dep]; !ok {
			missing = append(missing, dep.String())
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return core.NewError(
			fmt.Errorf("can not add %s component %q: missing dependencies %v",
				cfg.Type, cfg.PublicId(), missing),
			core.CodeMissingDependency,
			map[string]any{"component": id.String(), "missing": missing},
		)
	}
	reqs, err := requirements.Parse(cfg.Dependencies)
	if err != nil {
		return err
	}
	checker, err := g.currentChecker()
	if err != nil {
		return err
	}
	if err := checker.Add(reqs); err != nil {
		return err
	}

	g.configs[id] = cfg
	g.order = append(g.order, id)
	prefix := id.Prefix()
	g.byPrefix[prefix] = append(g.byPrefix[prefix], id)
	for _, dep := range deps {
		if g.inverse[dep] == nil {
			g.inverse[dep] = make(map[core.ComponentId]struct{})
		}
		g.inverse[dep][id] = struct{}{}
	}
	return nil
}

// Remove deletes a component. It fails when the id is unknown or when
// other registered components still depend on it.
func (g *Graph) Remove(id core.ComponentId) error {
	id = id.WithoutHash()
	cfg, ok := g.configs[id]
	if !ok {
		return core.NewError(
			fmt.Errorf("component %s is not registered", id),
			core.CodeNotFound,
			map[string]any{"component": id.String()},
		)
	}
	if dependents := g.Dependents(id); len(dependents) > 0 {
		names := make([]string, 0, len(dependents))
		for _, dep := range dependents {
			names = append(names, dep.String())
		}
		sort.Strings(names)
		return core.NewError(
			fmt.Errorf("can not remove %s: the following components depend on it: %v", id, names),
			core.CodeDependentsExist,
			map[string]any{"component": id.String(), "dependents": names},
		)
	}

	deps, err := cfg.PackageDependencies()
	if err != nil {
		return err
	}

	delete(g.configs, id)
	for i, ordered := range g.order {
		if ordered == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	prefix := id.Prefix()
	kept := g.byPrefix[prefix][:0]
	for _, pid := range g.byPrefix[prefix] {
		if pid != id {
			kept = append(kept, pid)
		}
	}
	if len(kept) == 0 {
		delete(g.byPrefix, prefix)
	} else {
		g.byPrefix[prefix] = kept
	}
	for _, dep := range deps {
		delete(g.inverse[dep], id)
		if len(g.inverse[dep]) == 0 {
			delete(g.inverse, dep)
		}
	}
	delete(g.inverse, id)
	return nil
}

// Dependents returns the components that declare id as a dependency,
// sorted for determinism.
func (g *Graph) Dependents(id core.ComponentId) []core.ComponentId {
	set := g.inverse[id.WithoutHash()]
	out := make([]core.ComponentId, 0, len(set))
	for dep := range set {
		out = append(out, dep)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Public.Compare(out[j].Public) < 0
	})
	return out
}

// Versions returns every registered version of a prefix.
func (g *Graph) Versions(prefix core.Prefix) []core.ComponentId {
	return append([]core.ComponentId(nil), g.byPrefix[prefix]...)
}

// HighestVersions returns, for each registered prefix, the configuration
// with the highest semantic version. The result does not depend on
// insertion order.
func (g *Graph) HighestVersions() []*component.Config {
	best := make(map[core.Prefix]core.ComponentId, len(g.byPrefix))
	for prefix, ids := range g.byPrefix {
		top := ids[0]
		for _, id := range ids[1:] {
			if id.Public.Compare(top.Public) > 0 {
				top = id
			}
		}
		best[prefix] = top
	}
	prefixes := make([]core.Prefix, 0, len(best))
	for prefix := range best {
		prefixes = append(prefixes, prefix)
	}
	sort.Slice(prefixes, func(i, j int) bool {
		a, b := prefixes[i], prefixes[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Author != b.Author {
			return a.Author < b.Author
		}
		return a.Name < b.Name
	})
	out := make([]*component.Config, 0, len(prefixes))
	for _, prefix := range prefixes {
		out = append(out, g.configs[best[prefix]])
	}
	return out
}

// currentChecker rebuilds the conflict checker from the registered
// configurations. Rebuilding keeps removal exact: a removed component's
// requirements no longer constrain later additions.
func (g *Graph) currentChecker() (*requirements.Checker, error) {
	checker := requirements.NewChecker()
	for _, id := range g.order {
		reqs, err := requirements.Parse(g.configs[id].Dependencies)
		if err != nil {
			return nil, err
		}
		// Registered configs already passed the check once, so Add only
		// fails on a hand-mutated graph.
		if err := checker.Add(reqs); err != nil {
			return nil, err
		}
	}
	return checker, nil
}

// MergedRequirements returns the runtime requirements across every
// registered component: per package, the intersection of all declared
// specifier sets.
func (g *Graph) MergedRequirements() (requirements.Requirements, error) {
	checker, err := g.currentChecker()
	if err != nil {
		return nil, err
	}
	return checker.Merged(), nil
}
