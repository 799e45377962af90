// Package loadorder computes deterministic load orders over component
// configurations so every component is instantiated after the
// dependencies it relies on.
package loadorder

import (
	"fmt"

	"github.com/agentforge-io/agentforge/engine/component"
	"github.com/agentforge-io/agentforge/engine/core"
)

// Order sorts configurations of a single type by their intra-type
// dependencies, dependencies first. Ties keep the input order, so the
// result is stable across runs. A dependency cycle fails the whole
// ordering; no partial order is returned.
func Order(t core.ComponentType, configs []*component.Config) ([]*component.Config, error) {
	deps := make(map[*component.Config][]core.ComponentId, len(configs))
	for _, cfg := range configs {
		intra, err := cfg.IntraTypeDependencies()
		if err != nil {
			return nil, err
		}
		for _, pub := range intra {
			deps[cfg] = append(deps[cfg], core.NewComponentId(t, pub.WithoutHash()))
		}
	}
	ordered, err := kahn(configs, deps)
	if err != nil {
		return nil, core.NewError(
			fmt.Errorf("cannot load %ss, there is a cyclic dependency", t),
			core.CodeCyclicDependency,
			map[string]any{"type": string(t)},
		)
	}
	return ordered, nil
}

// OrderAll sorts configurations of mixed types by their full declared
// dependency sets. The builder uses it to bootstrap a project from disk,
// where manifests arrive in directory order rather than load order.
func OrderAll(configs []*component.Config) ([]*component.Config, error) {
	deps := make(map[*component.Config][]core.ComponentId, len(configs))
	for _, cfg := range configs {
		declared, err := cfg.PackageDependencies()
		if err != nil {
			return nil, err
		}
		deps[cfg] = declared
	}
	ordered, err := kahn(configs, deps)
	if err != nil {
		return nil, core.NewError(
			fmt.Errorf("cannot order components, there is a cyclic dependency"),
			core.CodeCyclicDependency,
			nil,
		)
	}
	return ordered, nil
}

// kahn runs Kahn's algorithm over the given configurations. Edges point
// from a dependency to its dependents; only dependencies present in the
// input set participate. The ready queue is drained in input order.
func kahn(configs []*component.Config, deps map[*component.Config][]core.ComponentId) ([]*component.Config, error) {
	byID := make(map[core.ComponentId]*component.Config, len(configs))
	order := make([]core.ComponentId, 0, len(configs))
	for _, cfg := range configs {
		id := cfg.ComponentId()
		if _, dup := byID[id]; dup {
			continue
		}
		byID[id] = cfg
		order = append(order, id)
	}

	indegree := make(map[core.ComponentId]int, len(byID))
	dependents := make(map[core.ComponentId][]core.ComponentId, len(byID))
	for _, id := range order {
		indegree[id] = 0
	}
	for _, id := range order {
		for _, dep := range deps[byID[id]] {
			if _, in := byID[dep]; !in {
				continue
			}
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	queue := make([]core.ComponentId, 0, len(order))
	for _, id := range order {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	out := make([]*component.Config, 0, len(order))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, byID[id])
		for _, dependent := range dependents[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	if len(out) != len(order) {
		return nil, fmt.Errorf("cyclic dependency among %d components", len(order)-len(out))
	}
	return out, nil
}
