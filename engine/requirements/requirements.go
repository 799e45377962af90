package requirements

import (
	"fmt"
	"sort"

	"github.com/agentforge-io/agentforge/engine/core"
)

// Requirements maps package names to their specifier sets.
type Requirements map[string]SpecifierSet

// Parse converts a manifest dependency map (name -> raw specifier string)
// into Requirements.
func Parse(raw map[string]string) (Requirements, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(Requirements, len(raw))
	for name, spec := range raw {
		set, err := ParseSpecifierSet(spec)
		if err != nil {
			return nil, core.NewError(
				fmt.Errorf("invalid specifier for package %q: %w", name, err),
				core.CodeConfigurationInvalid,
				map[string]any{"package": name, "specifier": spec},
			)
		}
		out[name] = set
	}
	return out, nil
}

// Names returns the package names in sorted order.
func (r Requirements) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Checker incrementally accumulates requirement sets and rejects additions
// that make any package's merged set surely unsatisfiable.
type Checker struct {
	merged Requirements
}

// NewChecker returns an empty checker.
func NewChecker() *Checker {
	return &Checker{merged: make(Requirements)}
}

// Add merges reqs into the checker. On conflict it returns a
// DEPENDENCY_CONFLICT error naming the package and the offending merged
// set, and leaves the checker unchanged.
func (c *Checker) Add(reqs Requirements) error {
	staged := make(Requirements, len(reqs))
	for name, set := range reqs {
		mergedSet := c.merged[name].And(set)
		if !mergedSet.Satisfiable() {
			return core.NewError(
				fmt.Errorf("conflict on package %s: specifier set %q not satisfiable", name, mergedSet.String()),
				core.CodeDependencyConflict,
				map[string]any{"package": name, "specifier_set": mergedSet.String()},
			)
		}
		staged[name] = mergedSet
	}
	for name, set := range staged {
		c.merged[name] = set
	}
	return nil
}

// Merged returns a copy of the accumulated per-package intersections.
func (c *Checker) Merged() Requirements {
	out := make(Requirements, len(c.merged))
	for name, set := range c.merged {
		out[name] = set
	}
	return out
}
