// Package requirements models runtime-dependency version constraints:
// per-package specifier sets, their intersection, and a conservative
// satisfiability check used by the dependency graph.
package requirements

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/agentforge-io/agentforge/engine/core"
)

// Specifier is a single version constraint, e.g. ">=1.2.0".
type Specifier struct {
	Op      string
	Version string
}

func (s Specifier) String() string {
	return s.Op + s.Version
}

func (s Specifier) semVer() (*semver.Version, error) {
	return semver.NewVersion(s.Version)
}

// matches reports whether v satisfies this single specifier.
func (s Specifier) matches(v *semver.Version) bool {
	sv, err := s.semVer()
	if err != nil {
		return true
	}
	cmp := v.Compare(sv)
	switch s.Op {
	case "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return true
}

var specifierOps = []string{"==", "!=", "<=", ">=", "~=", "<", ">"}

// SpecifierSet is the conjunction of specifiers for one package. The empty
// set admits every version.
type SpecifierSet []Specifier

// ParseSpecifierSet parses a comma-separated specifier string such as
// ">=1.0.0,<2.0.0". An empty string yields the empty (unconstrained) set.
func ParseSpecifierSet(raw string) (SpecifierSet, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, ",")
	set := make(SpecifierSet, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		spec, err := parseSpecifier(part)
		if err != nil {
			return nil, err
		}
		set = append(set, spec)
	}
	return set, nil
}

func parseSpecifier(s string) (Specifier, error) {
	for _, op := range specifierOps {
		if strings.HasPrefix(s, op) {
			version := strings.TrimSpace(strings.TrimPrefix(s, op))
			if _, err := semver.NewVersion(version); err != nil {
				return Specifier{}, core.NewError(
					fmt.Errorf("invalid version %q in specifier %q: %w", version, s, err),
					core.CodeConfigurationInvalid,
					nil,
				)
			}
			return Specifier{Op: op, Version: version}, nil
		}
	}
	return Specifier{}, core.NewError(
		fmt.Errorf("specifier %q has no recognized operator", s),
		core.CodeConfigurationInvalid,
		nil,
	)
}

func (s SpecifierSet) String() string {
	parts := make([]string, 0, len(s))
	for _, spec := range s {
		parts = append(parts, spec.String())
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// And returns the conjunction of two sets, deduplicated.
func (s SpecifierSet) And(other SpecifierSet) SpecifierSet {
	seen := make(map[Specifier]struct{}, len(s)+len(other))
	out := make(SpecifierSet, 0, len(s)+len(other))
	for _, spec := range s {
		if _, ok := seen[spec]; !ok {
			seen[spec] = struct{}{}
			out = append(out, spec)
		}
	}
	for _, spec := range other {
		if _, ok := seen[spec]; !ok {
			seen[spec] = struct{}{}
			out = append(out, spec)
		}
	}
	return out
}

// Contains reports whether version satisfies every specifier in the set.
func (s SpecifierSet) Contains(version string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	for _, spec := range s.normalized() {
		if !spec.matches(v) {
			return false
		}
	}
	return true
}

// normalized expands compatible-release specifiers: "~=X.Y.Z" becomes
// ">=X.Y.Z" plus "<X+1.0.0".
func (s SpecifierSet) normalized() SpecifierSet {
	out := make(SpecifierSet, 0, len(s))
	for _, spec := range s {
		if spec.Op != "~=" {
			out = append(out, spec)
			continue
		}
		v, err := spec.semVer()
		if err != nil {
			continue
		}
		upper := fmt.Sprintf("%d.0.0", v.Major()+1)
		out = append(out,
			Specifier{Op: ">=", Version: spec.Version},
			Specifier{Op: "<", Version: upper},
		)
	}
	return out
}

// Satisfiable reports whether some version could satisfy the whole set.
// It is conservative: false means surely unsatisfiable, true means no
// contradiction was found.
func (s SpecifierSet) Satisfiable() bool {
	byOp := make(map[string][]Specifier)
	for _, spec := range s.normalized() {
		if _, err := spec.semVer(); err != nil {
			continue
		}
		byOp[spec.Op] = append(byOp[spec.Op], spec)
	}

	if distinctVersions(byOp["=="]) >= 2 {
		return false
	}
	if len(byOp["=="]) >= 1 {
		// The pinned version must pass every other constraint.
		return s.Contains(byOp["=="][0].Version)
	}

	lower := strictestLowerBound(byOp[">"], byOp[">="])
	upper := strictestUpperBound(byOp["<"], byOp["<="])
	if lower == nil || upper == nil {
		return true
	}
	lowerV, _ := lower.semVer()
	upperV, _ := upper.semVer()
	switch upperV.Compare(lowerV) {
	case -1:
		return false
	case 0:
		// Identical bound versions only work when both sides are inclusive.
		return lower.Op == ">=" && upper.Op == "<="
	}
	return true
}

func distinctVersions(specs []Specifier) int {
	versions := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		versions[spec.Version] = struct{}{}
	}
	return len(versions)
}

// strictestLowerBound picks the greater-than constraint with the highest
// version, preferring the strict operator on ties.
func strictestLowerBound(strict, inclusive []Specifier) *Specifier {
	var best *Specifier
	var bestV *semver.Version
	consider := func(spec Specifier) {
		v, err := spec.semVer()
		if err != nil {
			return
		}
		if best == nil || v.GreaterThan(bestV) || (v.Equal(bestV) && spec.Op == ">") {
			s := spec
			best, bestV = &s, v
		}
	}
	for _, spec := range strict {
		consider(spec)
	}
	for _, spec := range inclusive {
		consider(spec)
	}
	return best
}

// strictestUpperBound picks the less-than constraint with the lowest
// version, preferring the strict operator on ties.
func strictestUpperBound(strict, inclusive []Specifier) *Specifier {
	var best *Specifier
	var bestV *semver.Version
	consider := func(spec Specifier) {
		v, err := spec.semVer()
		if err != nil {
			return
		}
		if best == nil || v.LessThan(bestV) || (v.Equal(bestV) && spec.Op == "<") {
			s := spec
			best, bestV = &s, v
		}
	}
	for _, spec := range strict {
		consider(spec)
	}
	for _, spec := range inclusive {
		consider(spec)
	}
	return best
}
