package component

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/agentforge-io/agentforge/engine/core"
)

// Reference is one cross-package reference found in a source unit:
// packages/<author>/<type-plural>/<name>[/<subpath>].
type Reference struct {
	Prefix  core.Prefix
	Subpath string
	File    string
	Line    int
}

var packageRefPattern = regexp.MustCompile(
	`packages/([a-z_][a-z0-9_]*)/(protocols|connections|skills|contracts)/([a-z_][a-z0-9_]*)((?:/[A-Za-z0-9_.-]+)*)`,
)

// ScanReferences statically scans every script unit under dir and extracts
// all package references. No code is executed.
func ScanReferences(dir string) ([]Reference, error) {
	refs := make([]Reference, 0, 8)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := scriptExtensions[filepath.Ext(d.Name())]; !ok {
			return nil
		}
		fileRefs, err := scanFile(path)
		if err != nil {
			return err
		}
		refs = append(refs, fileRefs...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	return refs, nil
}

func scanFile(path string) ([]Reference, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var refs []Reference
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		for _, m := range packageRefPattern.FindAllStringSubmatch(scanner.Text(), -1) {
			t, err := core.ParseComponentType(m[2])
			if err != nil {
				continue
			}
			refs = append(refs, Reference{
				Prefix:  core.Prefix{Type: t, Author: m[1], Name: m[3]},
				Subpath: strings.TrimPrefix(m[4], "/"),
				File:    path,
				Line:    lineNo,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return refs, nil
}

// CheckConsistency verifies that the packages referenced by the
// component's source units exactly match its declared dependencies. Both
// undeclared coupling and dead declarations are fatal; this gate runs
// before any component code is instantiated.
func CheckConsistency(cfg *Config) error {
	refs, err := ScanReferences(cfg.Directory)
	if err != nil {
		return core.NewError(err, core.CodeComponentLoadFailed, map[string]any{
			"component": cfg.ComponentId().String(),
		})
	}
	own := cfg.Prefix()
	used := make(map[core.Prefix][]Reference)
	for _, ref := range refs {
		if ref.Prefix == own {
			continue
		}
		used[ref.Prefix] = append(used[ref.Prefix], ref)
	}
	deps, err := cfg.PackageDependencies()
	if err != nil {
		return err
	}
	declared := make(map[core.Prefix]struct{})
	for _, dep := range deps {
		declared[dep.Prefix()] = struct{}{}
	}

	var usedNotDeclared []string
	for prefix, prefixRefs := range used {
		if _, ok := declared[prefix]; !ok {
			usedNotDeclared = append(usedNotDeclared, fmt.Sprintf(
				"%s (referenced at %s:%d)", prefix, prefixRefs[0].File, prefixRefs[0].Line,
			))
		}
	}
	var declaredNotUsed []string
	for prefix := range declared {
		if _, ok := used[prefix]; !ok {
			declaredNotUsed = append(declaredNotUsed, prefix.String())
		}
	}
	if len(usedNotDeclared) == 0 && len(declaredNotUsed) == 0 {
		return nil
	}
	sort.Strings(usedNotDeclared)
	sort.Strings(declaredNotUsed)
	details := map[string]any{"component": cfg.ComponentId().String()}
	var parts []string
	if len(usedNotDeclared) > 0 {
		details["used_not_declared"] = usedNotDeclared
		parts = append(parts, fmt.Sprintf("referenced but not declared: %s", strings.Join(usedNotDeclared, "; ")))
	}
	if len(declaredNotUsed) > 0 {
		details["declared_not_used"] = declaredNotUsed
		parts = append(parts, fmt.Sprintf("declared but never referenced: %s", strings.Join(declaredNotUsed, "; ")))
	}
	return core.NewError(
		fmt.Errorf("dependency consistency check failed for %s: %s",
			cfg.ComponentId(), strings.Join(parts, "; ")),
		core.CodeComponentLoadFailed,
		details,
	)
}
