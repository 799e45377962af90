package component

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agentforge-io/agentforge/engine/core"
)

// Namespace is a registered package namespace: the on-disk home of one
// (type, author, name) prefix within a builder session.
type Namespace struct {
	Prefix core.Prefix
	Dir    string
}

// HasModule reports whether the namespace contains the given
// slash-separated module subpath, either as a script unit or a directory.
func (n *Namespace) HasModule(subpath string) bool {
	if subpath == "" {
		return true
	}
	base := filepath.Join(n.Dir, filepath.FromSlash(strings.TrimPrefix(subpath, "/")))
	if _, err := os.Stat(base); err == nil {
		return true
	}
	for ext := range scriptExtensions {
		if _, err := os.Stat(base + ext); err == nil {
			return true
		}
	}
	return false
}

// NamespaceRegistry is the builder-owned module namespace index, keyed by
// (type, author, name). Its lifetime is tied to one builder session; it
// is never process-global.
type NamespaceRegistry struct {
	mu     sync.RWMutex
	spaces map[core.Prefix]*Namespace
}

// NewNamespaceRegistry returns an empty registry.
func NewNamespaceRegistry() *NamespaceRegistry {
	return &NamespaceRegistry{spaces: make(map[core.Prefix]*Namespace)}
}

// Register adds the configuration's namespace. Re-registering the same
// prefix is an error: each namespace is loaded once per session.
func (r *NamespaceRegistry) Register(cfg *Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix := cfg.Prefix()
	if _, exists := r.spaces[prefix]; exists {
		return core.NewError(
			fmt.Errorf("namespace %s already registered", prefix),
			core.CodeDuplicateComponent,
			nil,
		)
	}
	r.spaces[prefix] = &Namespace{Prefix: prefix, Dir: cfg.Directory}
	return nil
}

// Lookup returns the namespace for a prefix.
func (r *NamespaceRegistry) Lookup(prefix core.Prefix) (*Namespace, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ns, ok := r.spaces[prefix]
	return ns, ok
}

// Len returns the number of registered namespaces.
func (r *NamespaceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.spaces)
}
