package component

import (
	"errors"
	"fmt"

	"github.com/agentforge-io/agentforge/engine/core"
	"github.com/agentforge-io/agentforge/pkg/logger"
)

// Loader turns validated configurations into runtime instances. It owns
// the session's namespace registry, so dependency references in a
// component's source units can be resolved against the packages loaded
// before it.
type Loader struct {
	namespaces   *NamespaceRegistry
	constructors *ConstructorRegistry
	log          logger.Logger
}

// NewLoader returns a loader with an empty namespace registry.
func NewLoader(constructors *ConstructorRegistry, log logger.Logger) *Loader {
	if constructors == nil {
		constructors = NewConstructorRegistry()
	}
	return &Loader{
		namespaces:   NewNamespaceRegistry(),
		constructors: constructors,
		log:          log,
	}
}

// Namespaces exposes the session namespace registry.
func (l *Loader) Namespaces() *NamespaceRegistry {
	return l.namespaces
}

// Load instantiates the component described by cfg. The declared-vs-used
// consistency check and the dependency reference verification both run
// before the namespace is registered and before any constructor is
// invoked. Abstract components register their namespace but produce no
// instance; Load returns (nil, nil) for them.
func (l *Loader) Load(cfg *Config, bctx *BuildContext) (*Component, error) {
	if err := CheckConsistency(cfg); err != nil {
		return nil, l.wrap(cfg, err)
	}
	if err := l.verifyReferences(cfg); err != nil {
		return nil, l.wrap(cfg, err)
	}
	if err := l.namespaces.Register(cfg); err != nil {
		return nil, l.wrap(cfg, err)
	}
	if cfg.Abstract {
		if l.log != nil {
			l.log.Debug("skipping instantiation of abstract component", "component", cfg.ComponentId().String())
		}
		return nil, nil
	}
	ctor, err := l.constructors.Resolve(cfg.Type, cfg.ClassName)
	if err != nil {
		return nil, l.wrap(cfg, err)
	}
	instance, err := ctor(cfg, bctx)
	if err != nil {
		return nil, l.wrap(cfg, err)
	}
	return instance, nil
}

// verifyReferences checks that every cross-package module reference in
// the component's source units resolves against an already registered
// namespace. A reference to an unregistered prefix and a reference to a
// missing module inside a registered one produce distinct errors, so the
// caller can tell an absent package from a typo.
func (l *Loader) verifyReferences(cfg *Config) error {
	refs, err := ScanReferences(cfg.Directory)
	if err != nil {
		return core.NewError(err, core.CodeComponentLoadFailed, map[string]any{
			"component": cfg.ComponentId().String(),
		})
	}
	own := cfg.Prefix()
	for _, ref := range refs {
		if ref.Prefix == own {
			continue
		}
		ns, ok := l.namespaces.Lookup(ref.Prefix)
		if !ok {
			return core.NewError(
				fmt.Errorf("no package found with prefix %s; referenced at %s:%d but the package is not among the loaded dependencies",
					ref.Prefix, ref.File, ref.Line),
				core.CodeMissingDependency,
				map[string]any{"prefix": ref.Prefix.String()},
			)
		}
		if !ns.HasModule(ref.Subpath) {
			return core.NewError(
				fmt.Errorf("package %s has no module %q; referenced at %s:%d",
					ref.Prefix, ref.Subpath, ref.File, ref.Line),
				core.CodeComponentLoadFailed,
				map[string]any{"prefix": ref.Prefix.String(), "module": ref.Subpath},
			)
		}
	}
	return nil
}

// wrap annotates a load failure with the component identity, preserving
// the typed cause.
func (l *Loader) wrap(cfg *Config, err error) error {
	code := core.CodeComponentLoadFailed
	var cerr *core.Error
	if errors.As(err, &cerr) {
		code = cerr.Code
	}
	return core.NewError(
		fmt.Errorf("An error occurred while loading %s %s: %w", cfg.Type, cfg.PublicId(), err),
		code,
		map[string]any{"component": cfg.ComponentId().String()},
	)
}
