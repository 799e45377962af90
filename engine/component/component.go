package component

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/agentforge-io/agentforge/engine/core"
	"github.com/agentforge-io/agentforge/pkg/logger"
)

// Component is a runtime instance of a configuration. Instances are
// created by the Loader and are never shared across two concurrent builds
// unless injected manually.
type Component struct {
	config     *Config
	instanceID string
	modules    []string
	log        logger.Logger
}

// newComponent wires a fresh instance for the configuration.
func newComponent(cfg *Config, modules []string, log logger.Logger) *Component {
	return &Component{
		config:     cfg,
		instanceID: uuid.NewString(),
		modules:    modules,
		log:        log,
	}
}

// ID returns the component's graph key.
func (c *Component) ID() core.ComponentId {
	return c.config.ComponentId()
}

// Kind returns the component type.
func (c *Component) Kind() core.ComponentType {
	return c.config.Type
}

// PublicId returns the component's public id.
func (c *Component) PublicId() core.PublicId {
	return c.config.PublicId().WithoutHash()
}

// Configuration returns the bound configuration.
func (c *Component) Configuration() *Config {
	return c.config
}

// InstanceID uniquely identifies this instance across builds.
func (c *Component) InstanceID() string {
	return c.instanceID
}

// Modules lists the relative paths of the component's script units.
func (c *Component) Modules() []string {
	return c.modules
}

// Logger returns the per-component logger.
func (c *Component) Logger() logger.Logger {
	return c.log
}

// RefreshLogger replaces the component's logger; the builder calls this
// when reusing an injected instance. Skill loggers live on the skill
// context instead and are not refreshed here.
func (c *Component) RefreshLogger(log logger.Logger) {
	c.log = log.With("component", c.ID().String())
}

// BuildContext carries the collaborators a constructor may need. Identity
// and crypto store are only populated for connections; the agent context
// only for skills.
type BuildContext struct {
	AgentName    string
	Identity     any
	CryptoStore  any
	AgentContext any
	Logger       logger.Logger
}

// Constructor builds a runtime instance from a validated configuration.
type Constructor func(cfg *Config, bctx *BuildContext) (*Component, error)

// ConstructorRegistry resolves constructors by (type, class name). An
// empty class name resolves the declarative fallback, which instantiates
// a component from its configuration and script units alone.
type ConstructorRegistry struct {
	mu     sync.RWMutex
	byType map[core.ComponentType]map[string]Constructor
}

// NewConstructorRegistry returns a registry with the declarative fallback
// registered for all four component types.
func NewConstructorRegistry() *ConstructorRegistry {
	r := &ConstructorRegistry{byType: make(map[core.ComponentType]map[string]Constructor)}
	for _, t := range core.ComponentTypes() {
		r.byType[t] = map[string]Constructor{"": declarativeConstructor}
	}
	return r
}

// Register binds a named constructor for a component type. This is the
// narrow escape hatch for components backed by compiled code.
func (r *ConstructorRegistry) Register(t core.ComponentType, className string, ctor Constructor) error {
	if !t.Valid() {
		return core.NewError(fmt.Errorf("unknown component type %q", t), core.CodeConfigurationInvalid, nil)
	}
	if ctor == nil {
		return core.NewError(fmt.Errorf("constructor for %s/%s is nil", t, className), core.CodeConfigurationInvalid, nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[t][className] = ctor
	return nil
}

// Resolve returns the constructor for (type, class name), falling back to
// the declarative constructor when no named one is registered.
func (r *ConstructorRegistry) Resolve(t core.ComponentType, className string) (Constructor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byName, ok := r.byType[t]
	if !ok {
		return nil, core.NewError(fmt.Errorf("unknown component type %q", t), core.CodeConfigurationInvalid, nil)
	}
	if ctor, ok := byName[className]; ok {
		return ctor, nil
	}
	if ctor, ok := byName[""]; ok {
		return ctor, nil
	}
	return nil, core.NewError(
		fmt.Errorf("no constructor registered for %s class %q", t, className),
		core.CodeComponentLoadFailed,
		nil,
	)
}

// declarativeConstructor instantiates a component purely from its
// configuration directory.
func declarativeConstructor(cfg *Config, bctx *BuildContext) (*Component, error) {
	modules, err := listModules(cfg.Directory)
	if err != nil {
		return nil, err
	}
	log := bctx.Logger
	if log == nil {
		log = logger.NewLogger(logger.DefaultConfig())
	}
	log = log.With("component", cfg.ComponentId().String())
	return newComponent(cfg, modules, log), nil
}

// scriptExtensions are the source unit suffixes a package may contain.
var scriptExtensions = map[string]struct{}{
	".js": {}, ".mjs": {}, ".cjs": {}, ".ts": {},
}

// listModules walks the package directory collecting its script units as
// slash-separated relative paths.
func listModules(dir string) ([]string, error) {
	modules := make([]string, 0, 8)
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
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		modules = append(modules, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list modules under %s: %w", dir, err)
	}
	return modules, nil
}
