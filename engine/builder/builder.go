// Package builder implements the assembly façade: a fluent, resettable
// session that accumulates components and agent-level settings, then
// produces fully wired agents.
package builder

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/agentforge-io/agentforge/engine/agent"
	"github.com/agentforge-io/agentforge/engine/component"
	"github.com/agentforge-io/agentforge/engine/core"
	"github.com/agentforge-io/agentforge/engine/depgraph"
	"github.com/agentforge-io/agentforge/engine/requirements"
	"github.com/agentforge-io/agentforge/engine/wallet"
	"github.com/agentforge-io/agentforge/pkg/config"
	"github.com/agentforge-io/agentforge/pkg/logger"
)

// Builder accumulates components and settings for one agent and builds
// it. A builder is single-threaded: one goroutine drives the whole
// lifecycle, and independent builds use independent builders.
type Builder struct {
	appConfig *config.Config
	log       logger.Logger

	graph        *depgraph.Graph
	constructors *component.ConstructorRegistry
	// defaults are re-seeded into a fresh graph on a full reset.
	defaults []*component.Config

	name                  string
	projectDir            string
	dataDir               string
	defaultLedger         string
	requiredLedgers       []string
	keyPaths              map[string]string
	connectionKeyPaths    map[string]string
	keyLiterals           map[string]string
	connectionKeyLiterals map[string]string

	defaultConnection *core.PublicId
	defaultRouting    map[core.PublicId]core.PublicId
	currencyDenoms    map[string]string

	settings          agent.Settings
	decisionMakerName string
	errorHandlerName  string
	extraContext      map[string]any
	agentDependencies map[string]string

	// overrides are merged into a deep copy of the component's config at
	// build time; the registered config is never mutated.
	overrides map[core.ComponentId]map[string]any
	// injected holds manually supplied instances, reused instead of
	// loading from disk.
	injected map[core.ComponentId]*component.Component

	projectEntrypoint string

	built         bool
	unsafeToReuse bool
}

// Option configures a new builder.
type Option func(*Builder)

// WithAppConfig supplies the application configuration; Default() is
// used otherwise.
func WithAppConfig(cfg *config.Config) Option {
	return func(b *Builder) { b.appConfig = cfg }
}

// WithLogger supplies the builder's logger.
func WithLogger(log logger.Logger) Option {
	return func(b *Builder) { b.log = log }
}

// WithConstructors supplies a constructor registry shared across builds.
func WithConstructors(r *component.ConstructorRegistry) Option {
	return func(b *Builder) { b.constructors = r }
}

// WithDefaultPackages bakes default components into the builder. They
// seed the graph now and again after every full reset.
func WithDefaultPackages(configs ...*component.Config) Option {
	return func(b *Builder) { b.defaults = configs }
}

// New returns an empty builder session.
func New(opts ...Option) (*Builder, error) {
	b := &Builder{
		appConfig:    config.Default(),
		graph:        depgraph.New(),
		constructors: component.NewConstructorRegistry(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logger.NewLogger(logger.DefaultConfig())
	}
	b.resetState(true)
	for _, cfg := range b.defaults {
		if err := b.graph.Add(cfg); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// resetState clears session state; full additionally clears every
// agent-level setting.
func (b *Builder) resetState(full bool) {
	b.name = ""
	b.keyPaths = make(map[string]string)
	b.connectionKeyPaths = make(map[string]string)
	b.keyLiterals = make(map[string]string)
	b.connectionKeyLiterals = make(map[string]string)
	b.injected = make(map[core.ComponentId]*component.Component)
	b.built = false
	b.unsafeToReuse = false
	if !full {
		return
	}
	b.projectDir = ""
	b.dataDir = ""
	b.defaultLedger = wallet.DefaultLedger
	b.requiredLedgers = []string{wallet.DefaultLedger}
	b.defaultConnection = nil
	b.defaultRouting = make(map[core.PublicId]core.PublicId)
	b.currencyDenoms = make(map[string]string)
	b.settings = agent.DefaultSettings()
	b.decisionMakerName = ""
	b.errorHandlerName = ""
	b.extraContext = make(map[string]any)
	b.agentDependencies = make(map[string]string)
	b.overrides = make(map[core.ComponentId]map[string]any)
	b.projectEntrypoint = ""
}

// SetName sets the agent name.
func (b *Builder) SetName(name string) *Builder {
	b.name = name
	return b
}

// SetProjectDir roots the build output and relative key paths.
func (b *Builder) SetProjectDir(dir string) *Builder {
	b.projectDir = dir
	return b
}

// SetDataDir sets the directory relative private key paths resolve
// against; it falls back to the project directory.
func (b *Builder) SetDataDir(dir string) *Builder {
	b.dataDir = dir
	return b
}

// SetDefaultLedger sets the ledger the identity defaults to.
func (b *Builder) SetDefaultLedger(ledger string) *Builder {
	b.defaultLedger = ledger
	return b
}

// SetRequiredLedgers sets the ledgers the agent must hold keys for.
func (b *Builder) SetRequiredLedgers(ledgers []string) *Builder {
	b.requiredLedgers = append([]string(nil), ledgers...)
	return b
}

// AddPrivateKey registers a private key file for a ledger. When
// connection is true the key belongs to the connection store, which
// never signs on behalf of the agent's identity.
func (b *Builder) AddPrivateKey(ledger, path string, connection bool) *Builder {
	if connection {
		b.connectionKeyPaths[ledger] = path
	} else {
		b.keyPaths[ledger] = path
	}
	return b
}

// AddPrivateKeyLiteral registers an in-memory private key for a ledger.
// A session holding a literal key must be reset before a second build.
func (b *Builder) AddPrivateKeyLiteral(ledger, key string, connection bool) *Builder {
	if connection {
		b.connectionKeyLiterals[ledger] = key
	} else {
		b.keyLiterals[ledger] = key
	}
	b.unsafeToReuse = true
	return b
}

// SetPeriod sets the main loop tick interval.
func (b *Builder) SetPeriod(period time.Duration) *Builder {
	b.settings.Period = period
	return b
}

// SetExecutionTimeout bounds a single handler invocation.
func (b *Builder) SetExecutionTimeout(timeout time.Duration) *Builder {
	b.settings.ExecutionTimeout = timeout
	return b
}

// SetMaxReactions caps envelopes processed per tick.
func (b *Builder) SetMaxReactions(n int) *Builder {
	b.settings.MaxReactions = n
	return b
}

// SetLoopMode selects the main loop implementation.
func (b *Builder) SetLoopMode(mode agent.LoopMode) *Builder {
	b.settings.LoopMode = mode
	return b
}

// SetRuntimeMode selects how the agent runtime schedules its loops.
func (b *Builder) SetRuntimeMode(mode agent.RuntimeMode) *Builder {
	b.settings.RuntimeMode = mode
	return b
}

// SetTaskManagerMode selects where background tasks execute.
func (b *Builder) SetTaskManagerMode(mode agent.TaskManagerMode) *Builder {
	b.settings.TaskManagerMode = mode
	return b
}

// SetSkillExceptionPolicy decides what a skill error does to the loop.
func (b *Builder) SetSkillExceptionPolicy(policy agent.ExceptionPolicy) *Builder {
	b.settings.SkillExceptionPolicy = policy
	return b
}

// SetConnectionExceptionPolicy decides what a connection error does to
// the loop.
func (b *Builder) SetConnectionExceptionPolicy(policy agent.ExceptionPolicy) *Builder {
	b.settings.ConnectionExceptionPolicy = policy
	return b
}

// SetStorageURI points the agent's generic storage at a backend.
func (b *Builder) SetStorageURI(uri string) *Builder {
	b.settings.StorageURI = uri
	return b
}

// SetDecisionMaker selects a registered decision maker by name.
func (b *Builder) SetDecisionMaker(name string) *Builder {
	b.decisionMakerName = name
	return b
}

// SetErrorHandler selects a registered error handler by name.
func (b *Builder) SetErrorHandler(name string) *Builder {
	b.errorHandlerName = name
	return b
}

// SetCurrencyDenomination records the display denomination for a ledger.
func (b *Builder) SetCurrencyDenomination(ledger, denom string) *Builder {
	b.currencyDenoms[ledger] = denom
	return b
}

// SetContextValue stores an arbitrary value handed to skills through the
// agent context.
func (b *Builder) SetContextValue(key string, value any) *Builder {
	b.extraContext[key] = value
	return b
}

// SetProjectEntrypoint declares the project-level build script, run into
// the build root after all component entrypoints.
func (b *Builder) SetProjectEntrypoint(script string) *Builder {
	b.projectEntrypoint = script
	return b
}

// AddAgentDependency records an agent-level runtime requirement.
func (b *Builder) AddAgentDependency(name, specifier string) *Builder {
	b.agentDependencies[name] = specifier
	return b
}

// SetDefaultConnection selects the connection routed first. It must be a
// declared dependency by build time.
func (b *Builder) SetDefaultConnection(id core.PublicId) *Builder {
	withoutHash := id.WithoutHash()
	b.defaultConnection = &withoutHash
	return b
}

// SetDefaultRouting maps protocols to the connections that carry them.
// Both sides must already be declared in the graph.
func (b *Builder) SetDefaultRouting(routing map[core.PublicId]core.PublicId) error {
	for protocolID, connectionID := range routing {
		if !b.graph.Has(core.NewComponentId(core.ComponentProtocol, protocolID)) {
			return core.NewError(
				fmt.Errorf("default routing names undeclared protocol %s", protocolID),
				core.CodeMissingDependency,
				map[string]any{"protocol": protocolID.String()},
			)
		}
		if !b.graph.Has(core.NewComponentId(core.ComponentConnection, connectionID)) {
			return core.NewError(
				fmt.Errorf("default routing names undeclared connection %s", connectionID),
				core.CodeMissingDependency,
				map[string]any{"connection": connectionID.String()},
			)
		}
	}
	b.defaultRouting = make(map[core.PublicId]core.PublicId, len(routing))
	for protocolID, connectionID := range routing {
		b.defaultRouting[protocolID.WithoutHash()] = connectionID.WithoutHash()
	}
	return nil
}

// SetComponentOverride stores a per-build configuration override for a
// component. It is merged into a deep copy at build time.
func (b *Builder) SetComponentOverride(id core.ComponentId, override map[string]any) *Builder {
	b.overrides[id.WithoutHash()] = override
	return b
}

// AddComponent loads the manifest of the given type from dir, verifies
// its fingerprint, assigns its build directory and registers it in the
// graph. Dependencies must have been added before it.
func (b *Builder) AddComponent(t core.ComponentType, dir string) error {
	cfg, err := component.Load(t, dir)
	if err != nil {
		return err
	}
	if err := cfg.VerifyFingerprint(); err != nil {
		return err
	}
	cfg.BuildDirectory = filepath.Join(
		core.GetBuildRoot(b.projectDir), string(cfg.Type), cfg.Author, cfg.Name,
	)
	if err := b.graph.Add(cfg); err != nil {
		return err
	}
	b.log.Debug("added component", "component", cfg.ComponentId().String(), "dir", dir)
	return nil
}

// AddComponentInstance registers an already built instance. Its
// configuration passes the same graph validation, and the session
// becomes unsafe to reuse: instances cannot be handed to two builds.
func (b *Builder) AddComponentInstance(c *component.Component) error {
	cfg := c.Configuration()
	if err := b.graph.Add(cfg); err != nil {
		return err
	}
	b.injected[cfg.ComponentId()] = c
	b.unsafeToReuse = true
	return nil
}

// RemoveComponent deletes a component from the session. It fails while
// other components depend on it.
func (b *Builder) RemoveComponent(id core.ComponentId) error {
	if err := b.graph.Remove(id); err != nil {
		return err
	}
	delete(b.injected, id.WithoutHash())
	return nil
}

// Graph exposes the dependency graph for inspection.
func (b *Builder) Graph() *depgraph.Graph {
	return b.graph
}

// MergedRequirements returns the runtime requirements of every
// registered component intersected with the agent-level ones.
func (b *Builder) MergedRequirements() (requirements.Requirements, error) {
	merged, err := b.graph.MergedRequirements()
	if err != nil {
		return nil, err
	}
	agentReqs, err := requirements.Parse(b.agentDependencies)
	if err != nil {
		return nil, err
	}
	checker := requirements.NewChecker()
	if err := checker.Add(merged); err != nil {
		return nil, err
	}
	if err := checker.Add(agentReqs); err != nil {
		return nil, err
	}
	return checker.Merged(), nil
}

// Reset clears the session. A partial reset drops the name, private
// keys and injected instances, making the builder safe to reuse; a full
// reset additionally clears every setting and reinitializes the graph
// with the builder's default packages.
func (b *Builder) Reset(full bool) error {
	if err := b.removeInjected(); err != nil {
		return err
	}
	if full {
		b.graph = depgraph.New()
		for _, cfg := range b.defaults {
			if err := b.graph.Add(cfg); err != nil {
				return err
			}
		}
	}
	b.resetState(full)
	return nil
}

// removeInjected removes every injected instance from the graph,
// retrying so interdependent instances come out dependents-first.
func (b *Builder) removeInjected() error {
	remaining := make([]core.ComponentId, 0, len(b.injected))
	for id := range b.injected {
		remaining = append(remaining, id)
	}
	for len(remaining) > 0 {
		progressed := false
		next := remaining[:0]
		var lastErr error
		for _, id := range remaining {
			if err := b.graph.Remove(id); err != nil {
				if core.IsCode(err, core.CodeDependentsExist) {
					next = append(next, id)
					lastErr = err
					continue
				}
				return err
			}
			progressed = true
		}
		if !progressed {
			return lastErr
		}
		remaining = next
	}
	return nil
}

// dataDirectory resolves the directory private key paths and storage
// resolve against.
func (b *Builder) dataDirectory() string {
	if b.dataDir != "" {
		return b.dataDir
	}
	if b.projectDir != "" {
		return b.projectDir
	}
	return "."
}
