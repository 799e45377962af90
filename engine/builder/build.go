package builder

import (
	"context"
	"fmt"
	"maps"

	"dario.cat/mergo"

	"github.com/agentforge-io/agentforge/engine/agent"
	"github.com/agentforge-io/agentforge/engine/buildscript"
	"github.com/agentforge-io/agentforge/engine/component"
	"github.com/agentforge-io/agentforge/engine/core"
	"github.com/agentforge-io/agentforge/engine/loadorder"
	"github.com/agentforge-io/agentforge/engine/registry"
	"github.com/agentforge-io/agentforge/engine/requirements"
	"github.com/agentforge-io/agentforge/engine/wallet"
)

// Build assembles the agent. selectedConnections restricts which
// declared connections become active; nil activates all of them.
// password decrypts encrypted private key files; plaintext keys ignore
// it. Two builds of a directory-only session share no component or
// configuration objects; a session that received injected instances or
// literal private keys must be reset before a second build.
func (b *Builder) Build(selectedConnections []core.PublicId, password string) (*agent.Agent, error) {
	if b.built && b.unsafeToReuse {
		return nil, core.NewError(
			fmt.Errorf("cannot build the agent: this session holds manually injected state and was already built once; call Reset first"),
			core.CodeReentrantBuild,
			nil,
		)
	}
	if !containsString(b.requiredLedgers, b.defaultLedger) {
		return nil, core.NewError(
			fmt.Errorf("default ledger %q is not in the required ledgers %v", b.defaultLedger, b.requiredLedgers),
			core.CodeConfigurationInvalid,
			map[string]any{"default_ledger": b.defaultLedger},
		)
	}

	dataDir := b.dataDirectory()
	w, err := wallet.New(
		wallet.Keys{Paths: b.keyPaths, Literals: b.keyLiterals},
		wallet.Keys{Paths: b.connectionKeyPaths, Literals: b.connectionKeyLiterals},
		dataDir,
		password,
	)
	if err != nil {
		return nil, err
	}
	identity, err := wallet.NewIdentity(b.name, w, b.defaultLedger)
	if err != nil {
		return nil, err
	}

	resources := registry.New()
	loader := component.NewLoader(b.constructors, b.log)

	// Protocols and contracts first, then connections: each later stage
	// may reference namespaces registered by an earlier one.
	baseCtx := &component.BuildContext{AgentName: b.name, Logger: b.log}
	if err := b.loadType(loader, resources, core.ComponentProtocol, baseCtx); err != nil {
		return nil, err
	}
	if err := b.loadType(loader, resources, core.ComponentContract, baseCtx); err != nil {
		return nil, err
	}
	connectionCtx := &component.BuildContext{
		AgentName:   b.name,
		Identity:    identity,
		CryptoStore: w.Connections,
		Logger:      b.log,
	}
	if err := b.loadType(loader, resources, core.ComponentConnection, connectionCtx); err != nil {
		return nil, err
	}

	activeConnections, err := b.selectConnections(resources, selectedConnections)
	if err != nil {
		return nil, err
	}

	dmCtor, err := agent.ResolveDecisionMaker(b.decisionMakerName)
	if err != nil {
		return nil, err
	}
	dm, err := dmCtor(identity, w, b.log)
	if err != nil {
		return nil, err
	}
	ehCtor, err := agent.ResolveErrorHandler(b.errorHandlerName)
	if err != nil {
		return nil, err
	}
	eh, err := ehCtor(b.log)
	if err != nil {
		return nil, err
	}

	actx, err := b.agentContext(dataDir)
	if err != nil {
		return nil, err
	}
	a := agent.New(identity, w, resources, activeConnections, b.settings, actx, dm, eh, b.log)

	// Skills load last: their context carries the assembled agent.
	skillCtx := &component.BuildContext{
		AgentName:    b.name,
		AgentContext: a,
		Logger:       b.log,
	}
	if err := b.loadType(loader, resources, core.ComponentSkill, skillCtx); err != nil {
		return nil, err
	}

	b.built = true
	b.log.Info("agent assembled",
		"agent", b.name,
		"components", resources.Len(),
		"connections", len(activeConnections),
	)
	return a, nil
}

// loadType instantiates every registered component of one type in
// topological order. Injected instances are reused with a refreshed
// logger; everything else loads from a deep copy of its configuration
// with any per-build override merged in.
func (b *Builder) loadType(
	loader *component.Loader,
	resources *registry.Resources,
	t core.ComponentType,
	bctx *component.BuildContext,
) error {
	configs := b.graph.OfType(t)
	if t != core.ComponentProtocol {
		ordered, err := loadorder.Order(t, configs)
		if err != nil {
			return err
		}
		configs = ordered
	}
	for _, cfg := range configs {
		id := cfg.ComponentId()
		if instance, ok := b.injected[id]; ok {
			if t != core.ComponentSkill {
				// Skill loggers live on the skill context and are wired
				// when the context is, not here.
				instance.RefreshLogger(b.log)
			}
			if err := loader.Namespaces().Register(cfg); err != nil {
				return err
			}
			if err := resources.Register(instance); err != nil {
				return err
			}
			continue
		}
		buildCfg, err := b.buildConfig(cfg)
		if err != nil {
			return err
		}
		instance, err := loader.Load(buildCfg, bctx)
		if err != nil {
			return err
		}
		if instance == nil {
			continue // abstract
		}
		if err := resources.Register(instance); err != nil {
			return err
		}
	}
	return nil
}

// agentContext copies the collected agent-level state into the context
// handed to the agent and its skills. Copies keep two builds disjoint:
// mutating the builder afterwards never reaches a built agent.
func (b *Builder) agentContext(dataDir string) (agent.Context, error) {
	extra, err := core.DeepCopyMap(b.extraContext)
	if err != nil {
		return agent.Context{}, err
	}
	return agent.Context{
		DataDir:               dataDir,
		ExtraContext:          extra,
		CurrencyDenominations: maps.Clone(b.currencyDenoms),
		DefaultRouting:        maps.Clone(b.defaultRouting),
	}, nil
}

// buildConfig deep-copies a registered configuration and merges its
// per-build override. The registered config is never mutated.
func (b *Builder) buildConfig(cfg *component.Config) (*component.Config, error) {
	copied, err := core.DeepCopy(cfg)
	if err != nil {
		return nil, core.NewError(
			fmt.Errorf("failed to copy configuration of %s: %w", cfg.ComponentId(), err),
			core.CodeConfigurationInvalid,
			nil,
		)
	}
	override, ok := b.overrides[cfg.ComponentId()]
	if !ok {
		return copied, nil
	}
	overrideCopy, err := core.DeepCopyMap(override)
	if err != nil {
		return nil, err
	}
	if copied.Extra == nil {
		copied.Extra = make(map[string]any, len(overrideCopy))
	}
	if err := mergo.Merge(&copied.Extra, overrideCopy, mergo.WithOverride); err != nil {
		return nil, core.NewError(
			fmt.Errorf("failed to apply override for %s: %w", cfg.ComponentId(), err),
			core.CodeConfigurationInvalid,
			map[string]any{"component": cfg.ComponentId().String()},
		)
	}
	return copied, nil
}

// selectConnections resolves the active connection list. Every selected
// id must be declared; duplicates collapse keeping first position; the
// default connection always routes first.
func (b *Builder) selectConnections(
	resources *registry.Resources,
	selected []core.PublicId,
) ([]*component.Component, error) {
	declared := resources.OfType(core.ComponentConnection)
	if b.defaultConnection != nil {
		found := false
		for _, c := range declared {
			if c.PublicId() == *b.defaultConnection {
				found = true
				break
			}
		}
		if !found {
			return nil, core.NewError(
				fmt.Errorf("default connection %s not a dependency, please add it and retry", b.defaultConnection),
				core.CodeMissingDependency,
				map[string]any{"connection": b.defaultConnection.String()},
			)
		}
	}

	var ids []core.PublicId
	if selected == nil {
		for _, c := range declared {
			ids = append(ids, c.PublicId())
		}
	} else {
		for _, id := range selected {
			ids = append(ids, id.WithoutHash())
		}
	}

	ordered := make([]core.PublicId, 0, len(ids))
	seen := make(map[core.PublicId]struct{}, len(ids))
	if b.defaultConnection != nil {
		if containsID(ids, *b.defaultConnection) {
			ordered = append(ordered, *b.defaultConnection)
			seen[*b.defaultConnection] = struct{}{}
		}
	}
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
	}

	out := make([]*component.Component, 0, len(ordered))
	for _, id := range ordered {
		c, ok := resources.Get(core.ComponentConnection, id)
		if !ok {
			return nil, core.NewError(
				fmt.Errorf("selected connection %s is not a declared dependency", id),
				core.CodeMissingDependency,
				map[string]any{"connection": id.String()},
			)
		}
		out = append(out, c)
	}
	return out, nil
}

// BuildArtifacts validates and runs every declared build entrypoint in
// graph insertion order, then the project entrypoint into the build
// root.
func (b *Builder) BuildArtifacts(ctx context.Context) error {
	runner := buildscript.NewRunner(
		b.appConfig.Build.Interpreter,
		b.appConfig.Build.ScriptTimeout,
		b.log,
	)
	return runner.RunAll(ctx, b.graph.All(), b.projectDir, b.projectEntrypoint)
}

// Install installs the merged runtime requirements of the session. A
// failed package never aborts the independent ones; all failures come
// back joined, each naming its package.
func (b *Builder) Install(ctx context.Context) error {
	merged, err := b.MergedRequirements()
	if err != nil {
		return err
	}
	installer := &requirements.Installer{
		Command:     b.appConfig.Install.Command,
		Dir:         b.dataDirectory(),
		Parallelism: b.appConfig.Install.Parallelism,
	}
	return installer.Install(ctx, merged)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func containsID(list []core.PublicId, id core.PublicId) bool {
	for _, item := range list {
		if item == id {
			return true
		}
	}
	return false
}
