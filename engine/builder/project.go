package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/agentforge-io/agentforge/engine/agent"
	"github.com/agentforge-io/agentforge/engine/component"
	"github.com/agentforge-io/agentforge/engine/core"
	"github.com/agentforge-io/agentforge/engine/loadorder"
)

// ProjectFileName is the agent manifest at a project root.
const ProjectFileName = "agent.yaml"

// Project is the on-disk agent manifest.
type Project struct {
	Name        string `yaml:"name"    validate:"required"`
	Author      string `yaml:"author"  validate:"required"`
	Version     string `yaml:"version" validate:"required"`
	Description string `yaml:"description"`
	License     string `yaml:"license"`

	DefaultLedger   string   `yaml:"default_ledger"`
	RequiredLedgers []string `yaml:"required_ledgers"`
	// PrivateKeyPaths maps ledger ids to key files, relative to the
	// project directory unless absolute.
	PrivateKeyPaths           map[string]string `yaml:"private_key_paths"`
	ConnectionPrivateKeyPaths map[string]string `yaml:"connection_private_key_paths"`

	DefaultConnection string `yaml:"default_connection"`
	// DefaultRouting maps protocol public ids to connection public ids.
	DefaultRouting map[string]string `yaml:"default_routing"`

	Protocols   []string `yaml:"protocols"`
	Connections []string `yaml:"connections"`
	Contracts   []string `yaml:"contracts"`
	Skills      []string `yaml:"skills"`

	Dependencies map[string]string `yaml:"dependencies"`

	// PeriodSeconds and TimeoutSeconds mirror the manifest's float
	// second fields.
	PeriodSeconds             float64 `yaml:"period"`
	TimeoutSeconds            float64 `yaml:"execution_timeout"`
	MaxReactions              int     `yaml:"max_reactions"`
	LoopMode                  string  `yaml:"loop_mode"`
	RuntimeMode               string  `yaml:"runtime_mode"`
	TaskManagerMode           string  `yaml:"task_manager_mode"`
	SkillExceptionPolicy      string  `yaml:"skill_exception_policy"`
	ConnectionExceptionPolicy string  `yaml:"connection_exception_policy"`
	StorageURI                string  `yaml:"storage_uri"`

	DecisionMaker string `yaml:"decision_maker"`
	ErrorHandler  string `yaml:"error_handler"`

	CurrencyDenominations map[string]string `yaml:"currency_denominations"`

	BuildEntrypoint string `yaml:"build_entrypoint"`
}

// LoadProject reads and validates the agent manifest at dir.
func LoadProject(dir string) (*Project, error) {
	path := filepath.Join(dir, ProjectFileName)
	f, err := os.Open(path)
	if err != nil {
		return nil, core.NewError(
			fmt.Errorf("failed to open project manifest: %w", err),
			core.CodeConfigurationInvalid,
			map[string]any{"path": path},
		)
	}
	defer f.Close()
	project := &Project{}
	if err := yaml.NewDecoder(f).Decode(project); err != nil {
		return nil, core.NewError(
			fmt.Errorf("failed to decode project manifest: %w", err),
			core.CodeConfigurationInvalid,
			map[string]any{"path": path},
		)
	}
	if err := validator.New().Struct(project); err != nil {
		return nil, core.NewError(
			fmt.Errorf("invalid project manifest: %w", err),
			core.CodeConfigurationInvalid,
			map[string]any{"path": path},
		)
	}
	if _, err := core.NewPublicId(project.Author, project.Name, project.Version); err != nil {
		return nil, err
	}
	return project, nil
}

// DirectoryResolver locates a component's source directory within a
// project.
type DirectoryResolver interface {
	Resolve(t core.ComponentType, id core.PublicId) (string, error)
}

// vendorResolver looks up vendor/<author>/<type-plural>/<name> first,
// then the project's own <type-plural>/<name>.
type vendorResolver struct {
	root string
}

// NewDirectoryResolver returns the standard vendor-first resolver for a
// project root.
func NewDirectoryResolver(root string) DirectoryResolver {
	return &vendorResolver{root: root}
}

func (r *vendorResolver) Resolve(t core.ComponentType, id core.PublicId) (string, error) {
	candidates := []string{
		filepath.Join(r.root, "vendor", id.Author, t.Plural(), id.Name),
		filepath.Join(r.root, t.Plural(), id.Name),
	}
	for _, dir := range candidates {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, nil
		}
	}
	return "", core.NewError(
		fmt.Errorf("cannot find directory of %s %s in project %s", t, id, r.root),
		core.CodeNotFound,
		map[string]any{"type": string(t), "component": id.String()},
	)
}

// NewFromProject creates a builder populated from an on-disk project:
// the manifest's settings are applied, every declared component's
// directory is resolved vendor-first, and components are registered in
// topological order so the graph's pre-registration invariant holds
// regardless of manifest order.
func NewFromProject(dir string, opts ...Option) (*Builder, error) {
	project, err := LoadProject(dir)
	if err != nil {
		return nil, err
	}
	b, err := New(opts...)
	if err != nil {
		return nil, err
	}
	b.SetName(project.Name)
	b.SetProjectDir(dir)
	if project.DefaultLedger != "" {
		b.SetDefaultLedger(project.DefaultLedger)
	}
	if len(project.RequiredLedgers) > 0 {
		b.SetRequiredLedgers(project.RequiredLedgers)
	}
	for ledger, path := range project.PrivateKeyPaths {
		b.AddPrivateKey(ledger, path, false)
	}
	for ledger, path := range project.ConnectionPrivateKeyPaths {
		b.AddPrivateKey(ledger, path, true)
	}
	if project.PeriodSeconds > 0 {
		b.SetPeriod(time.Duration(project.PeriodSeconds * float64(time.Second)))
	}
	if project.TimeoutSeconds > 0 {
		b.SetExecutionTimeout(time.Duration(project.TimeoutSeconds * float64(time.Second)))
	}
	if project.MaxReactions > 0 {
		b.SetMaxReactions(project.MaxReactions)
	}
	if project.LoopMode != "" {
		mode := agent.LoopMode(project.LoopMode)
		if !mode.Valid() {
			return nil, core.NewError(
				fmt.Errorf("unknown loop mode %q", project.LoopMode),
				core.CodeConfigurationInvalid,
				nil,
			)
		}
		b.SetLoopMode(mode)
	}
	if project.RuntimeMode != "" {
		mode := agent.RuntimeMode(project.RuntimeMode)
		if !mode.Valid() {
			return nil, core.NewError(
				fmt.Errorf("unknown runtime mode %q", project.RuntimeMode),
				core.CodeConfigurationInvalid,
				nil,
			)
		}
		b.SetRuntimeMode(mode)
	}
	if project.TaskManagerMode != "" {
		mode := agent.TaskManagerMode(project.TaskManagerMode)
		if !mode.Valid() {
			return nil, core.NewError(
				fmt.Errorf("unknown task manager mode %q", project.TaskManagerMode),
				core.CodeConfigurationInvalid,
				nil,
			)
		}
		b.SetTaskManagerMode(mode)
	}
	if project.SkillExceptionPolicy != "" {
		b.SetSkillExceptionPolicy(agent.ExceptionPolicy(project.SkillExceptionPolicy))
	}
	if project.ConnectionExceptionPolicy != "" {
		b.SetConnectionExceptionPolicy(agent.ExceptionPolicy(project.ConnectionExceptionPolicy))
	}
	if project.StorageURI != "" {
		b.SetStorageURI(project.StorageURI)
	}
	b.SetDecisionMaker(project.DecisionMaker)
	b.SetErrorHandler(project.ErrorHandler)
	for ledger, denom := range project.CurrencyDenominations {
		b.SetCurrencyDenomination(ledger, denom)
	}
	for name, spec := range project.Dependencies {
		b.AddAgentDependency(name, spec)
	}
	b.SetProjectEntrypoint(project.BuildEntrypoint)

	if err := b.addProjectComponents(project, dir); err != nil {
		return nil, err
	}

	if project.DefaultConnection != "" {
		id, err := core.ParsePublicId(project.DefaultConnection)
		if err != nil {
			return nil, err
		}
		b.SetDefaultConnection(id)
	}
	if len(project.DefaultRouting) > 0 {
		routing := make(map[core.PublicId]core.PublicId, len(project.DefaultRouting))
		for protocolRaw, connectionRaw := range project.DefaultRouting {
			protocolID, err := core.ParsePublicId(protocolRaw)
			if err != nil {
				return nil, err
			}
			connectionID, err := core.ParsePublicId(connectionRaw)
			if err != nil {
				return nil, err
			}
			routing[protocolID] = connectionID
		}
		if err := b.SetDefaultRouting(routing); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// addProjectComponents resolves, loads and registers every declared
// component, dependencies first.
func (b *Builder) addProjectComponents(project *Project, dir string) error {
	resolver := NewDirectoryResolver(dir)
	groups := []struct {
		t   core.ComponentType
		ids []string
	}{
		{core.ComponentProtocol, project.Protocols},
		{core.ComponentContract, project.Contracts},
		{core.ComponentConnection, project.Connections},
		{core.ComponentSkill, project.Skills},
	}
	var configs []*component.Config
	for _, group := range groups {
		for _, raw := range group.ids {
			id, err := core.ParsePublicId(raw)
			if err != nil {
				return err
			}
			componentDir, err := resolver.Resolve(group.t, id.WithoutHash())
			if err != nil {
				return err
			}
			cfg, err := component.Load(group.t, componentDir)
			if err != nil {
				return err
			}
			if cfg.PublicId().WithoutHash() != id.WithoutHash() {
				return core.NewError(
					fmt.Errorf("directory %s holds %s, project declares %s", componentDir, cfg.PublicId(), id),
					core.CodeConfigurationInvalid,
					map[string]any{"path": componentDir},
				)
			}
			configs = append(configs, cfg)
		}
	}
	ordered, err := loadorder.OrderAll(configs)
	if err != nil {
		return err
	}
	for _, cfg := range ordered {
		if err := b.AddComponent(cfg.Type, cfg.Directory); err != nil {
			return err
		}
	}
	return nil
}
