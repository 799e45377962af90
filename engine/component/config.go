// Package component defines component configurations, runtime instances
// and the consistency-checked loader that turns one into the other.
package component

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/agentforge-io/agentforge/engine/core"
)

// Config is a component configuration as loaded from a package manifest.
// It is a leaf data type: all behavior lives in the graph and the loader.
type Config struct {
	Type        core.ComponentType `yaml:"type"        validate:"required"`
	Author      string             `yaml:"author"      validate:"required"`
	Name        string             `yaml:"name"        validate:"required"`
	Version     string             `yaml:"version"     validate:"required"`
	Description string             `yaml:"description"`
	License     string             `yaml:"license"`
	// ClassName selects a registered constructor; empty means the
	// declarative fallback.
	ClassName string `yaml:"class_name"`
	// Abstract components contribute their namespace but are never
	// instantiated.
	Abstract bool `yaml:"is_abstract"`
	// BuildEntrypoint is an optional script run at build time with the
	// component's build directory as its sole argument.
	BuildEntrypoint string `yaml:"build_entrypoint"`
	// Fingerprint pins the package content hash when present.
	Fingerprint string `yaml:"fingerprint"`

	// Cross-package dependencies, by public id string, grouped by type.
	Protocols   []string `yaml:"protocols"`
	Connections []string `yaml:"connections"`
	Contracts   []string `yaml:"contracts"`
	Skills      []string `yaml:"skills"`

	// Dependencies maps runtime package names to version specifiers.
	Dependencies map[string]string `yaml:"dependencies"`

	// Extra carries component-specific configuration, merged with
	// per-build overrides right before instantiation.
	Extra map[string]any `yaml:"config"`

	// Directory is the source directory the config was loaded from.
	Directory string `yaml:"-"`
	// BuildDirectory is assigned by the builder:
	// <build-root>/<type>/<author>/<name>.
	BuildDirectory string `yaml:"-"`

	packageDependencies []core.ComponentId
}

var configValidator = validator.New()

// ManifestName returns the manifest file name for a component type,
// e.g. "protocol.yaml".
func ManifestName(t core.ComponentType) string {
	return string(t) + ".yaml"
}

// Load reads and validates the manifest of the given type from dir.
func Load(t core.ComponentType, dir string) (*Config, error) {
	if !t.Valid() {
		return nil, core.NewError(
			fmt.Errorf("unknown component type %q", t),
			core.CodeConfigurationInvalid,
			nil,
		)
	}
	manifestPath := filepath.Join(dir, ManifestName(t))
	f, err := os.Open(manifestPath)
	if err != nil {
		return nil, core.NewError(
			fmt.Errorf("failed to open manifest: %w", err),
			core.CodeConfigurationInvalid,
			map[string]any{"path": manifestPath},
		)
	}
	defer f.Close()
	cfg := &Config{}
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return nil, core.NewError(
			fmt.Errorf("failed to decode manifest: %w", err),
			core.CodeConfigurationInvalid,
			map[string]any{"path": manifestPath},
		)
	}
	cfg.Directory = dir
	if cfg.Type == "" {
		cfg.Type = t
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Type != t {
		return nil, core.NewError(
			fmt.Errorf("manifest declares type %q, expected %q", cfg.Type, t),
			core.CodeConfigurationInvalid,
			map[string]any{"path": manifestPath},
		)
	}
	return cfg, nil
}

// Validate checks identity fields, dependency ids and requirement
// specifiers, and caches the parsed package dependencies.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return core.NewError(
			fmt.Errorf("invalid component manifest: %w", err),
			core.CodeConfigurationInvalid,
			nil,
		)
	}
	if _, err := core.NewPublicId(c.Author, c.Name, c.Version); err != nil {
		return err
	}
	deps, err := c.parseDependencies()
	if err != nil {
		return err
	}
	c.packageDependencies = deps
	return nil
}

// PublicId returns the component's identity, including any fingerprint.
func (c *Config) PublicId() core.PublicId {
	return core.PublicId{Author: c.Author, Name: c.Name, Version: c.Version, Hash: c.Fingerprint}
}

// ComponentId returns the graph key for this configuration. The hash is
// dropped so dependency matching ignores fingerprints.
func (c *Config) ComponentId() core.ComponentId {
	return core.NewComponentId(c.Type, c.PublicId().WithoutHash())
}

// Prefix returns (type, author, name).
func (c *Config) Prefix() core.Prefix {
	return c.ComponentId().Prefix()
}

// PackageDependencies returns the typed set of declared dependencies.
// A config built in code rather than loaded parses them on demand; a
// malformed dependency id is an error, never an empty set.
func (c *Config) PackageDependencies() ([]core.ComponentId, error) {
	if c.packageDependencies == nil {
		deps, err := c.parseDependencies()
		if err != nil {
			return nil, err
		}
		c.packageDependencies = deps
	}
	return c.packageDependencies, nil
}

// IntraTypeDependencies returns the declared dependencies of the
// component's own type; only skills, connections and contracts have them.
func (c *Config) IntraTypeDependencies() ([]core.PublicId, error) {
	deps, err := c.PackageDependencies()
	if err != nil {
		return nil, err
	}
	var out []core.PublicId
	for _, dep := range deps {
		if dep.Type == c.Type {
			out = append(out, dep.Public)
		}
	}
	return out, nil
}

func (c *Config) parseDependencies() ([]core.ComponentId, error) {
	groups := []struct {
		t   core.ComponentType
		ids []string
	}{
		{core.ComponentProtocol, c.Protocols},
		{core.ComponentConnection, c.Connections},
		{core.ComponentContract, c.Contracts},
		{core.ComponentSkill, c.Skills},
	}
	deps := make([]core.ComponentId, 0)
	seen := make(map[core.ComponentId]struct{})
	for _, group := range groups {
		for _, raw := range group.ids {
			public, err := core.ParsePublicId(raw)
			if err != nil {
				return nil, core.NewError(
					fmt.Errorf("invalid %s dependency %q: %w", group.t, raw, err),
					core.CodeConfigurationInvalid,
					map[string]any{"component": fmt.Sprintf("%s/%s", c.Author, c.Name)},
				)
			}
			id := core.NewComponentId(group.t, public.WithoutHash())
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			deps = append(deps, id)
		}
	}
	return deps, nil
}

// VerifyFingerprint recomputes the directory fingerprint and compares it
// against the manifest's pinned value, when one is present.
func (c *Config) VerifyFingerprint() error {
	if c.Fingerprint == "" || c.Directory == "" {
		return nil
	}
	actual, err := core.FingerprintDirectory(c.Directory)
	if err != nil {
		return core.NewError(err, core.CodeConfigurationInvalid, map[string]any{
			"component": c.ComponentId().String(),
		})
	}
	if actual != c.Fingerprint {
		return core.NewError(
			errors.New("package contents do not match the pinned fingerprint"),
			core.CodeConfigurationInvalid,
			map[string]any{
				"component": c.ComponentId().String(),
				"expected":  c.Fingerprint,
				"actual":    actual,
			},
		)
	}
	return nil
}
