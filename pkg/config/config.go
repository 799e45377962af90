// Package config provides type-safe application settings loaded from
// defaults and environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for all environment overrides, e.g.
// AGENTFORGE_BUILD__SCRIPT_TIMEOUT.
const EnvPrefix = "AGENTFORGE_"

// Config is the complete application configuration.
type Config struct {
	Log     LogConfig     `koanf:"log"`
	Build   BuildConfig   `koanf:"build"   validate:"required"`
	Install InstallConfig `koanf:"install" validate:"required"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `koanf:"json"`
}

// BuildConfig controls build entrypoint execution.
type BuildConfig struct {
	// Interpreter runs build entrypoint scripts; "node" or "bun".
	Interpreter string `koanf:"interpreter" validate:"required"`
	// ScriptTimeout is the hard wall-clock limit per entrypoint.
	ScriptTimeout time.Duration `koanf:"script_timeout" validate:"required"`
}

// InstallConfig controls runtime dependency installation.
type InstallConfig struct {
	// Command is the package-manager executable used for installs.
	Command string `koanf:"command" validate:"required"`
	// Parallelism bounds concurrent installs; installs are independent.
	Parallelism int `koanf:"parallelism" validate:"min=1"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Build: BuildConfig{
			Interpreter:   "node",
			ScriptTimeout: 60 * time.Second,
		},
		Install: InstallConfig{
			Command:     "npm",
			Parallelism: 4,
		},
	}
}

// Load assembles the configuration from defaults and the environment, then
// validates it.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}
	// Double underscore separates nesting levels so field names may keep
	// single underscores: AGENTFORGE_BUILD__SCRIPT_TIMEOUT -> build.script_timeout.
	envProvider := env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
			return strings.ReplaceAll(key, "__", "."), value
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment config: %w", err)
	}
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
