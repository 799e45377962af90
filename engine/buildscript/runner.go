// Package buildscript validates and executes build entrypoint scripts:
// per-package hooks that generate artifacts into the project's build
// directory before the agent is assembled.
package buildscript

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dop251/goja/parser"

	"github.com/agentforge-io/agentforge/engine/component"
	"github.com/agentforge-io/agentforge/engine/core"
	"github.com/agentforge-io/agentforge/pkg/logger"
)

// Runner executes build entrypoints under an interpreter with a hard
// per-script timeout. Every script is syntax-checked in process before
// any subprocess is spawned.
type Runner struct {
	// Interpreter is the executable that runs entrypoint scripts,
	// typically "node" or "bun".
	Interpreter string
	// Timeout is the wall-clock limit per script; the child process is
	// killed when it elapses.
	Timeout time.Duration
	Log     logger.Logger
}

// NewRunner returns a runner with the given interpreter and timeout.
func NewRunner(interpreter string, timeout time.Duration, log logger.Logger) *Runner {
	return &Runner{Interpreter: interpreter, Timeout: timeout, Log: log}
}

// Validate checks a build entrypoint without executing anything: the
// path must be declared, resolve to a regular file inside sourceDir, and
// parse as a syntactically valid script.
func (r *Runner) Validate(entrypoint, sourceDir string) error {
	if entrypoint == "" {
		return core.NewError(
			fmt.Errorf("build entrypoint is not declared"),
			core.CodeBuildEntrypoint,
			map[string]any{"source_dir": sourceDir},
		)
	}
	script := filepath.Join(sourceDir, filepath.FromSlash(entrypoint))
	rel, err := filepath.Rel(sourceDir, script)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return core.NewError(
			fmt.Errorf("build entrypoint %q escapes the package directory", entrypoint),
			core.CodeBuildEntrypoint,
			map[string]any{"source_dir": sourceDir},
		)
	}
	info, err := os.Stat(script)
	if err != nil {
		return core.NewError(
			fmt.Errorf("build entrypoint %q not found: %w", entrypoint, err),
			core.CodeBuildEntrypoint,
			map[string]any{"source_dir": sourceDir},
		)
	}
	if !info.Mode().IsRegular() {
		return core.NewError(
			fmt.Errorf("build entrypoint %q is not a regular file", entrypoint),
			core.CodeBuildEntrypoint,
			map[string]any{"source_dir": sourceDir},
		)
	}
	src, err := os.ReadFile(script)
	if err != nil {
		return core.NewError(
			fmt.Errorf("failed to read build entrypoint %q: %w", entrypoint, err),
			core.CodeBuildEntrypoint,
			map[string]any{"source_dir": sourceDir},
		)
	}
	if _, err := parser.ParseFile(nil, script, string(src), 0); err != nil {
		return core.NewError(
			fmt.Errorf("syntax error in build entrypoint %q: %w", entrypoint, err),
			core.CodeBuildEntrypoint,
			map[string]any{"source_dir": sourceDir},
		)
	}
	return nil
}

// Run validates and executes one entrypoint. The script runs with
// sourceDir as its working directory and targetDir as its sole argument;
// targetDir is created first. A non-zero exit embeds the script's stderr
// in the returned error.
func (r *Runner) Run(ctx context.Context, entrypoint, sourceDir, targetDir string) error {
	if err := r.Validate(entrypoint, sourceDir); err != nil {
		return err
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return core.NewError(
			fmt.Errorf("failed to create build directory: %w", err),
			core.CodeBuildEntrypoint,
			map[string]any{"target_dir": targetDir},
		)
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	script := filepath.Join(sourceDir, filepath.FromSlash(entrypoint))
	if r.Log != nil {
		r.Log.Info(fmt.Sprintf("Running command '%s %s %s'", r.Interpreter, script, targetDir))
	}
	cmd := exec.CommandContext(ctx, r.Interpreter, script, targetDir)
	cmd.Dir = sourceDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return core.NewError(
			fmt.Errorf("build entrypoint %q timed out after %s", entrypoint, r.Timeout),
			core.CodeBuildEntrypoint,
			map[string]any{"source_dir": sourceDir},
		)
	}
	if err != nil {
		return core.NewError(
			fmt.Errorf("build entrypoint %q failed: %w: %s",
				entrypoint, err, strings.TrimSpace(stderr.String())),
			core.CodeBuildEntrypoint,
			map[string]any{"source_dir": sourceDir},
		)
	}
	if r.Log != nil && stdout.Len() > 0 {
		r.Log.Debug("build entrypoint output", "script", entrypoint, "output", strings.TrimSpace(stdout.String()))
	}
	return nil
}

// RunAll executes the build entrypoints of every configuration that
// declares one, in the given order, writing into the configuration's
// assigned build directory, or <buildRoot>/<type>/<author>/<name> when
// none is assigned. projectEntrypoint, when non-empty, runs last with
// projectDir as source and buildRoot as target.
func (r *Runner) RunAll(ctx context.Context, configs []*component.Config, projectDir, projectEntrypoint string) error {
	buildRoot := core.GetBuildRoot(projectDir)
	// Validate everything up front so a syntax error in a later script
	// never leaves a half-run build behind.
	for _, cfg := range configs {
		if cfg.BuildEntrypoint == "" {
			continue
		}
		if err := r.Validate(cfg.BuildEntrypoint, cfg.Directory); err != nil {
			return core.NewError(
				fmt.Errorf("build of %s failed: %w", cfg.ComponentId(), err),
				core.CodeBuildEntrypoint,
				map[string]any{"component": cfg.ComponentId().String()},
			)
		}
	}
	if projectEntrypoint != "" {
		if err := r.Validate(projectEntrypoint, projectDir); err != nil {
			return err
		}
	}
	for _, cfg := range configs {
		if cfg.BuildEntrypoint == "" {
			continue
		}
		target := cfg.BuildDirectory
		if target == "" {
			target = filepath.Join(buildRoot, string(cfg.Type), cfg.Author, cfg.Name)
		}
		if err := r.Run(ctx, cfg.BuildEntrypoint, cfg.Directory, target); err != nil {
			return core.NewError(
				fmt.Errorf("build of %s failed: %w", cfg.ComponentId(), err),
				core.CodeBuildEntrypoint,
				map[string]any{"component": cfg.ComponentId().String()},
			)
		}
	}
	if projectEntrypoint != "" {
		if err := r.Run(ctx, projectEntrypoint, projectDir, buildRoot); err != nil {
			return err
		}
	}
	return nil
}
