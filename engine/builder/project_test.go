package builder

import (
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge-io/agentforge/engine/agent"
	"github.com/agentforge-io/agentforge/engine/core"
	"github.com/agentforge-io/agentforge/pkg/logger"
)

const projectManifest = `name: my_agent
author: acme
version: 0.1.0
default_ledger: ethereum
required_ledgers:
  - ethereum
private_key_paths:
  ethereum: ethereum_private_key.txt
default_connection: acme/http:1.0.0
protocols:
  - acme/ping:1.0.0
connections:
  - acme/http:1.0.0
skills:
  - acme/echo:0.1.0
period: 0.1
max_reactions: 10
loop_mode: sync
runtime_mode: threaded
task_manager_mode: multiprocess
connection_exception_policy: just_log
storage_uri: sqlite://agent.db
`

func TestLoadProject(t *testing.T) {
	t.Parallel()

	t.Run("Should load a complete manifest", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		write(t, f.projectDir, ProjectFileName, projectManifest)
		project, err := LoadProject(f.projectDir)
		require.NoError(t, err)
		assert.Equal(t, "my_agent", project.Name)
		assert.Equal(t, "acme/http:1.0.0", project.DefaultConnection)
		assert.Len(t, project.Skills, 1)
	})
	t.Run("Should fail without a manifest", func(t *testing.T) {
		t.Parallel()
		_, err := LoadProject(t.TempDir())
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.CodeConfigurationInvalid))
	})
	t.Run("Should fail on missing identity fields", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		write(t, dir, ProjectFileName, "name: my_agent\n")
		_, err := LoadProject(dir)
		require.Error(t, err)
	})
}

func TestDirectoryResolver(t *testing.T) {
	t.Parallel()

	t.Run("Should prefer the vendor directory", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		write(t, filepath.Join(root, "vendor", "acme", "protocols", "ping"), "protocol.yaml", "x: 1\n")
		write(t, filepath.Join(root, "protocols", "ping"), "protocol.yaml", "x: 1\n")
		resolver := NewDirectoryResolver(root)
		dir, err := resolver.Resolve(core.ComponentProtocol, core.MustNewPublicId("acme", "ping", "1.0.0"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "vendor", "acme", "protocols", "ping"), dir)
	})
	t.Run("Should fall back to the project's own packages", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		write(t, filepath.Join(root, "skills", "echo"), "skill.yaml", "x: 1\n")
		resolver := NewDirectoryResolver(root)
		dir, err := resolver.Resolve(core.ComponentSkill, core.MustNewPublicId("acme", "echo", "0.1.0"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "skills", "echo"), dir)
	})
	t.Run("Should fail when neither location exists", func(t *testing.T) {
		t.Parallel()
		resolver := NewDirectoryResolver(t.TempDir())
		_, err := resolver.Resolve(core.ComponentSkill, core.MustNewPublicId("acme", "ghost", "0.1.0"))
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.CodeNotFound))
	})
}

func TestNewFromProject(t *testing.T) {
	t.Parallel()

	t.Run("Should bootstrap and build an agent from disk", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		write(t, f.projectDir, ProjectFileName, projectManifest)
		b, err := NewFromProject(f.projectDir, WithLogger(logger.NewLogger(logger.TestConfig())))
		require.NoError(t, err)
		assert.Equal(t, 3, b.Graph().Len())

		a, err := b.Build(nil, "")
		require.NoError(t, err)
		assert.Equal(t, "my_agent", a.Name())
		assert.Equal(t, agent.LoopModeSync, a.Settings().LoopMode)
		assert.Equal(t, 100*time.Millisecond, a.Settings().Period)
		assert.Equal(t, agent.RuntimeModeThreaded, a.Settings().RuntimeMode)
		assert.Equal(t, agent.TaskManagerMultiprocess, a.Settings().TaskManagerMode)
		assert.Equal(t, agent.PolicyJustLog, a.Settings().ConnectionExceptionPolicy)
		assert.Equal(t, "sqlite://agent.db", a.Settings().StorageURI)
		assert.Equal(t, f.projectDir, a.DataDir())
		require.Len(t, a.Connections(), 1)
		assert.Equal(t, "http", a.Connections()[0].PublicId().Name)
	})
	t.Run("Should register components dependencies-first regardless of manifest order", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		// Skills listed before the protocol they depend on.
		manifest := `name: my_agent
author: acme
version: 0.1.0
private_key_paths:
  ethereum: ethereum_private_key.txt
skills:
  - acme/echo:0.1.0
connections:
  - acme/http:1.0.0
protocols:
  - acme/ping:1.0.0
`
		write(t, f.projectDir, ProjectFileName, manifest)
		b, err := NewFromProject(f.projectDir, WithLogger(logger.NewLogger(logger.TestConfig())))
		require.NoError(t, err)
		assert.Equal(t, 3, b.Graph().Len())
	})
	t.Run("Should surface a skill cycle as a cyclic dependency error", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		write(t, filepath.Join(dir, "skills", "ping"), "skill.yaml",
			"type: skill\nauthor: acme\nname: ping\nversion: 0.1.0\nskills:\n  - acme/pong:0.1.0\n")
		write(t, filepath.Join(dir, "skills", "pong"), "skill.yaml",
			"type: skill\nauthor: acme\nname: pong\nversion: 0.1.0\nskills:\n  - acme/ping:0.1.0\n")
		write(t, dir, ProjectFileName, `name: my_agent
author: acme
version: 0.1.0
skills:
  - acme/ping:0.1.0
  - acme/pong:0.1.0
`)
		_, err := NewFromProject(dir, WithLogger(logger.NewLogger(logger.TestConfig())))
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.CodeCyclicDependency))
	})
	t.Run("Should reject an unknown runtime mode", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		write(t, dir, ProjectFileName, `name: my_agent
author: acme
version: 0.1.0
runtime_mode: fibers
`)
		_, err := NewFromProject(dir, WithLogger(logger.NewLogger(logger.TestConfig())))
		require.Error(t, err)
		assert.ErrorContains(t, err, `unknown runtime mode "fibers"`)
	})
	t.Run("Should reject a directory holding a different component", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		manifest := `name: my_agent
author: acme
version: 0.1.0
protocols:
  - acme/ping:2.0.0
`
		write(t, f.projectDir, ProjectFileName, manifest)
		_, err := NewFromProject(f.projectDir, WithLogger(logger.NewLogger(logger.TestConfig())))
		require.Error(t, err)
		assert.ErrorContains(t, err, "project declares")
	})
}

func TestBuildArtifacts(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("node"); err != nil {
		t.Skip("node interpreter not available")
	}

	t.Run("Should run component entrypoints into the build root", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		write(t, f.protocolDir, "generate.js", `
const fs = require("fs");
const path = require("path");
fs.writeFileSync(path.join(process.argv[2], "generated.js"), "module.exports = {};");
`)
		write(t, f.protocolDir, "protocol.yaml",
			"type: protocol\nauthor: acme\nname: ping\nversion: 1.0.0\nbuild_entrypoint: generate.js\n")

		b := f.newBuilder(t)
		f.addAll(t, b)
		require.NoError(t, b.BuildArtifacts(t.Context()))
		assert.FileExists(t, filepath.Join(
			core.GetBuildRoot(f.projectDir), "protocol", "acme", "ping", "generated.js"))
	})
}
