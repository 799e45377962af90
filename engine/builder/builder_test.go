package builder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge-io/agentforge/engine/agent"
	"github.com/agentforge-io/agentforge/engine/component"
	"github.com/agentforge-io/agentforge/engine/core"
	"github.com/agentforge-io/agentforge/engine/wallet"
	"github.com/agentforge-io/agentforge/pkg/logger"
)

func write(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// fixture lays out a minimal project: protocol "ping", connection "http"
// carrying it, skill "echo" using both, plus an ethereum key.
type fixture struct {
	projectDir    string
	keyPath       string
	protocolDir   string
	connectionDir string
	skillDir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	projectDir := t.TempDir()

	protocolDir := filepath.Join(projectDir, "vendor", "acme", "protocols", "ping")
	write(t, protocolDir, "protocol.yaml", "type: protocol\nauthor: acme\nname: ping\nversion: 1.0.0\n")
	write(t, protocolDir, "message.js", "module.exports = {};\n")

	connectionDir := filepath.Join(projectDir, "vendor", "acme", "connections", "http")
	write(t, connectionDir, "connection.yaml",
		"type: connection\nauthor: acme\nname: http\nversion: 1.0.0\nprotocols:\n  - acme/ping:1.0.0\n")
	write(t, connectionDir, "channel.js",
		`const ping = require("../../packages/acme/protocols/ping/message");`+"\n")

	skillDir := filepath.Join(projectDir, "vendor", "acme", "skills", "echo")
	write(t, skillDir, "skill.yaml",
		"type: skill\nauthor: acme\nname: echo\nversion: 0.1.0\nprotocols:\n  - acme/ping:1.0.0\nconnections:\n  - acme/http:1.0.0\n")
	write(t, skillDir, "handlers.js",
		`const ping = require("../../packages/acme/protocols/ping/message");`+"\n"+
			`const conn = require("../../packages/acme/connections/http/channel");`+"\n")

	backend, err := wallet.LookupBackend("ethereum")
	require.NoError(t, err)
	keyPath := filepath.Join(projectDir, "ethereum_private_key.txt")
	_, err = backend.Generate(keyPath)
	require.NoError(t, err)

	return &fixture{
		projectDir:    projectDir,
		keyPath:       keyPath,
		protocolDir:   protocolDir,
		connectionDir: connectionDir,
		skillDir:      skillDir,
	}
}

func (f *fixture) newBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := New(WithLogger(logger.NewLogger(logger.TestConfig())))
	require.NoError(t, err)
	b.SetName("test_agent").
		SetProjectDir(f.projectDir).
		AddPrivateKey("ethereum", "ethereum_private_key.txt", false)
	return b
}

func (f *fixture) addAll(t *testing.T, b *Builder) {
	t.Helper()
	require.NoError(t, b.AddComponent(core.ComponentProtocol, f.protocolDir))
	require.NoError(t, b.AddComponent(core.ComponentConnection, f.connectionDir))
	require.NoError(t, b.AddComponent(core.ComponentSkill, f.skillDir))
}

func TestBuilderAddComponent(t *testing.T) {
	t.Parallel()

	t.Run("Should enforce dependencies-first registration", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		b := f.newBuilder(t)
		err := b.AddComponent(core.ComponentSkill, f.skillDir)
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.CodeMissingDependency))
		assert.Equal(t, 0, b.Graph().Len())
	})
	t.Run("Should assign the deterministic build directory", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		b := f.newBuilder(t)
		require.NoError(t, b.AddComponent(core.ComponentProtocol, f.protocolDir))
		cfg, ok := b.Graph().Get(core.NewComponentId(
			core.ComponentProtocol, core.MustNewPublicId("acme", "ping", "1.0.0")))
		require.True(t, ok)
		expected := filepath.Join(core.GetBuildRoot(f.projectDir), "protocol", "acme", "ping")
		assert.Equal(t, expected, cfg.BuildDirectory)
	})
	t.Run("Should remove a component without dependents", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		b := f.newBuilder(t)
		f.addAll(t, b)
		protocolID := core.NewComponentId(core.ComponentProtocol, core.MustNewPublicId("acme", "ping", "1.0.0"))
		err := b.RemoveComponent(protocolID)
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.CodeDependentsExist))
		skillID := core.NewComponentId(core.ComponentSkill, core.MustNewPublicId("acme", "echo", "0.1.0"))
		require.NoError(t, b.RemoveComponent(skillID))
	})
}

func TestBuilderBuild(t *testing.T) {
	t.Parallel()

	t.Run("Should assemble an agent with skills loaded last", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		b := f.newBuilder(t)
		f.addAll(t, b)
		a, err := b.Build(nil, "")
		require.NoError(t, err)
		assert.Equal(t, "test_agent", a.Name())
		assert.Equal(t, 3, a.Resources().Len())
		require.Len(t, a.Connections(), 1)
		assert.Equal(t, "http", a.Connections()[0].PublicId().Name)
	})
	t.Run("Should hand the collected context and settings to the agent", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		b := f.newBuilder(t)
		f.addAll(t, b)
		b.SetContextValue("greeting", "hello").
			SetCurrencyDenomination("ethereum", "wei").
			SetRuntimeMode(agent.RuntimeModeThreaded).
			SetTaskManagerMode(agent.TaskManagerMultiprocess).
			SetConnectionExceptionPolicy(agent.PolicyJustLog).
			SetStorageURI("sqlite://agent.db")
		pingID := core.MustNewPublicId("acme", "ping", "1.0.0")
		httpID := core.MustNewPublicId("acme", "http", "1.0.0")
		require.NoError(t, b.SetDefaultRouting(map[core.PublicId]core.PublicId{pingID: httpID}))

		a, err := b.Build(nil, "")
		require.NoError(t, err)
		assert.Equal(t, f.projectDir, a.DataDir())
		v, ok := a.Context().Value("greeting")
		require.True(t, ok)
		assert.Equal(t, "hello", v)
		assert.Equal(t, "wei", a.Context().CurrencyDenominations["ethereum"])
		assert.Equal(t, httpID, a.Context().DefaultRouting[pingID])
		assert.Equal(t, agent.RuntimeModeThreaded, a.Settings().RuntimeMode)
		assert.Equal(t, agent.TaskManagerMultiprocess, a.Settings().TaskManagerMode)
		assert.Equal(t, agent.PolicyJustLog, a.Settings().ConnectionExceptionPolicy)
		assert.Equal(t, "sqlite://agent.db", a.Settings().StorageURI)

		// The agent keeps its own copies of the collected maps.
		b.SetContextValue("greeting", "changed")
		got, _ := a.Context().Value("greeting")
		assert.Equal(t, "hello", got)
	})
	t.Run("Should build with a literal private key and demand a reset before reuse", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		raw, err := os.ReadFile(f.keyPath)
		require.NoError(t, err)
		b, err := New(WithLogger(logger.NewLogger(logger.TestConfig())))
		require.NoError(t, err)
		b.SetName("test_agent").
			SetProjectDir(f.projectDir).
			AddPrivateKeyLiteral("ethereum", string(raw), false)

		a, err := b.Build(nil, "")
		require.NoError(t, err)
		assert.NotEmpty(t, a.Identity().Address())

		_, err = b.Build(nil, "")
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.CodeReentrantBuild))

		require.NoError(t, b.Reset(false))
		b.SetName("test_agent").AddPrivateKey("ethereum", "ethereum_private_key.txt", false)
		_, err = b.Build(nil, "")
		require.NoError(t, err)
	})
	t.Run("Should produce disjoint object graphs across two builds", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		b := f.newBuilder(t)
		f.addAll(t, b)
		first, err := b.Build(nil, "")
		require.NoError(t, err)
		second, err := b.Build(nil, "")
		require.NoError(t, err)

		skillID := core.MustNewPublicId("acme", "echo", "0.1.0")
		firstSkill, ok := first.Resources().Get(core.ComponentSkill, skillID)
		require.True(t, ok)
		secondSkill, ok := second.Resources().Get(core.ComponentSkill, skillID)
		require.True(t, ok)
		assert.NotSame(t, firstSkill, secondSkill)
		assert.NotEqual(t, firstSkill.InstanceID(), secondSkill.InstanceID())
		assert.NotSame(t, firstSkill.Configuration(), secondSkill.Configuration())
	})
	t.Run("Should refuse a second build after instance injection", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		b := f.newBuilder(t)

		ctor, err := component.NewConstructorRegistry().Resolve(core.ComponentProtocol, "")
		require.NoError(t, err)
		cfg, err := component.Load(core.ComponentProtocol, f.protocolDir)
		require.NoError(t, err)
		instance, err := ctor(cfg, &component.BuildContext{Logger: logger.NewLogger(logger.TestConfig())})
		require.NoError(t, err)
		require.NoError(t, b.AddComponentInstance(instance))

		_, err = b.Build(nil, "")
		require.NoError(t, err)
		_, err = b.Build(nil, "")
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.CodeReentrantBuild))
	})
	t.Run("Should require the default ledger among the required ledgers", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		b := f.newBuilder(t)
		b.SetDefaultLedger("ethereum").SetRequiredLedgers([]string{"fetchai"})
		_, err := b.Build(nil, "")
		require.Error(t, err)
		assert.ErrorContains(t, err, "not in the required ledgers")
	})
	t.Run("Should fail without any private key", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		b, err := New(WithLogger(logger.NewLogger(logger.TestConfig())))
		require.NoError(t, err)
		b.SetName("test_agent").SetProjectDir(f.projectDir)
		_, err = b.Build(nil, "")
		require.Error(t, err)
		assert.ErrorContains(t, err, "holds no keys")
	})
	t.Run("Should apply per-build overrides to a copy only", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		b := f.newBuilder(t)
		f.addAll(t, b)
		skillID := core.NewComponentId(core.ComponentSkill, core.MustNewPublicId("acme", "echo", "0.1.0"))
		b.SetComponentOverride(skillID, map[string]any{"greeting": "hello"})
		a, err := b.Build(nil, "")
		require.NoError(t, err)
		skill, ok := a.Resources().Get(core.ComponentSkill, skillID.Public)
		require.True(t, ok)
		assert.Equal(t, "hello", skill.Configuration().Extra["greeting"])
		registered, ok := b.Graph().Get(skillID)
		require.True(t, ok)
		assert.NotContains(t, registered.Extra, "greeting")
	})
}

func TestBuilderConnectionSelection(t *testing.T) {
	t.Parallel()

	t.Run("Should order the default connection first", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		secondDir := filepath.Join(f.projectDir, "vendor", "acme", "connections", "p2p")
		write(t, secondDir, "connection.yaml", "type: connection\nauthor: acme\nname: p2p\nversion: 1.0.0\n")

		b := f.newBuilder(t)
		require.NoError(t, b.AddComponent(core.ComponentProtocol, f.protocolDir))
		require.NoError(t, b.AddComponent(core.ComponentConnection, secondDir))
		require.NoError(t, b.AddComponent(core.ComponentConnection, f.connectionDir))
		b.SetDefaultConnection(core.MustNewPublicId("acme", "http", "1.0.0"))

		a, err := b.Build(nil, "")
		require.NoError(t, err)
		require.Len(t, a.Connections(), 2)
		assert.Equal(t, "http", a.Connections()[0].PublicId().Name)
	})
	t.Run("Should reject selecting an undeclared connection", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		b := f.newBuilder(t)
		require.NoError(t, b.AddComponent(core.ComponentProtocol, f.protocolDir))
		require.NoError(t, b.AddComponent(core.ComponentConnection, f.connectionDir))
		_, err := b.Build([]core.PublicId{core.MustNewPublicId("acme", "ghost", "1.0.0")}, "")
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.CodeMissingDependency))
	})
	t.Run("Should reject an undeclared default connection", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		b := f.newBuilder(t)
		require.NoError(t, b.AddComponent(core.ComponentProtocol, f.protocolDir))
		b.SetDefaultConnection(core.MustNewPublicId("acme", "ghost", "1.0.0"))
		_, err := b.Build(nil, "")
		require.Error(t, err)
		assert.ErrorContains(t, err, "not a dependency")
	})
}

func TestBuilderReset(t *testing.T) {
	t.Parallel()

	t.Run("Should make an injected session reusable again", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		b := f.newBuilder(t)
		ctor, err := component.NewConstructorRegistry().Resolve(core.ComponentProtocol, "")
		require.NoError(t, err)
		cfg, err := component.Load(core.ComponentProtocol, f.protocolDir)
		require.NoError(t, err)
		instance, err := ctor(cfg, &component.BuildContext{Logger: logger.NewLogger(logger.TestConfig())})
		require.NoError(t, err)
		require.NoError(t, b.AddComponentInstance(instance))
		_, err = b.Build(nil, "")
		require.NoError(t, err)

		require.NoError(t, b.Reset(false))
		assert.Equal(t, 0, b.Graph().Len())

		b.SetName("test_agent").AddPrivateKey("ethereum", "ethereum_private_key.txt", false)
		f.addAll(t, b)
		_, err = b.Build(nil, "")
		require.NoError(t, err)
	})
	t.Run("Should re-seed default packages on a full reset", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		defaultCfg, err := component.Load(core.ComponentProtocol, f.protocolDir)
		require.NoError(t, err)
		b, err := New(
			WithLogger(logger.NewLogger(logger.TestConfig())),
			WithDefaultPackages(defaultCfg),
		)
		require.NoError(t, err)
		assert.Equal(t, 1, b.Graph().Len())
		require.NoError(t, b.AddComponent(core.ComponentConnection, f.connectionDir))
		assert.Equal(t, 2, b.Graph().Len())

		require.NoError(t, b.Reset(true))
		assert.Equal(t, 1, b.Graph().Len())
		assert.True(t, b.Graph().Has(defaultCfg.ComponentId()))
	})
}
