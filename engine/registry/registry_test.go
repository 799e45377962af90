package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge-io/agentforge/engine/component"
	"github.com/agentforge-io/agentforge/engine/core"
	"github.com/agentforge-io/agentforge/pkg/logger"
)

// newTestComponent builds a declarative instance from an empty package dir.
func newTestComponent(t *testing.T, kind core.ComponentType, author, name, version string) *component.Component {
	t.Helper()
	ctor, err := component.NewConstructorRegistry().Resolve(kind, "")
	require.NoError(t, err)
	cfg := &component.Config{
		Type: kind, Author: author, Name: name, Version: version,
		Directory: t.TempDir(),
	}
	c, err := ctor(cfg, &component.BuildContext{Logger: logger.NewLogger(logger.TestConfig())})
	require.NoError(t, err)
	return c
}

func TestResources(t *testing.T) {
	t.Parallel()

	t.Run("Should register and look up by type and id", func(t *testing.T) {
		t.Parallel()
		r := New()
		c := newTestComponent(t, core.ComponentProtocol, "acme", "ping", "1.0.0")
		require.NoError(t, r.Register(c))
		got, ok := r.Get(core.ComponentProtocol, c.PublicId())
		require.True(t, ok)
		assert.Same(t, c, got)
		assert.Equal(t, 1, r.Len())
	})
	t.Run("Should reject a duplicate registration", func(t *testing.T) {
		t.Parallel()
		r := New()
		require.NoError(t, r.Register(newTestComponent(t, core.ComponentSkill, "acme", "echo", "0.1.0")))
		err := r.Register(newTestComponent(t, core.ComponentSkill, "acme", "echo", "0.1.0"))
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.CodeDuplicateComponent))
	})
	t.Run("Should list one type in registration order", func(t *testing.T) {
		t.Parallel()
		r := New()
		first := newTestComponent(t, core.ComponentConnection, "acme", "http", "1.0.0")
		second := newTestComponent(t, core.ComponentConnection, "acme", "p2p", "1.0.0")
		require.NoError(t, r.Register(first))
		require.NoError(t, r.Register(second))
		listed := r.OfType(core.ComponentConnection)
		require.Len(t, listed, 2)
		assert.Same(t, first, listed[0])
		assert.Same(t, second, listed[1])
		assert.Empty(t, r.OfType(core.ComponentSkill))
	})
	t.Run("Should reject a nil component", func(t *testing.T) {
		t.Parallel()
		require.Error(t, New().Register(nil))
	})
}
