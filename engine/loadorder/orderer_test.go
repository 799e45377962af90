package loadorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge-io/agentforge/engine/component"
	"github.com/agentforge-io/agentforge/engine/core"
)

func skillConfig(name string, deps ...string) *component.Config {
	return &component.Config{
		Type:    core.ComponentSkill,
		Author:  "acme",
		Name:    name,
		Version: "0.1.0",
		Skills:  deps,
	}
}

func indexOf(configs []*component.Config, name string) int {
	for i, cfg := range configs {
		if cfg.Name == name {
			return i
		}
	}
	return -1
}

func TestOrder(t *testing.T) {
	t.Parallel()

	t.Run("Should place dependencies before dependents", func(t *testing.T) {
		t.Parallel()
		base := skillConfig("base")
		mid := skillConfig("mid", "acme/base:0.1.0")
		top := skillConfig("top", "acme/mid:0.1.0", "acme/base:0.1.0")
		ordered, err := Order(core.ComponentSkill, []*component.Config{top, mid, base})
		require.NoError(t, err)
		require.Len(t, ordered, 3)
		assert.Less(t, indexOf(ordered, "base"), indexOf(ordered, "mid"))
		assert.Less(t, indexOf(ordered, "mid"), indexOf(ordered, "top"))
	})
	t.Run("Should keep input order among independent components", func(t *testing.T) {
		t.Parallel()
		a := skillConfig("alpha")
		b := skillConfig("beta")
		c := skillConfig("gamma")
		ordered, err := Order(core.ComponentSkill, []*component.Config{b, a, c})
		require.NoError(t, err)
		assert.Equal(t, []string{"beta", "alpha", "gamma"},
			[]string{ordered[0].Name, ordered[1].Name, ordered[2].Name})
	})
	t.Run("Should ignore dependencies outside the candidate set", func(t *testing.T) {
		t.Parallel()
		s := skillConfig("echo", "acme/elsewhere:0.1.0")
		ordered, err := Order(core.ComponentSkill, []*component.Config{s})
		require.NoError(t, err)
		assert.Len(t, ordered, 1)
	})
	t.Run("Should fail on a two-skill cycle with no partial order", func(t *testing.T) {
		t.Parallel()
		a := skillConfig("ping", "acme/pong:0.1.0")
		b := skillConfig("pong", "acme/ping:0.1.0")
		ordered, err := Order(core.ComponentSkill, []*component.Config{a, b})
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.CodeCyclicDependency))
		assert.ErrorContains(t, err, "cyclic dependency")
		assert.Nil(t, ordered)
	})
	t.Run("Should fail when only part of the set is cyclic", func(t *testing.T) {
		t.Parallel()
		free := skillConfig("free")
		a := skillConfig("ping", "acme/pong:0.1.0")
		b := skillConfig("pong", "acme/ping:0.1.0")
		ordered, err := Order(core.ComponentSkill, []*component.Config{free, a, b})
		require.Error(t, err)
		assert.Nil(t, ordered)
	})
}

func TestOrderAll(t *testing.T) {
	t.Parallel()

	t.Run("Should order mixed types dependencies first", func(t *testing.T) {
		t.Parallel()
		protocol := &component.Config{
			Type: core.ComponentProtocol, Author: "acme", Name: "ping", Version: "1.0.0",
		}
		connection := &component.Config{
			Type: core.ComponentConnection, Author: "acme", Name: "http", Version: "1.0.0",
			Protocols: []string{"acme/ping:1.0.0"},
		}
		skill := &component.Config{
			Type: core.ComponentSkill, Author: "acme", Name: "echo", Version: "0.1.0",
			Protocols:   []string{"acme/ping:1.0.0"},
			Connections: []string{"acme/http:1.0.0"},
		}
		ordered, err := OrderAll([]*component.Config{skill, connection, protocol})
		require.NoError(t, err)
		require.Len(t, ordered, 3)
		assert.Equal(t, "ping", ordered[0].Name)
		assert.Equal(t, "http", ordered[1].Name)
		assert.Equal(t, "echo", ordered[2].Name)
	})
}
