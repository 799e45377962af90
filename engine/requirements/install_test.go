package requirements

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstaller(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("coreutils not available")
	}

	reqs := func(t *testing.T, raw map[string]string) Requirements {
		t.Helper()
		parsed, err := Parse(raw)
		require.NoError(t, err)
		return parsed
	}

	t.Run("Should succeed when every install succeeds", func(t *testing.T) {
		t.Parallel()
		installer := NewInstaller("true", t.TempDir(), 2)
		err := installer.Install(t.Context(), reqs(t, map[string]string{
			"left":  ">=1.0.0",
			"right": "",
		}))
		require.NoError(t, err)
	})
	t.Run("Should attribute each failure to its package without aborting the rest", func(t *testing.T) {
		t.Parallel()
		installer := NewInstaller("false", t.TempDir(), 1)
		err := installer.Install(t.Context(), reqs(t, map[string]string{
			"left":  ">=1.0.0",
			"right": "<2.0.0",
		}))
		require.Error(t, err)
		assert.ErrorContains(t, err, "left")
		assert.ErrorContains(t, err, "right")
		var installErr *InstallError
		assert.True(t, errors.As(err, &installErr))
	})
	t.Run("Should do nothing for empty requirements", func(t *testing.T) {
		t.Parallel()
		installer := NewInstaller("false", t.TempDir(), 1)
		require.NoError(t, installer.Install(t.Context(), nil))
	})
}
