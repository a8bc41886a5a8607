package cli

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhsnap/xhsnap/internal/config"
)

func TestLoadConfigFirstRunWritesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	loadConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, config.Default(), cfg)

	// The defaults landed on disk so the user has a file to edit.
	path, err := config.ConfigPath()
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)

	// The second run reads the written file.
	loadConfig()
	assert.Equal(t, config.Default(), cfg)
}
