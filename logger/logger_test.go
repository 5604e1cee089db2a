package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeConsole(t *testing.T) {
	err := Initialize(false, "info")
	require.NoError(t, err)
	require.NotNil(t, Logger)
	assert.False(t, JSONOutput)
}

func TestInitializeJSON(t *testing.T) {
	err := Initialize(true, "warn")
	require.NoError(t, err)
	require.NotNil(t, Logger)
	assert.True(t, JSONOutput)
}

func TestInitializeBadLevelFallsBack(t *testing.T) {
	err := Initialize(false, "loud")
	require.NoError(t, err)
	require.NotNil(t, Logger)
}

func TestGlobalNeverNilBeforeInitialize(t *testing.T) {
	// init() installs a no-op logger; logging before Initialize must not panic.
	require.NotNil(t, Logger)
	Logger.Debugw("pre-initialize log", "ok", true)
}
