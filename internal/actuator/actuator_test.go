package actuator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLauncher(t *testing.T) {
	_, ok := NewLauncher("  ").(*LogLauncher)
	assert.True(t, ok)

	cmd, ok := NewLauncher("xdg-open --verbose").(*CommandLauncher)
	require.True(t, ok)
	assert.Equal(t, "xdg-open", cmd.Name)
	assert.Equal(t, []string{"--verbose"}, cmd.Args)
}

func TestLogLauncher_RecordsURIs(t *testing.T) {
	l := &LogLauncher{}
	require.NoError(t, l.Launch(context.Background(), "settings://bluetooth"))
	require.NoError(t, l.Launch(context.Background(), "https://example.com"))
	assert.Equal(t, []string{"settings://bluetooth", "https://example.com"}, l.Launched())
}
