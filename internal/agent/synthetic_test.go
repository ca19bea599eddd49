package agent

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticTool_EnumeratesEnabledAgents(t *testing.T) {
	root := t.TempDir()
	writeAgentDir(t, root, "explore", "---\ndescription: Explores code\n---\nbody\n", true)
	writeAgentDir(t, root, "writer", "---\ndescription: Writes code\n---\nbody\n", true)

	r := NewRegistry(root, zerolog.Nop())
	require.NoError(t, r.Load())

	schema := r.SyntheticTool([]string{"explore"})
	assert.Equal(t, SyntheticToolName, schema.Name)
	assert.Contains(t, schema.Description, "explore: Explores code")
	assert.NotContains(t, schema.Description, "writer:")
}

func TestSyntheticTool_NameStableAcrossRegeneration(t *testing.T) {
	root := t.TempDir()
	writeAgentDir(t, root, "explore", "---\ndescription: Explores code\n---\nbody\n", true)

	r := NewRegistry(root, zerolog.Nop())
	require.NoError(t, r.Load())

	first := r.SyntheticTool(nil)
	writeAgentDir(t, root, "writer", "---\ndescription: Writes code\n---\nbody\n", true)
	require.NoError(t, r.Load())
	second := r.SyntheticTool(nil)

	assert.Equal(t, first.Name, second.Name)
	assert.NotEqual(t, first.Description, second.Description)
}

func TestSyntheticTool_NoAgentsEnabled(t *testing.T) {
	r := NewRegistry(t.TempDir(), zerolog.Nop())
	require.NoError(t, r.Load())

	schema := r.SyntheticTool(nil)
	assert.Contains(t, schema.Description, "no agents currently enabled")
}
