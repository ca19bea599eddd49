package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `{
	"name": "read",
	"description": "Reads a file",
	"parameters": {"type": "object", "properties": {}},
	"destructive": false,
	"builder": "read"
}`

func writeAgentDir(t *testing.T, root, name, skill string, withTool bool) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(skill), 0o644))
	if withTool {
		toolDir := filepath.Join(dir, "tools", "read")
		require.NoError(t, os.MkdirAll(toolDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(toolDir, "tool.json"), []byte(sampleManifest), 0o644))
	}
}

func TestRegistry_Load(t *testing.T) {
	root := t.TempDir()
	writeAgentDir(t, root, "explore", "---\ndescription: Explores the codebase\n---\nYou explore code.\n", true)

	r := NewRegistry(root, zerolog.Nop())
	require.NoError(t, r.Load())

	def, ok := r.Get("explore")
	require.True(t, ok)
	assert.Equal(t, "Explores the codebase", def.Description)
	assert.Contains(t, def.Tools.Names(), "read")
	assert.Empty(t, r.Invalid())
}

func TestRegistry_Load_SkipsDirectoriesWithoutSkill(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "not_an_agent"), 0o755))

	r := NewRegistry(root, zerolog.Nop())
	require.NoError(t, r.Load())

	assert.Empty(t, r.Names())
	assert.Empty(t, r.Invalid())
}

func TestRegistry_Load_InvalidEmptyToolSet(t *testing.T) {
	root := t.TempDir()
	writeAgentDir(t, root, "toolless", "---\ndescription: Has no tools\n---\nBody.\n", false)

	r := NewRegistry(root, zerolog.Nop())
	require.NoError(t, r.Load())

	assert.Empty(t, r.Names())
	invalid := r.Invalid()
	require.Len(t, invalid, 1)
	assert.Equal(t, "toolless", invalid[0].Name)
}

func TestRegistry_Load_InvalidMalformedSkill(t *testing.T) {
	root := t.TempDir()
	writeAgentDir(t, root, "broken", "not a frontmatter document", true)

	r := NewRegistry(root, zerolog.Nop())
	require.NoError(t, r.Load())

	assert.Empty(t, r.Names())
	require.Len(t, r.Invalid(), 1)
}

func TestRegistry_Load_NonexistentRoot(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "missing"), zerolog.Nop())
	require.NoError(t, r.Load())
	assert.Empty(t, r.Names())
}

func TestRegistry_Version_BumpsOnLoad(t *testing.T) {
	root := t.TempDir()
	r := NewRegistry(root, zerolog.Nop())
	before := r.Version()

	require.NoError(t, r.Load())
	assert.Greater(t, r.Version(), before)

	writeAgentDir(t, root, "explore", "---\ndescription: d\n---\nbody\n", true)
	require.NoError(t, r.Load())
	assert.Greater(t, r.Version(), before+1)
}

func TestRegistry_List(t *testing.T) {
	root := t.TempDir()
	writeAgentDir(t, root, "a", "---\ndescription: a\n---\nbody\n", true)
	writeAgentDir(t, root, "b", "---\ndescription: b\n---\nbody\n", true)

	r := NewRegistry(root, zerolog.Nop())
	require.NoError(t, r.Load())
	assert.Len(t, r.List(), 2)
}
