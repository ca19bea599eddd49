package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearMochiEnv(t *testing.T) {
	t.Helper()
	for _, env := range os.Environ() {
		for i := 0; i < len(env); i++ {
			if env[i] == '=' {
				if len(env[:i]) >= 6 && env[:6] == "MOCHI_" {
					t.Setenv(env[:i], "")
					os.Unsetenv(env[:i])
				}
				break
			}
		}
	}
}

func TestDefault_HasUsableValues(t *testing.T) {
	s := Default()
	assert.Equal(t, "127.0.0.1", s.Host)
	assert.Equal(t, 8080, s.Port)
	assert.Equal(t, "http://127.0.0.1:11434", s.UpstreamBaseURL)
	assert.True(t, s.SummarizationEnabled)
	assert.True(t, s.DynamicContextEnabled)
	assert.Equal(t, "sessions", s.SessionsDir)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	clearMochiEnv(t)
	t.Setenv("MOCHI_HOST", "0.0.0.0")
	t.Setenv("MOCHI_PORT", "9090")
	t.Setenv("MOCHI_UPSTREAM_BASE_URL", "http://example.internal:11434")
	t.Setenv("MOCHI_SUMMARIZATION_ENABLED", "false")

	s, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", s.Host)
	assert.Equal(t, 9090, s.Port)
	assert.Equal(t, "http://example.internal:11434", s.UpstreamBaseURL)
	assert.False(t, s.SummarizationEnabled)
}

func TestLoad_OverrideFileMergesOnTopOfEnv(t *testing.T) {
	clearMochiEnv(t)
	t.Setenv("MOCHI_PORT", "9090")

	dir := t.TempDir()
	jsonc := `{
		// trailing comment
		"host": "10.0.0.1",
		"data_root": "/var/lib/mochi",
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mochi.jsonc"), []byte(jsonc), 0644))

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", s.Host)
	assert.Equal(t, "/var/lib/mochi", s.DataRoot)
	assert.Equal(t, 9090, s.Port, "env-applied fields the override file omits must survive")
}

func TestLoad_MissingOverrideFileIsNotAnError(t *testing.T) {
	clearMochiEnv(t)
	_, err := Load(t.TempDir())
	assert.NoError(t, err)
}

func TestLoad_MalformedOverrideFileFails(t *testing.T) {
	clearMochiEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mochi.jsonc"), []byte("not json"), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestSettings_Addr(t *testing.T) {
	s := &Settings{Host: "127.0.0.1", Port: 8080}
	assert.Equal(t, "127.0.0.1:8080", s.Addr())
}

func TestSettings_Paths(t *testing.T) {
	s := &Settings{
		DataRoot:         "/data",
		SessionsDir:      "sessions",
		ToolsDir:         "tools",
		AgentsDir:        "agents",
		AgentChatsDir:    "agent-chats",
		SystemPromptsDir: "system-prompts",
	}
	paths := s.Paths()
	assert.Equal(t, filepath.Join("/data", "sessions"), paths.Sessions)
	assert.Equal(t, filepath.Join("/data", "agent-chats"), paths.AgentChats)
}

func TestPaths_EnsurePaths(t *testing.T) {
	root := t.TempDir()
	s := &Settings{
		DataRoot:         root,
		SessionsDir:      "sessions",
		ToolsDir:         "tools",
		AgentsDir:        "agents",
		AgentChatsDir:    "agent-chats",
		SystemPromptsDir: "system-prompts",
	}
	require.NoError(t, s.Paths().EnsurePaths())

	for _, dir := range []string{"sessions", "tools", "agents", "agent-chats", "system-prompts"} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestApplyEnv_DurationAndBoolParsing(t *testing.T) {
	clearMochiEnv(t)
	t.Setenv("MOCHI_UPSTREAM_TIMEOUT", "15s")
	t.Setenv("MOCHI_DYNAMIC_CONTEXT_ENABLED", "false")

	s, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, s.UpstreamTimeout)
	assert.False(t, s.DynamicContextEnabled)
}
