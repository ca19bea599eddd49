package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths is the set of on-disk subdirectories a Settings value resolves to,
// rooted at DataRoot (spec.md §6.5: "subdirectory names (sessions, tools,
// agents, agent-chats, system-prompts)"). Grounded in the teacher's
// config.Paths, but scoped to a single configurable data root instead of
// the XDG quartet (Data/Config/Cache/State) — mochi-server persists
// everything it owns under one directory rather than splitting config from
// state the way a desktop application does.
type Paths struct {
	Root          string
	Sessions      string
	Tools         string
	Agents        string
	AgentChats    string
	SystemPrompts string
}

// pathsFor derives a Paths from a Settings' DataRoot and subdirectory names.
func pathsFor(s *Settings) Paths {
	return Paths{
		Root:          s.DataRoot,
		Sessions:      filepath.Join(s.DataRoot, s.SessionsDir),
		Tools:         filepath.Join(s.DataRoot, s.ToolsDir),
		Agents:        filepath.Join(s.DataRoot, s.AgentsDir),
		AgentChats:    filepath.Join(s.DataRoot, s.AgentChatsDir),
		SystemPrompts: filepath.Join(s.DataRoot, s.SystemPromptsDir),
	}
}

// EnsurePaths creates the root and every subdirectory, if missing.
func (p Paths) EnsurePaths() error {
	for _, dir := range []string{p.Root, p.Sessions, p.Tools, p.Agents, p.AgentChats, p.SystemPrompts} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// defaultDataRoot mirrors the teacher's XDG fallback chain, swapping the
// opencode application name for mochi.
func defaultDataRoot() string {
	if home := os.Getenv("XDG_DATA_HOME"); home != "" {
		return filepath.Join(home, "mochi")
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "mochi")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share", "mochi")
}
