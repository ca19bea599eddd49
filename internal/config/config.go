package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
)

// Settings is the single configuration object threaded through
// cmd/mochi-server into every collaborator (spec.md §6.5).
type Settings struct {
	Host string
	Port int

	UpstreamBaseURL string
	UpstreamTimeout time.Duration

	DataRoot         string
	SessionsDir      string
	ToolsDir         string
	AgentsDir        string
	AgentChatsDir    string
	SystemPromptsDir string

	PlanningPromptPath  string
	ExecutionPromptPath string

	SummarizationEnabled  bool
	DynamicContextEnabled bool

	LogLevel string
}

// Default returns the baseline Settings, before environment variables, an
// override file, or CLI flags have been layered on top.
func Default() *Settings {
	return &Settings{
		Host:                  "127.0.0.1",
		Port:                  8080,
		UpstreamBaseURL:       "http://127.0.0.1:11434",
		UpstreamTimeout:       60 * time.Second,
		DataRoot:              defaultDataRoot(),
		SessionsDir:           "sessions",
		ToolsDir:              "tools",
		AgentsDir:             "agents",
		AgentChatsDir:         "agent-chats",
		SystemPromptsDir:      "system-prompts",
		SummarizationEnabled:  true,
		DynamicContextEnabled: true,
		LogLevel:              "info",
	}
}

// Load builds a Settings for workDir: defaults, then an optional .env file
// plus the real process environment (MOCHI_-prefixed variables), then an
// optional JSONC override file. CLI flags are applied by the caller on top
// of the returned value; only flags with a non-zero value override it
// (cmd/mochi-server).
func Load(workDir string) (*Settings, error) {
	_ = godotenv.Load(filepath.Join(workDir, ".env"))

	s := Default()
	applyEnv(s)

	if err := applyOverrideFile(s, workDir); err != nil {
		return nil, err
	}

	return s, nil
}

// Addr is the listen address Start binds to.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Paths derives the data-root subdirectory layout from s.
func (s *Settings) Paths() Paths {
	return pathsFor(s)
}

func applyEnv(s *Settings) {
	if v := os.Getenv("MOCHI_HOST"); v != "" {
		s.Host = v
	}
	if v := os.Getenv("MOCHI_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			s.Port = p
		}
	}
	if v := os.Getenv("MOCHI_UPSTREAM_BASE_URL"); v != "" {
		s.UpstreamBaseURL = v
	}
	if v := os.Getenv("MOCHI_UPSTREAM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			s.UpstreamTimeout = d
		}
	}
	if v := os.Getenv("MOCHI_DATA_ROOT"); v != "" {
		s.DataRoot = v
	}
	if v := os.Getenv("MOCHI_SESSIONS_DIR"); v != "" {
		s.SessionsDir = v
	}
	if v := os.Getenv("MOCHI_TOOLS_DIR"); v != "" {
		s.ToolsDir = v
	}
	if v := os.Getenv("MOCHI_AGENTS_DIR"); v != "" {
		s.AgentsDir = v
	}
	if v := os.Getenv("MOCHI_AGENT_CHATS_DIR"); v != "" {
		s.AgentChatsDir = v
	}
	if v := os.Getenv("MOCHI_SYSTEM_PROMPTS_DIR"); v != "" {
		s.SystemPromptsDir = v
	}
	if v := os.Getenv("MOCHI_PLANNING_PROMPT_PATH"); v != "" {
		s.PlanningPromptPath = v
	}
	if v := os.Getenv("MOCHI_EXECUTION_PROMPT_PATH"); v != "" {
		s.ExecutionPromptPath = v
	}
	if v := os.Getenv("MOCHI_SUMMARIZATION_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.SummarizationEnabled = b
		}
	}
	if v := os.Getenv("MOCHI_DYNAMIC_CONTEXT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.DynamicContextEnabled = b
		}
	}
	if v := os.Getenv("MOCHI_LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
}

// overlay is the JSONC override document shape (mochi.jsonc). Pointer
// fields distinguish "absent" from "explicitly zero", so an override file
// that only sets one field never clobbers the rest of Settings.
type overlay struct {
	Host                  *string `json:"host"`
	Port                  *int    `json:"port"`
	UpstreamBaseURL       *string `json:"upstream_base_url"`
	UpstreamTimeout       *string `json:"upstream_timeout"`
	DataRoot              *string `json:"data_root"`
	SessionsDir           *string `json:"sessions_dir"`
	ToolsDir              *string `json:"tools_dir"`
	AgentsDir             *string `json:"agents_dir"`
	AgentChatsDir         *string `json:"agent_chats_dir"`
	SystemPromptsDir      *string `json:"system_prompts_dir"`
	PlanningPromptPath    *string `json:"planning_prompt_path"`
	ExecutionPromptPath   *string `json:"execution_prompt_path"`
	SummarizationEnabled  *bool   `json:"summarization_enabled"`
	DynamicContextEnabled *bool   `json:"dynamic_context_enabled"`
	LogLevel              *string `json:"log_level"`
}

// applyOverrideFile merges an optional JSONC config document into s. The
// file is located at MOCHI_CONFIG_FILE, or workDir/mochi.jsonc if that
// variable is unset; a missing file is not an error.
func applyOverrideFile(s *Settings, workDir string) error {
	path := os.Getenv("MOCHI_CONFIG_FILE")
	if path == "" {
		path = filepath.Join(workDir, "mochi.jsonc")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read override file: %w", err)
	}

	var ov overlay
	if err := json.Unmarshal(jsonc.ToJSON(data), &ov); err != nil {
		return fmt.Errorf("config: parse override file %s: %w", path, err)
	}
	ov.apply(s)
	return nil
}

func (ov overlay) apply(s *Settings) {
	if ov.Host != nil {
		s.Host = *ov.Host
	}
	if ov.Port != nil {
		s.Port = *ov.Port
	}
	if ov.UpstreamBaseURL != nil {
		s.UpstreamBaseURL = *ov.UpstreamBaseURL
	}
	if ov.UpstreamTimeout != nil {
		if d, err := time.ParseDuration(*ov.UpstreamTimeout); err == nil {
			s.UpstreamTimeout = d
		}
	}
	if ov.DataRoot != nil {
		s.DataRoot = *ov.DataRoot
	}
	if ov.SessionsDir != nil {
		s.SessionsDir = *ov.SessionsDir
	}
	if ov.ToolsDir != nil {
		s.ToolsDir = *ov.ToolsDir
	}
	if ov.AgentsDir != nil {
		s.AgentsDir = *ov.AgentsDir
	}
	if ov.AgentChatsDir != nil {
		s.AgentChatsDir = *ov.AgentChatsDir
	}
	if ov.SystemPromptsDir != nil {
		s.SystemPromptsDir = *ov.SystemPromptsDir
	}
	if ov.PlanningPromptPath != nil {
		s.PlanningPromptPath = *ov.PlanningPromptPath
	}
	if ov.ExecutionPromptPath != nil {
		s.ExecutionPromptPath = *ov.ExecutionPromptPath
	}
	if ov.SummarizationEnabled != nil {
		s.SummarizationEnabled = *ov.SummarizationEnabled
	}
	if ov.DynamicContextEnabled != nil {
		s.DynamicContextEnabled = *ov.DynamicContextEnabled
	}
	if ov.LogLevel != nil {
		s.LogLevel = *ov.LogLevel
	}
}
