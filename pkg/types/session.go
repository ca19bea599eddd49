// Package types holds the persisted data model shared by the session store,
// the turn orchestrator, and the HTTP surface.
package types

import "time"

// FormatVersion is the current persisted schema version.
const FormatVersion = "1.3"

// AdjustmentReason enumerates why the context-window planner changed (or
// left unchanged) the requested window for a turn.
type AdjustmentReason string

const (
	ReasonInitialSetup   AdjustmentReason = "initial_setup"
	ReasonUsageThreshold AdjustmentReason = "usage_threshold"
	ReasonModelChange    AdjustmentReason = "model_change"
	ReasonNoAdjustment   AdjustmentReason = "no_adjustment"
	ReasonManualOverride AdjustmentReason = "manual_override"
)

// ExecutionPolicy governs whether a tool call requires confirmation.
type ExecutionPolicy string

const (
	PolicyAlwaysConfirm     ExecutionPolicy = "always_confirm"
	PolicyNeverConfirm      ExecutionPolicy = "never_confirm"
	PolicyConfirmDestructive ExecutionPolicy = "confirm_destructive"
)

// ToolSettings is the per-session tool configuration (spec.md §3).
type ToolSettings struct {
	Enabled []string        `json:"enabled"`
	Group   string          `json:"group,omitempty"`
	Policy  ExecutionPolicy `json:"policy"`
}

// DefaultToolSettings matches the default inserted by the 1.0→1.1 migration.
func DefaultToolSettings() ToolSettings {
	return ToolSettings{Enabled: []string{}, Policy: PolicyAlwaysConfirm}
}

// AgentSettings is the per-session agent configuration.
type AgentSettings struct {
	Enabled  []string       `json:"enabled"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DefaultAgentSettings matches the default inserted by the 1.2→1.3 migration.
func DefaultAgentSettings() AgentSettings {
	return AgentSettings{Enabled: []string{}}
}

// ContextWindowAdjustment is one entry in the bounded adjustment history.
type ContextWindowAdjustment struct {
	Window    int              `json:"window"`
	Reason    AdjustmentReason `json:"reason"`
	Timestamp time.Time        `json:"timestamp"`
}

// MaxAdjustmentHistory bounds ContextWindowConfig.AdjustmentHistory (spec.md §3).
const MaxAdjustmentHistory = 10

// ContextWindowConfig is the per-session context-window state (spec.md §3, §4.5).
type ContextWindowConfig struct {
	DynamicEnabled    bool                      `json:"dynamic_enabled"`
	CurrentWindow     int                       `json:"current_window"`
	LastReason        AdjustmentReason          `json:"last_reason,omitempty"`
	AdjustmentHistory []ContextWindowAdjustment `json:"adjustment_history,omitempty"`
	ManualOverride    bool                      `json:"manual_override"`
	LastModel         string                    `json:"last_model,omitempty"`
}

// AppendAdjustment records a non-idempotent planner decision, evicting the
// oldest entry once the history exceeds MaxAdjustmentHistory.
func (c *ContextWindowConfig) AppendAdjustment(a ContextWindowAdjustment) {
	c.AdjustmentHistory = append(c.AdjustmentHistory, a)
	if over := len(c.AdjustmentHistory) - MaxAdjustmentHistory; over > 0 {
		c.AdjustmentHistory = c.AdjustmentHistory[over:]
	}
}

// Metadata is the envelope persisted as the document's "metadata" field.
type Metadata struct {
	SessionID           string              `json:"session_id"`
	Model               string              `json:"model"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
	MessageCount        int                 `json:"message_count"`
	Summary             *SummaryRecord      `json:"summary"`
	SummaryModel        *string             `json:"summary_model"`
	FormatVersion       string              `json:"format_version"`
	ToolSettings        ToolSettings        `json:"tool_settings"`
	AgentSettings       AgentSettings       `json:"agent_settings"`
	ContextWindowConfig ContextWindowConfig `json:"context_window_config"`
}

// SummaryRecord is the structured-output shape produced by the summary task.
type SummaryRecord struct {
	Summary string   `json:"summary"`
	Topics  []string `json:"topics"`
}

// Document is the on-disk representation of a single session (spec.md §6.4).
type Document struct {
	Metadata Metadata  `json:"metadata"`
	Messages []Message `json:"messages"`
}

// Touch advances UpdatedAt and recomputes MessageCount from the message list.
func (d *Document) Touch(now time.Time) {
	d.Metadata.MessageCount = len(d.Messages)
	d.Metadata.UpdatedAt = now
}

// Summary is a lightweight listing record (spec.md §4.2 list operation).
type Summary struct {
	SessionID string    `json:"session_id"`
	Model     string    `json:"model"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedAt time.Time `json:"created_at"`
	Preview   string    `json:"preview"`
}
