package event

import "github.com/lennartpollvogt/mochi-server/pkg/types"

// SessionCreatedData is the payload of a session.created event.
type SessionCreatedData struct {
	Info *types.Metadata `json:"info"`
}

// SessionUpdatedData is the payload of a session.updated event.
type SessionUpdatedData struct {
	Info *types.Metadata `json:"info"`
}

// SessionDeletedData is the payload of a session.deleted event.
type SessionDeletedData struct {
	SessionID string `json:"sessionID"`
}

// MessageCreatedData is the payload of a message.created event.
type MessageCreatedData struct {
	SessionID string        `json:"sessionID"`
	Message   *types.Message `json:"message"`
}

// MessageDeltaData carries an incremental content chunk for the SSE
// message.delta event (spec.md §6.3).
type MessageDeltaData struct {
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	Content   string `json:"content,omitempty"`
	Thinking  string `json:"thinking,omitempty"`
}

// MessageCompleteData is the payload of a message.complete event.
type MessageCompleteData struct {
	SessionID     string         `json:"sessionID"`
	Message       *types.Message `json:"message"`
	ContextWindow int            `json:"contextWindow"`
}

// ToolCallStartedData is the payload of a tool.call.started event
// (wire event tool_call, spec.md §6.3).
type ToolCallStartedData struct {
	SessionID string         `json:"sessionID"`
	CallID    string         `json:"callID"`
	CallIndex int            `json:"callIndex"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolCallCompleteData is the payload of a tool.call.complete event
// (wire event tool_result, spec.md §6.3).
type ToolCallCompleteData struct {
	SessionID    string `json:"sessionID"`
	CallID       string `json:"callID"`
	CallIndex    int    `json:"callIndex"`
	Name         string `json:"name"`
	Success      bool   `json:"success"`
	Output       string `json:"output"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// ConfirmationRequiredData is the payload of a confirmation.required event
// (wire event tool_call_confirmation_required, spec.md §6.3).
type ConfirmationRequiredData struct {
	SessionID      string         `json:"sessionID"`
	ConfirmationID string         `json:"confirmationID"`
	ToolName       string         `json:"toolName"`
	Arguments      map[string]any `json:"arguments"`
	CallIndex      int            `json:"callIndex"`
	Reason         string         `json:"reason"`
}

// ToolContinuationStartData is the payload of a tool.continuation.start
// event, published once every tool call in a batch has resolved and the
// turn is about to re-enter the upstream call with the extended history
// (wire event tool_continuation_start, spec.md §6.3).
type ToolContinuationStartData struct {
	SessionID string `json:"sessionID"`
	Message   string `json:"message"`
}

// TurnDoneData is the payload of a turn.done event, the terminal event of
// every turn on both the happy and error paths (wire event done, spec.md
// §6.3).
type TurnDoneData struct {
	SessionID string `json:"sessionID"`
}

// ConfirmationResolvedData is the payload of a confirmation.resolved event.
type ConfirmationResolvedData struct {
	SessionID      string `json:"sessionID"`
	ConfirmationID string `json:"confirmationID"`
	Approved       bool   `json:"approved"`
}

// FileEditedData is the payload of a file.edited event, published whenever
// a tool call writes to the filesystem.
type FileEditedData struct {
	File string `json:"file"`
}

// TurnErrorData is the payload of a turn.error event.
type TurnErrorData struct {
	SessionID string         `json:"sessionID"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// AgentStartedData is the payload of an agent.started event.
type AgentStartedData struct {
	AgentName   string `json:"agentName"`
	Instruction string `json:"instruction"`
}

// AgentDeltaData carries an incremental planning/execution content chunk for
// the agent.planning.delta and agent.execution.delta events.
type AgentDeltaData struct {
	AgentName string `json:"agentName"`
	Content   string `json:"content"`
}

// AgentToolCallStartedData is the payload of an agent.tool.call.started
// event, emitted by the agent sub-orchestrator's execution phase.
type AgentToolCallStartedData struct {
	AgentName string         `json:"agentName"`
	ToolName  string         `json:"toolName"`
	Arguments map[string]any `json:"arguments"`
}

// AgentToolCallCompleteData is the payload of an agent.tool.call.complete
// event.
type AgentToolCallCompleteData struct {
	AgentName string `json:"agentName"`
	ToolName  string `json:"toolName"`
	Success   bool   `json:"success"`
	Result    string `json:"result"`
}

// AgentCompleteData is the payload of an agent.complete event.
type AgentCompleteData struct {
	AgentName string `json:"agentName"`
	SessionID string `json:"sessionID"`
	Output    string `json:"output"`
}
