package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/lennartpollvogt/mochi-server/internal/event"
	"github.com/lennartpollvogt/mochi-server/internal/store"
	"github.com/lennartpollvogt/mochi-server/internal/tool"
	"github.com/lennartpollvogt/mochi-server/internal/upstream"
	"github.com/lennartpollvogt/mochi-server/pkg/types"
)

// DefaultMaxIterations bounds the execution phase's tool-calling loop
// (spec.md §4.4: "A configurable maximum iteration count bounds the loop").
const DefaultMaxIterations = 10

const planningDirective = "Based on the conversation so far, describe your plan for carrying out the instruction. Do not call any tools in this response."

const executionDirective = "Carry out the plan using the available tools as needed. Respond with no tool calls once the instruction is fully complete."

// Orchestrator drives the two-phase agent sub-orchestrator (spec.md §4.4),
// grounded in the teacher's internal/executor/subagent.go child-session run,
// restructured around this project's event catalog and message model rather
// than eino's schema.Message / session.Processor.
type Orchestrator struct {
	registry      *Registry
	sessions      *store.Store
	upstream      *upstream.Client
	bus           *event.Bus
	maxIterations int
}

// NewOrchestrator constructs an Orchestrator. sessions must be a Store
// rooted at the agent-chats namespace (spec.md §3: "Agents have a parallel
// session space with identical schema but a separate namespace on disk").
func NewOrchestrator(registry *Registry, sessions *store.Store, client *upstream.Client, bus *event.Bus) *Orchestrator {
	return &Orchestrator{
		registry:      registry,
		sessions:      sessions,
		upstream:      client,
		bus:           bus,
		maxIterations: DefaultMaxIterations,
	}
}

// ErrAgentNotFound is returned by Run when the named agent has no valid
// Definition (AGENT_NOT_FOUND, spec.md §6.2).
var ErrAgentNotFound = fmt.Errorf("agent not found")

// Input is the parameter set for a single agent delegation, equivalent to
// the arguments of the synthetic `agent` tool call.
type Input struct {
	AgentName   string
	Instruction string
	SessionID   string // optional: continue a prior agent conversation
	Model       string // fallback model when the agent's skill document names none
}

// Result is what the synthetic `agent` tool call resolves to: a rendered
// transcript handed back to the outer orchestrator as the tool result
// string (spec.md §4.4).
type Result struct {
	SessionID string
	Output    string
}

// Run executes the full planning+execution cycle for one delegation.
func (o *Orchestrator) Run(ctx context.Context, in Input) (*Result, error) {
	def, ok := o.registry.Get(in.AgentName)
	if !ok {
		return nil, ErrAgentNotFound
	}

	model := def.Model
	if model == "" {
		model = in.Model
	}

	doc, err := o.loadOrCreateSession(in.SessionID, model)
	if err != nil {
		return nil, fmt.Errorf("agent: load session: %w", err)
	}

	source := def.Dir + "/SKILL.md"
	prompt := def.Prompt
	if raw, err := os.ReadFile(source); err == nil {
		if _, body, err := parseSkillDocument(raw); err == nil {
			prompt = body
		}
	}
	if err := o.sessions.SetSystemMessage(doc, prompt, &source); err != nil {
		return nil, fmt.Errorf("agent: refresh system message: %w", err)
	}

	if err := o.sessions.AppendMessage(doc, types.NewUserMessage(in.Instruction)); err != nil {
		return nil, fmt.Errorf("agent: append instruction: %w", err)
	}
	transcriptStart := len(doc.Messages)

	o.bus.Publish(event.Event{
		Type: event.AgentStarted,
		Data: event.AgentStartedData{AgentName: def.Name, Instruction: in.Instruction},
	})

	if err := o.plan(ctx, def, doc, model); err != nil {
		return nil, fmt.Errorf("agent: planning: %w", err)
	}

	if err := o.execute(ctx, def, doc, model); err != nil {
		return nil, fmt.Errorf("agent: execution: %w", err)
	}

	output := renderOutput(doc.Metadata.SessionID, doc.Messages[transcriptStart:])

	o.bus.Publish(event.Event{
		Type: event.AgentComplete,
		Data: event.AgentCompleteData{AgentName: def.Name, SessionID: doc.Metadata.SessionID, Output: output},
	})

	return &Result{SessionID: doc.Metadata.SessionID, Output: output}, nil
}

// loadOrCreateSession loads sessionID if non-empty and present; otherwise
// (including when sessionID names a session that no longer exists) it
// creates a fresh one (spec.md §8 boundary behavior).
func (o *Orchestrator) loadOrCreateSession(sessionID, model string) (*types.Document, error) {
	if sessionID != "" {
		doc, err := o.sessions.Get(sessionID)
		if err == nil {
			return doc, nil
		}
		if err != store.ErrNotFound {
			return nil, err
		}
	}
	return o.sessions.Create(model, nil)
}

// plan runs the planning phase: one tool-free streaming call whose content
// is persisted as a single assistant message and whose deltas are emitted as
// agent.planning.delta events.
func (o *Orchestrator) plan(ctx context.Context, def *Definition, doc *types.Document, model string) error {
	messages := toChatMessages(doc.Messages)
	messages = append(messages, upstream.ChatMessage{Role: "system", Content: planningDirective})

	content, _, evalCount, promptEvalCount, err := o.stream(ctx, upstream.ChatRequest{
		Model:    model,
		Messages: messages,
	}, func(delta string) {
		o.bus.Publish(event.Event{
			Type: event.AgentPlanningDelta,
			Data: event.AgentDeltaData{AgentName: def.Name, Content: delta},
		})
	})
	if err != nil {
		return err
	}

	return o.sessions.AppendMessage(doc, types.NewAssistantMessage(content, model, evalCount, promptEvalCount, nil))
}

// execute runs the bounded tool-calling loop (spec.md §4.4 step 2).
func (o *Orchestrator) execute(ctx context.Context, def *Definition, doc *types.Document, model string) error {
	toolSchemas := toUpstreamTools(def.Tools.Schemas(nil))

	for iteration := 0; iteration < o.maxIterations; iteration++ {
		messages := toChatMessages(doc.Messages)
		messages = append(messages, upstream.ChatMessage{Role: "system", Content: executionDirective})

		content, calls, evalCount, promptEvalCount, err := o.stream(ctx, upstream.ChatRequest{
			Model:    model,
			Messages: messages,
			Tools:    toolSchemas,
		}, func(delta string) {
			o.bus.Publish(event.Event{
				Type: event.AgentExecutionDelta,
				Data: event.AgentDeltaData{AgentName: def.Name, Content: delta},
			})
		})
		if err != nil {
			return err
		}

		toolCalls := make([]types.ToolCall, len(calls))
		for i, c := range calls {
			toolCalls[i] = types.ToolCall{Name: c.Name, Arguments: c.Arguments}
		}
		if err := o.sessions.AppendMessage(doc, types.NewAssistantMessage(content, model, evalCount, promptEvalCount, toolCalls)); err != nil {
			return err
		}

		if len(calls) == 0 {
			if iteration == 0 {
				// A no-tool response on the first iteration is an
				// announcement, not completion (spec.md §4.4).
				continue
			}
			return nil
		}

		for _, call := range calls {
			if err := o.runTool(ctx, def, doc, call); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) runTool(ctx context.Context, def *Definition, doc *types.Document, call upstream.ToolCall) error {
	o.bus.Publish(event.Event{
		Type: event.AgentToolCallStarted,
		Data: event.AgentToolCallStartedData{AgentName: def.Name, ToolName: call.Name, Arguments: call.Arguments},
	})

	t, ok := def.Tools.Get(call.Name)
	if !ok {
		msg := fmt.Sprintf("tool not found: %s", call.Name)
		o.bus.Publish(event.Event{
			Type: event.AgentToolCallComplete,
			Data: event.AgentToolCallCompleteData{AgentName: def.Name, ToolName: call.Name, Success: false, Result: msg},
		})
		return o.sessions.AppendMessage(doc, types.NewToolMessage(call.Name, msg))
	}

	args, err := json.Marshal(call.Arguments)
	if err != nil {
		return fmt.Errorf("agent: marshal tool arguments: %w", err)
	}

	toolCtx := &tool.Context{
		SessionID: doc.Metadata.SessionID,
		Agent:     def.Name,
		WorkDir:   def.Dir,
		Bus:       o.bus,
	}

	res, err := t.Execute(ctx, args, toolCtx)
	success := err == nil
	output := ""
	if err != nil {
		output = err.Error()
	} else {
		output = res.Output
	}

	o.bus.Publish(event.Event{
		Type: event.AgentToolCallComplete,
		Data: event.AgentToolCallCompleteData{AgentName: def.Name, ToolName: call.Name, Success: success, Result: output},
	})

	return o.sessions.AppendMessage(doc, types.NewToolMessage(call.Name, output))
}

// stream drains a chat stream to completion, invoking onDelta for each
// non-empty content chunk and returning the accumulated content, the
// terminal chunk's tool calls, and the terminal chunk's usage counters.
func (o *Orchestrator) stream(ctx context.Context, req upstream.ChatRequest, onDelta func(string)) (string, []upstream.ToolCall, int, int, error) {
	s, err := o.upstream.ChatStream(ctx, req)
	if err != nil {
		return "", nil, 0, 0, err
	}
	defer s.Close()

	var content strings.Builder
	var calls []upstream.ToolCall
	var evalCount, promptEvalCount int

	for {
		chunk, err := s.Recv()
		if err != nil {
			if upstream.IsStreamDone(err) {
				break
			}
			return "", nil, 0, 0, err
		}
		if chunk.Content != "" {
			content.WriteString(chunk.Content)
			onDelta(chunk.Content)
		}
		if len(chunk.ToolCalls) > 0 {
			calls = chunk.ToolCalls
		}
		evalCount = chunk.EvalCount
		promptEvalCount = chunk.PromptEvalCount
		if chunk.Done {
			break
		}
	}

	return content.String(), calls, evalCount, promptEvalCount, nil
}

func toChatMessages(messages []types.Message) []upstream.ChatMessage {
	out := make([]upstream.ChatMessage, 0, len(messages))
	for _, m := range messages {
		cm := upstream.ChatMessage{Role: string(m.Role), Content: m.Content, ToolName: m.ToolName}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, upstream.ToolCall{Name: tc.Name, Arguments: tc.Arguments})
		}
		out = append(out, cm)
	}
	return out
}

func toUpstreamTools(schemas []tool.Schema) []upstream.ToolSchema {
	out := make([]upstream.ToolSchema, len(schemas))
	for i, s := range schemas {
		out[i] = upstream.ToolSchema{Name: s.Name, Description: s.Description, Parameters: s.Parameters}
	}
	return out
}

// renderOutput builds the deterministic transcript returned as the outer
// tool result (spec.md §4.4): "Session ID: {id}\n" followed by every
// message produced since the instruction was appended.
func renderOutput(sessionID string, messages []types.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session ID: %s\n", sessionID)
	for _, m := range messages {
		switch m.Role {
		case types.RoleAssistant:
			if m.Content != "" {
				fmt.Fprintf(&b, "Assistant: %s\n", m.Content)
			}
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Arguments)
				fmt.Fprintf(&b, "Tool call: %s(%s)\n", tc.Name, string(args))
			}
		case types.RoleTool:
			fmt.Fprintf(&b, "Tool result (%s): %s\n", m.ToolName, m.Content)
		}
	}
	return b.String()
}
