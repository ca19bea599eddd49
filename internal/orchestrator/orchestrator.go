package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lennartpollvogt/mochi-server/internal/agent"
	"github.com/lennartpollvogt/mochi-server/internal/confirm"
	"github.com/lennartpollvogt/mochi-server/internal/ctxwindow"
	"github.com/lennartpollvogt/mochi-server/internal/event"
	"github.com/lennartpollvogt/mochi-server/internal/store"
	"github.com/lennartpollvogt/mochi-server/internal/summary"
	"github.com/lennartpollvogt/mochi-server/internal/tool"
	"github.com/lennartpollvogt/mochi-server/internal/upstream"
	"github.com/lennartpollvogt/mochi-server/internal/workerpool"
	"github.com/lennartpollvogt/mochi-server/pkg/types"
)

// DefaultMaxToolIterations bounds step 3's re-entry loop (spec.md §4.7:
// "a configurable maximum, default 10, to prevent runaway tool loops").
const DefaultMaxToolIterations = 10

// DefaultConfirmationTimeout is the per-call confirmation deadline handed
// to the Broker when none is configured (spec.md §4.6).
const DefaultConfirmationTimeout = 30 * time.Second

// Orchestrator runs one client turn at a time per session (spec.md §4.7),
// wiring together every collaborator named in the algorithm: the session
// store, the context-window planner, the upstream client, the tool and
// agent registries, the confirmation broker, and the event bus that the SSE
// layer subscribes to.
type Orchestrator struct {
	sessions   *store.Store
	upstream   *upstream.Client
	tools      *tool.Registry
	agents     *agent.Registry
	agentOrch  *agent.Orchestrator
	confirm    *confirm.Broker
	bus        *event.Bus
	pool       *workerpool.Pool
	summarizer *summary.Task
	log        zerolog.Logger

	maxToolIterations    int
	confirmationTimeout  time.Duration
	summarizationEnabled bool

	locks *sessionLocks
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithMaxToolIterations overrides DefaultMaxToolIterations.
func WithMaxToolIterations(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxToolIterations = n
		}
	}
}

// WithConfirmationTimeout overrides DefaultConfirmationTimeout.
func WithConfirmationTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.confirmationTimeout = d
		}
	}
}

// WithSummarizationEnabled wires the server's global summarization toggle
// (spec.md §6.5 configuration) into the post-turn scheduling decision.
func WithSummarizationEnabled(enabled bool) Option {
	return func(o *Orchestrator) { o.summarizationEnabled = enabled }
}

// WithLogger overrides the no-op default logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// New constructs an Orchestrator. summarizer may be nil, in which case the
// Summary Task is never scheduled (used by tests that don't exercise it).
func New(
	sessions *store.Store,
	client *upstream.Client,
	tools *tool.Registry,
	agents *agent.Registry,
	agentOrch *agent.Orchestrator,
	confirmBroker *confirm.Broker,
	bus *event.Bus,
	pool *workerpool.Pool,
	summarizer *summary.Task,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		sessions:             sessions,
		upstream:             client,
		tools:                tools,
		agents:               agents,
		agentOrch:            agentOrch,
		confirm:              confirmBroker,
		bus:                  bus,
		pool:                 pool,
		summarizer:           summarizer,
		log:                  zerolog.Nop(),
		maxToolIterations:    DefaultMaxToolIterations,
		confirmationTimeout:  DefaultConfirmationTimeout,
		summarizationEnabled: true,
		locks:                newSessionLocks(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Input is the entry contract for one turn (spec.md §4.7).
type Input struct {
	SessionID string
	// UserMessage is nil for a regeneration from existing history.
	UserMessage *string
	Think       bool
}

// Run executes the full streaming algorithm (spec.md §4.7). Every step is
// published on the event bus; the SSE layer subscribes per session and
// translates event.EventType into the wire event catalog (§6.3). A non-nil
// return is always a pre-stream error (SESSION_NOT_FOUND, VALIDATION_ERROR,
// MODEL_NOT_FOUND, or an upstream failure on the very first call); once
// streaming has begun, failures are published as a turn.error event
// followed by turn.done and Run returns nil.
func (o *Orchestrator) Run(ctx context.Context, in Input) error {
	doc, err := o.sessions.Get(in.SessionID)
	if err != nil {
		return err
	}

	if in.UserMessage != nil {
		if err := o.sessions.AppendMessage(doc, types.NewUserMessage(*in.UserMessage)); err != nil {
			return fmt.Errorf("orchestrator: append user message: %w", err)
		}
	} else if len(doc.Messages) == 0 {
		return ErrValidation
	}

	unlock := o.locks.Lock(doc.Metadata.SessionID)
	defer unlock()

	model, err := o.upstream.GetModel(ctx, doc.Metadata.Model)
	if err != nil {
		return err
	}

	streamStarted := false

	for reentry := 0; reentry < o.maxToolIterations; reentry++ {
		numCtx, _ := ctxwindow.Plan(model.MaxContext, doc.Metadata.Model, len(doc.Messages), &doc.Metadata.ContextWindowConfig, lastUsage(doc))
		if err := o.sessions.Put(doc); err != nil {
			return err
		}

		req := upstream.ChatRequest{
			Model:    doc.Metadata.Model,
			Messages: toChatMessages(doc.Messages),
			Tools:    o.resolveToolSchemas(doc.Metadata),
			Think:    in.Think,
			NumCtx:   &numCtx,
		}

		stream, err := o.upstream.ChatStream(ctx, req)
		if err != nil {
			if !streamStarted {
				return err
			}
			o.emitError(doc.Metadata.SessionID, err)
			return nil
		}

		content, calls, evalCount, promptEvalCount, disconnected, recvErr := o.consumeStream(ctx, stream, doc.Metadata.SessionID, in.Think, &streamStarted)
		stream.Close()

		if recvErr != nil {
			o.emitError(doc.Metadata.SessionID, recvErr)
			return nil
		}

		if disconnected || len(calls) == 0 {
			msg := types.NewAssistantMessage(content, doc.Metadata.Model, evalCount, promptEvalCount, nil)
			if err := o.sessions.AppendMessage(doc, msg); err != nil {
				return err
			}
			o.bus.Publish(event.Event{
				Type: event.MessageComplete,
				Data: event.MessageCompleteData{
					SessionID:     doc.Metadata.SessionID,
					Message:       &msg,
					ContextWindow: doc.Metadata.ContextWindowConfig.CurrentWindow,
				},
			})
			o.bus.Publish(event.Event{Type: event.TurnDone, Data: event.TurnDoneData{SessionID: doc.Metadata.SessionID}})
			o.scheduleSummary(doc)
			return nil
		}

		toolCalls := make([]types.ToolCall, len(calls))
		for i, c := range calls {
			toolCalls[i] = types.ToolCall{Name: c.Name, Arguments: c.Arguments}
		}
		if err := o.sessions.AppendMessage(doc, types.NewAssistantMessage(content, doc.Metadata.Model, evalCount, promptEvalCount, toolCalls)); err != nil {
			return err
		}

		for idx, call := range calls {
			result, _ := o.handleToolCall(ctx, doc, call, idx)
			if err := o.sessions.AppendMessage(doc, types.NewToolMessage(call.Name, result)); err != nil {
				return err
			}
		}

		o.bus.Publish(event.Event{
			Type: event.ToolContinuationStart,
			Data: event.ToolContinuationStartData{SessionID: doc.Metadata.SessionID, Message: "continuing with tool results"},
		})
		streamStarted = true
	}

	// The re-entry bound is a runaway-loop guard, not a failure condition:
	// finalize the turn with whatever has been committed so far.
	o.bus.Publish(event.Event{Type: event.TurnDone, Data: event.TurnDoneData{SessionID: doc.Metadata.SessionID}})
	return nil
}

// consumeStream drains s to completion (or cancellation), publishing a
// message.delta event per non-empty chunk. A cancelled ctx is treated as a
// client disconnection: consumption stops and the accumulated content is
// returned for the caller to commit (spec.md §4.7 step 4, §5).
func (o *Orchestrator) consumeStream(ctx context.Context, s *upstream.Stream, sessionID string, think bool, streamStarted *bool) (content string, calls []upstream.ToolCall, evalCount, promptEvalCount int, disconnected bool, err error) {
	var b strings.Builder
	for {
		select {
		case <-ctx.Done():
			return b.String(), calls, evalCount, promptEvalCount, true, nil
		default:
		}

		chunk, rerr := s.Recv()
		if rerr != nil {
			if upstream.IsStreamDone(rerr) {
				break
			}
			return b.String(), calls, evalCount, promptEvalCount, false, rerr
		}

		if chunk.Content != "" {
			b.WriteString(chunk.Content)
			*streamStarted = true
			o.bus.Publish(event.Event{
				Type: event.MessageDelta,
				Data: event.MessageDeltaData{SessionID: sessionID, Content: chunk.Content},
			})
		}
		if think && chunk.Thinking != "" {
			*streamStarted = true
			o.bus.Publish(event.Event{
				Type: event.MessageDelta,
				Data: event.MessageDeltaData{SessionID: sessionID, Thinking: chunk.Thinking},
			})
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
	return b.String(), calls, evalCount, promptEvalCount, false, nil
}

// handleToolCall executes (or delegates, or confirms) a single tool call
// and returns the string coerced into the following tool message (spec.md
// §4.7 step 5 tie-break: "Tool results are always coerced to strings;
// errors become strings of form Error: {message}").
func (o *Orchestrator) handleToolCall(ctx context.Context, doc *types.Document, call upstream.ToolCall, callIndex int) (result string, denied bool) {
	sessionID := doc.Metadata.SessionID

	if call.Name == agent.SyntheticToolName {
		return o.delegateToAgent(ctx, doc, call), false
	}

	t, ok := o.tools.Get(call.Name)
	if !ok {
		return fmt.Sprintf("Error: tool not found: %s", call.Name), false
	}

	if o.needsConfirmation(doc.Metadata.ToolSettings.Policy, t.Destructive()) {
		id := o.confirm.Register(o.confirmationTimeout)
		o.bus.Publish(event.Event{
			Type: event.ConfirmationRequired,
			Data: event.ConfirmationRequiredData{SessionID: sessionID, ConfirmationID: id, ToolName: call.Name, Arguments: call.Arguments, CallIndex: callIndex},
		})

		decision, _ := o.confirm.Await(ctx, id)
		o.bus.Publish(event.Event{
			Type: event.ConfirmationResolved,
			Data: event.ConfirmationResolvedData{SessionID: sessionID, ConfirmationID: id, Approved: decision.Approved},
		})

		if !decision.Approved {
			message := "denied by user"
			if decision.Reason == confirm.ReasonTimeout {
				message = "timeout"
			}
			o.bus.Publish(event.Event{
				Type: event.ToolCallComplete,
				Data: event.ToolCallCompleteData{SessionID: sessionID, CallIndex: callIndex, Name: call.Name, Success: false, ErrorMessage: message},
			})
			return fmt.Sprintf("Error: %s", message), true
		}
	}

	o.bus.Publish(event.Event{
		Type: event.ToolCallStarted,
		Data: event.ToolCallStartedData{SessionID: sessionID, CallIndex: callIndex, Name: call.Name, Arguments: call.Arguments},
	})

	args, err := json.Marshal(call.Arguments)
	if err != nil {
		o.bus.Publish(event.Event{
			Type: event.ToolCallComplete,
			Data: event.ToolCallCompleteData{SessionID: sessionID, CallIndex: callIndex, Name: call.Name, Success: false, ErrorMessage: err.Error()},
		})
		return fmt.Sprintf("Error: %s", err), false
	}

	toolCtx := &tool.Context{SessionID: sessionID, CallID: fmt.Sprintf("%d", callIndex), Bus: o.bus}

	res, execErr := o.runToolViaPool(ctx, func() (*tool.Result, error) {
		return t.Execute(ctx, args, toolCtx)
	})
	if execErr != nil {
		o.bus.Publish(event.Event{
			Type: event.ToolCallComplete,
			Data: event.ToolCallCompleteData{SessionID: sessionID, CallIndex: callIndex, Name: call.Name, Success: false, ErrorMessage: execErr.Error()},
		})
		return fmt.Sprintf("Error: %s", execErr), false
	}

	o.bus.Publish(event.Event{
		Type: event.ToolCallComplete,
		Data: event.ToolCallCompleteData{SessionID: sessionID, CallIndex: callIndex, Name: call.Name, Success: true, Output: res.Output},
	})
	return res.Output, false
}

// delegateToAgent forwards a call to the `agent` synthetic tool into the
// Agent Sub-Orchestrator (spec.md §4.7 step 5, §4.4).
func (o *Orchestrator) delegateToAgent(ctx context.Context, doc *types.Document, call upstream.ToolCall) string {
	if o.agentOrch == nil {
		return "Error: agent delegation is not configured"
	}
	name, _ := call.Arguments["agent"].(string)
	instruction, _ := call.Arguments["instruction"].(string)
	sessionID, _ := call.Arguments["session_id"].(string)

	result, err := o.agentOrch.Run(ctx, agent.Input{
		AgentName:   name,
		Instruction: instruction,
		SessionID:   sessionID,
		Model:       doc.Metadata.Model,
	})
	if err != nil {
		return fmt.Sprintf("Error: %s", err)
	}
	return result.Output
}

// needsConfirmation applies the execution policy (spec.md §4.7 step 5).
func (o *Orchestrator) needsConfirmation(policy types.ExecutionPolicy, destructive bool) bool {
	switch policy {
	case types.PolicyNeverConfirm:
		return false
	case types.PolicyConfirmDestructive:
		return destructive
	default:
		return true
	}
}

// runToolViaPool dispatches fn onto the worker pool so a slow tool never
// stalls the cooperative scheduler (spec.md §5), while keeping this turn's
// tool calls serialized in the order the upstream requested them.
func (o *Orchestrator) runToolViaPool(ctx context.Context, fn func() (*tool.Result, error)) (*tool.Result, error) {
	type outcome struct {
		res *tool.Result
		err error
	}
	ch := make(chan outcome, 1)
	o.pool.Submit(func() {
		res, err := fn()
		ch <- outcome{res, err}
	})
	select {
	case out := <-ch:
		return out.res, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolveToolSchemas builds the tool schema list sent upstream (spec.md
// §4.7 step 3: enabled tools plus, if any agents are enabled, the synthetic
// agent schema).
func (o *Orchestrator) resolveToolSchemas(md types.Metadata) []upstream.ToolSchema {
	if len(md.ToolSettings.Enabled) == 0 {
		return nil
	}
	schemas := o.tools.Schemas(md.ToolSettings.Enabled)
	out := make([]upstream.ToolSchema, 0, len(schemas)+1)
	for _, s := range schemas {
		out = append(out, upstream.ToolSchema{Name: s.Name, Description: s.Description, Parameters: s.Parameters})
	}
	if len(md.AgentSettings.Enabled) > 0 && o.agents != nil {
		synth := o.agents.SyntheticTool(md.AgentSettings.Enabled)
		out = append(out, upstream.ToolSchema{Name: synth.Name, Description: synth.Description, Parameters: synth.Parameters})
	}
	return out
}

// emitError reifies a mid-stream failure as the error/done event pair
// (spec.md §7 propagation policy).
func (o *Orchestrator) emitError(sessionID string, err error) {
	code, message := Classify(err)
	o.bus.Publish(event.Event{Type: event.TurnError, Data: event.TurnErrorData{SessionID: sessionID, Code: code, Message: message}})
	o.bus.Publish(event.Event{Type: event.TurnDone, Data: event.TurnDoneData{SessionID: sessionID}})
}

// scheduleSummary enqueues the best-effort Summary Task after a normal
// completion (spec.md §4.7 step 7, §4.9).
func (o *Orchestrator) scheduleSummary(doc *types.Document) {
	if o.summarizer == nil {
		return
	}
	o.summarizer.Schedule(doc.Metadata.SessionID, o.summarizationEnabled, "")
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

func lastUsage(doc *types.Document) *ctxwindow.Usage {
	for i := len(doc.Messages) - 1; i >= 0; i-- {
		if doc.Messages[i].Role == types.RoleAssistant {
			m := doc.Messages[i]
			return &ctxwindow.Usage{PromptEvalCount: m.PromptEvalCount, EvalCount: m.EvalCount}
		}
	}
	return nil
}
