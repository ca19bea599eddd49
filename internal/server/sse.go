// Server-Sent Events support for the streaming chat turn (spec.md §6.3).
// Grounded in the teacher's internal/server/sse.go: the ResponseController-
// based flush-every-write pattern and the heartbeat ticker are kept
// verbatim; the SDKEvent{Type,Properties} wrapper and the event-type
// switch are replaced with a translation table from this project's
// event.EventType catalog to spec.md §6.3's flat, per-event wire names and
// payload shapes.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lennartpollvogt/mochi-server/internal/event"
	"github.com/lennartpollvogt/mochi-server/internal/orchestrator"
	"github.com/lennartpollvogt/mochi-server/internal/store"
)

// SSEHeartbeatInterval is the interval for SSE heartbeat comments, keeping
// idle connections alive through intermediary proxies.
const SSEHeartbeatInterval = 30 * time.Second

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	rc := http.NewResponseController(w)
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// wireEvent translates a bus event into the (name, payload) spec.md §6.3
// assigns it, or ok=false for event types with no SSE-visible counterpart.
func wireEvent(e event.Event) (name string, payload any, ok bool) {
	switch d := e.Data.(type) {
	case event.MessageDeltaData:
		if d.Thinking != "" {
			return "thinking_delta", map[string]any{"content": d.Thinking}, true
		}
		return "content_delta", map[string]any{"content": d.Content, "role": "assistant"}, true
	case event.ToolCallStartedData:
		return "tool_call", map[string]any{
			"tool_name":  d.Name,
			"arguments":  d.Arguments,
			"call_index": d.CallIndex,
		}, true
	case event.ConfirmationRequiredData:
		return "tool_call_confirmation_required", map[string]any{
			"tool_name":       d.ToolName,
			"arguments":       d.Arguments,
			"call_index":      d.CallIndex,
			"confirmation_id": d.ConfirmationID,
		}, true
	case event.ToolCallCompleteData:
		payload := map[string]any{
			"tool_name":  d.Name,
			"success":    d.Success,
			"result":     d.Output,
			"call_index": d.CallIndex,
		}
		if d.ErrorMessage != "" {
			payload["error_message"] = d.ErrorMessage
		}
		return "tool_result", payload, true
	case event.ToolContinuationStartData:
		return "tool_continuation_start", map[string]any{"message": d.Message}, true
	case event.AgentStartedData:
		return "agent_start", map[string]any{"agent_name": d.AgentName, "instruction": d.Instruction}, true
	case event.AgentDeltaData:
		// AgentDeltaData backs two distinct wire events distinguished only
		// by the bus event's own type (planning vs. execution).
		switch e.Type {
		case event.AgentPlanningDelta:
			return "agent_planning", map[string]any{"content": d.Content}, true
		case event.AgentExecutionDelta:
			return "agent_execution", map[string]any{"content": d.Content}, true
		}
		return "", nil, false
	case event.AgentToolCallStartedData:
		return "agent_tool_call", map[string]any{
			"agent_name": d.AgentName,
			"tool_name":  d.ToolName,
			"arguments":  d.Arguments,
		}, true
	case event.AgentToolCallCompleteData:
		return "agent_tool_result", map[string]any{
			"agent_name": d.AgentName,
			"tool_name":  d.ToolName,
			"success":    d.Success,
			"result":     d.Result,
		}, true
	case event.AgentCompleteData:
		return "agent_complete", map[string]any{
			"agent_name": d.AgentName,
			"session_id": d.SessionID,
			"output":     d.Output,
		}, true
	case event.MessageCompleteData:
		model, evalCount, promptEvalCount, messageID := "", 0, 0, ""
		if d.Message != nil {
			model = d.Message.Model
			evalCount = d.Message.EvalCount
			promptEvalCount = d.Message.PromptEvalCount
			messageID = d.Message.ID
		}
		return "message_complete", map[string]any{
			"message_id":        messageID,
			"model":             model,
			"eval_count":        evalCount,
			"prompt_eval_count": promptEvalCount,
			"context_window":    d.ContextWindow,
		}, true
	case event.TurnErrorData:
		return "error", map[string]any{"code": d.Code, "message": d.Message, "details": d.Details}, true
	case event.TurnDoneData:
		return "done", map[string]any{"session_id": d.SessionID}, true
	}

	return "", nil, false
}

func sessionIDOf(e event.Event) (string, bool) {
	switch d := e.Data.(type) {
	case event.MessageDeltaData:
		return d.SessionID, true
	case event.ToolCallStartedData:
		return d.SessionID, true
	case event.ConfirmationRequiredData:
		return d.SessionID, true
	case event.ToolCallCompleteData:
		return d.SessionID, true
	case event.ToolContinuationStartData:
		return d.SessionID, true
	case event.AgentCompleteData:
		return d.SessionID, true
	case event.MessageCompleteData:
		return d.SessionID, true
	case event.TurnErrorData:
		return d.SessionID, true
	case event.TurnDoneData:
		return d.SessionID, true
	}
	return "", false
}

// chatStream runs one turn while streaming every event it publishes to the
// client as SSE (spec.md §6.1 POST /chat/{id}/stream, §4.7). Pre-stream
// failures (session/model lookup) still short-circuit with an HTTP error
// envelope, matching the non-streaming path; once the first byte is
// written, failures are reified as the error/done event pair instead
// (spec.md §5 propagation policy).
func (s *Server) chatStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req chatRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorCode(w, ErrCodeValidationError, "invalid request body", nil)
			return
		}
	}

	if _, err := s.deps.Sessions.Get(sessionID); err != nil {
		if err == store.ErrNotFound {
			writeErrorCode(w, ErrCodeSessionNotFound, err.Error(), nil)
		} else {
			writeError(w, err)
		}
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeErrorCode(w, ErrCodeInternalError, err.Error(), nil)
		return
	}
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	events := make(chan event.Event, 32)
	unsub := s.deps.Bus.SubscribeAll(func(e event.Event) {
		if id, ok := sessionIDOf(e); !ok || id != sessionID {
			return
		}
		select {
		case events <- e:
		default:
			s.deps.Log.Warn().Str("event_type", string(e.Type)).Msg("sse event dropped: channel full")
		}
	})
	defer unsub()

	ctx := r.Context()
	runErr := make(chan error, 1)
	go func() {
		runErr <- s.deps.Orchestrator.Run(ctx, orchestrator.Input{
			SessionID:   sessionID,
			UserMessage: req.Message,
			Think:       req.Think,
		})
	}()

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	done := false
	for !done {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			name, payload, ok := wireEvent(e)
			if !ok {
				continue
			}
			if err := sse.writeEvent(name, payload); err != nil {
				return
			}
			if e.Type == event.TurnDone {
				done = true
			}
		case err := <-runErr:
			if err != nil {
				code, message := orchestrator.Classify(err)
				_ = sse.writeEvent("error", map[string]any{"code": code, "message": message})
				_ = sse.writeEvent("done", map[string]any{"session_id": sessionID})
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}
