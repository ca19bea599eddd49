package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lennartpollvogt/mochi-server/internal/store"
	"github.com/lennartpollvogt/mochi-server/pkg/types"
)

type createSessionRequest struct {
	Model               string              `json:"model"`
	SystemPrompt        string              `json:"system_prompt,omitempty"`
	SystemPromptSource  *string             `json:"system_prompt_source,omitempty"`
	ToolSettings        *types.ToolSettings `json:"tool_settings,omitempty"`
	AgentSettings       *types.AgentSettings `json:"agent_settings,omitempty"`
}

// createSession creates a session (spec.md §6.1 POST /sessions).
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, ErrCodeValidationError, "invalid request body", nil)
		return
	}
	if req.Model == "" {
		writeErrorCode(w, ErrCodeValidationError, "model is required", nil)
		return
	}

	var system *types.Message
	if req.SystemPrompt != "" {
		msg := types.NewSystemMessage(req.SystemPrompt, req.SystemPromptSource)
		system = &msg
	}

	doc, err := s.deps.Sessions.Create(req.Model, system)
	if err != nil {
		writeError(w, err)
		return
	}

	if req.ToolSettings != nil {
		doc.Metadata.ToolSettings = *req.ToolSettings
	}
	if req.AgentSettings != nil {
		doc.Metadata.AgentSettings = *req.AgentSettings
	}
	if req.ToolSettings != nil || req.AgentSettings != nil {
		if err := s.deps.Sessions.Put(doc); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, doc.Metadata)
}

// listSessions lists session summaries, optionally filtered by model
// (spec.md §6.1 GET /sessions, §4.2 list).
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.deps.Sessions.List()
	if err != nil {
		writeError(w, err)
		return
	}

	if model := r.URL.Query().Get("model"); model != "" {
		filtered := make([]types.Summary, 0, len(summaries))
		for _, sum := range summaries {
			if sum.Model == model {
				filtered = append(filtered, sum)
			}
		}
		summaries = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": summaries})
}

// getSession returns the full session document, metadata and messages
// together (spec.md §6.1 GET /sessions/{id}).
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	doc, err := s.loadSession(w, r)
	if err != nil {
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type patchSessionRequest struct {
	Model               *string                     `json:"model,omitempty"`
	ToolSettings        *types.ToolSettings          `json:"tool_settings,omitempty"`
	AgentSettings       *types.AgentSettings         `json:"agent_settings,omitempty"`
	ContextWindowConfig *types.ContextWindowConfig   `json:"context_window_config,omitempty"`
	Summary             *types.SummaryRecord         `json:"summary,omitempty"`
}

// patchSession applies a partial metadata update (spec.md §6.1 PATCH
// /sessions/{id}, §4.2 patch_metadata).
func (s *Server) patchSession(w http.ResponseWriter, r *http.Request) {
	doc, err := s.loadSession(w, r)
	if err != nil {
		return
	}

	var req patchSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, ErrCodeValidationError, "invalid request body", nil)
		return
	}

	if req.Model != nil {
		doc.Metadata.Model = *req.Model
	}
	if req.ToolSettings != nil {
		doc.Metadata.ToolSettings = *req.ToolSettings
	}
	if req.AgentSettings != nil {
		doc.Metadata.AgentSettings = *req.AgentSettings
	}
	if req.ContextWindowConfig != nil {
		doc.Metadata.ContextWindowConfig = *req.ContextWindowConfig
	}
	if req.Summary != nil {
		doc.Metadata.Summary = req.Summary
	}

	if err := s.deps.Sessions.Put(doc); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc.Metadata)
}

// deleteSession removes a session (spec.md §6.1 DELETE /sessions/{id}).
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.deps.Sessions.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	writeNoContent(w)
}

// getMessages returns a session's messages only (spec.md §6.1 GET
// /sessions/{id}/messages).
func (s *Server) getMessages(w http.ResponseWriter, r *http.Request) {
	doc, err := s.loadSession(w, r)
	if err != nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": s.deps.Sessions.GetMessages(doc)})
}

type editMessageRequest struct {
	Content string `json:"content"`
}

// editMessage replaces a user message's content and truncates the tail
// (spec.md §6.1 PUT /sessions/{id}/messages/{index}, §4.2 edit_message).
func (s *Server) editMessage(w http.ResponseWriter, r *http.Request) {
	doc, err := s.loadSession(w, r)
	if err != nil {
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeErrorCode(w, ErrCodeInvalidMessageIndex, "index must be an integer", nil)
		return
	}

	var req editMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, ErrCodeValidationError, "invalid request body", nil)
		return
	}

	if err := s.deps.Sessions.EditMessage(doc, index, req.Content); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type systemPromptRequest struct {
	Content string  `json:"content"`
	Source  *string `json:"source,omitempty"`
}

// setSystemPrompt sets or replaces the session's system message (spec.md
// §6.1 PUT /sessions/{id}/system-prompt, §4.2 set_system_message).
func (s *Server) setSystemPrompt(w http.ResponseWriter, r *http.Request) {
	doc, err := s.loadSession(w, r)
	if err != nil {
		return
	}

	var req systemPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, ErrCodeValidationError, "invalid request body", nil)
		return
	}

	if err := s.deps.Sessions.SetSystemMessage(doc, req.Content, req.Source); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// removeSystemPrompt removes the session's system message, if present
// (spec.md §6.1 DELETE /sessions/{id}/system-prompt).
func (s *Server) removeSystemPrompt(w http.ResponseWriter, r *http.Request) {
	doc, err := s.loadSession(w, r)
	if err != nil {
		return
	}
	if err := s.deps.Sessions.RemoveSystemMessage(doc); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// getSessionStatus returns the aggregated status block spec.md §6.1 names:
// model, message count, tool/agent settings, and context-window state, the
// fields a client needs to render a session's live configuration without
// loading every message.
func (s *Server) getSessionStatus(w http.ResponseWriter, r *http.Request) {
	doc, err := s.loadSession(w, r)
	if err != nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":            doc.Metadata.SessionID,
		"model":                 doc.Metadata.Model,
		"message_count":         doc.Metadata.MessageCount,
		"tool_settings":         doc.Metadata.ToolSettings,
		"agent_settings":        doc.Metadata.AgentSettings,
		"context_window_config": doc.Metadata.ContextWindowConfig,
	})
}

type summarizeRequest struct {
	Model string `json:"model,omitempty"`
}

// forceSummarize runs the Summary Task immediately, ignoring the global
// enabled toggle (spec.md §6.1 POST /sessions/{id}/summarize: "Force
// summary").
func (s *Server) forceSummarize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if _, err := s.deps.Sessions.Get(id); err != nil {
		writeError(w, err)
		return
	}

	var req summarizeRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if s.deps.Summarizer != nil {
		s.deps.Summarizer.Schedule(id, true, req.Model)
	}
	writeJSON(w, http.StatusOK, map[string]any{"scheduled": true})
}

// getSummary returns a session's current summary, if any (spec.md §6.1 GET
// /sessions/{id}/summary).
func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	doc, err := s.loadSession(w, r)
	if err != nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":       doc.Metadata.Summary,
		"summary_model": doc.Metadata.SummaryModel,
	})
}

// loadSession resolves the sessionID URL parameter, writing the error
// envelope itself on failure so handlers can early-return on a non-nil err.
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*types.Document, error) {
	id := chi.URLParam(r, "sessionID")
	doc, err := s.deps.Sessions.Get(id)
	if err != nil {
		if err == store.ErrNotFound {
			writeErrorCode(w, ErrCodeSessionNotFound, err.Error(), nil)
		} else {
			writeError(w, err)
		}
		return nil, err
	}
	return doc, nil
}
