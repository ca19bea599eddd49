package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lennartpollvogt/mochi-server/internal/confirm"
	"github.com/lennartpollvogt/mochi-server/internal/orchestrator"
)

type chatRequest struct {
	Message *string `json:"message,omitempty"`
	Think   bool    `json:"think,omitempty"`
}

// chatNonStreaming runs one turn and returns its aggregated result (spec.md
// §6.1 POST /chat/{id}, §4.8).
func (s *Server) chatNonStreaming(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req chatRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorCode(w, ErrCodeValidationError, "invalid request body", nil)
			return
		}
	}

	result, err := s.deps.Orchestrator.RunNonStreaming(r.Context(), orchestrator.Input{
		SessionID:   sessionID,
		UserMessage: req.Message,
		Think:       req.Think,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type confirmToolRequest struct {
	ConfirmationID string `json:"confirmation_id"`
	Approved       bool   `json:"approved"`
}

// confirmTool resolves a pending tool-call confirmation (spec.md §6.1 POST
// /chat/{id}/confirm-tool, §4.6).
func (s *Server) confirmTool(w http.ResponseWriter, r *http.Request) {
	var req confirmToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, ErrCodeValidationError, "invalid request body", nil)
		return
	}
	if req.ConfirmationID == "" {
		writeErrorCode(w, ErrCodeValidationError, "confirmation_id is required", nil)
		return
	}

	switch s.deps.Confirm.Resolve(req.ConfirmationID, req.Approved) {
	case confirm.Resolved:
		writeJSON(w, http.StatusOK, map[string]any{"resolved": true})
	case confirm.AlreadyResolved:
		writeErrorCode(w, ErrCodeConfirmationConflict, "confirmation already resolved", nil)
	default:
		writeErrorCode(w, ErrCodeConfirmationNotFound, "unknown confirmation id", nil)
	}
}
