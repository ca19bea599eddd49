package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lennartpollvogt/mochi-server/internal/store"
)

// listPrompts lists every stored system prompt (spec.md §6.1
// "/system-prompts[...]" collaborator).
func (s *Server) listPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := s.prompts.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompts": prompts})
}

type promptRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// createPrompt adds a new named system prompt.
func (s *Server) createPrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, ErrCodeValidationError, "invalid request body", nil)
		return
	}
	if req.Name == "" {
		writeErrorCode(w, ErrCodeValidationError, "name is required", nil)
		return
	}
	if err := s.prompts.Create(req.Name, req.Content); err != nil {
		writeErrorCode(w, ErrCodeValidationError, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusCreated, Prompt{Name: req.Name, Content: req.Content})
}

// putPrompt replaces an existing prompt's content by name.
func (s *Server) putPrompt(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, ErrCodeValidationError, "invalid request body", nil)
		return
	}
	if err := s.prompts.Put(name, req.Content); err != nil {
		if err == ErrPromptNotFound {
			writeErrorCode(w, ErrCodePromptNotFound, err.Error(), nil)
		} else {
			writeErrorCode(w, ErrCodeValidationError, err.Error(), nil)
		}
		return
	}
	writeJSON(w, http.StatusOK, Prompt{Name: name, Content: req.Content})
}

// deletePrompt removes a prompt by name.
func (s *Server) deletePrompt(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.prompts.Delete(name); err != nil {
		if err == ErrPromptNotFound {
			writeErrorCode(w, ErrCodePromptNotFound, err.Error(), nil)
		} else {
			writeError(w, err)
		}
		return
	}
	writeNoContent(w)
}

// listTools lists every registered tool (spec.md §6.1 "/tools[...]"
// collaborator).
func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.deps.Tools.Schemas(nil)})
}

// reloadTools re-scans the tool manifest directory (spec.md §4.3: "writes
// take an exclusive lock and swap the table atomically").
func (s *Server) reloadTools(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Tools.LoadManifests(s.deps.Settings.Paths().Tools); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.deps.Tools.Names()})
}

// listAgents lists every valid agent definition plus the directories that
// failed to load (spec.md §4.4: "Invalid agents are reported but never
// executed").
func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	defs := s.deps.Agents.List()
	agents := make([]map[string]any, 0, len(defs))
	for _, d := range defs {
		agents = append(agents, map[string]any{
			"name":        d.Name,
			"description": d.Description,
			"model":       d.Model,
			"tools":       d.Tools.Names(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agents":  agents,
		"invalid": s.deps.Agents.Invalid(),
	})
}

// reloadAgents re-scans the agents root directory.
func (s *Server) reloadAgents(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Agents.Load(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agents":  s.deps.Agents.Names(),
		"invalid": s.deps.Agents.Invalid(),
	})
}

// getAgentSession inspects one agent's private sub-session, stored in the
// agent-chats directory under the same document shape the top-level
// session store uses (spec.md §6.1 "agent-session inspection").
func (s *Server) getAgentSession(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.deps.Agents.Get(name); !ok {
		writeErrorCode(w, ErrCodeAgentNotFound, "unknown agent: "+name, nil)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	doc, err := s.deps.AgentSessions.Get(sessionID)
	if err != nil {
		if err == store.ErrNotFound {
			writeErrorCode(w, ErrCodeSessionNotFound, err.Error(), nil)
		} else {
			writeError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
