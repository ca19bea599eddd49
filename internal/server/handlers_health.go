package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// getHealth reports process liveness and upstream reachability (spec.md
// §6.1 GET /health).
func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Upstream.Healthy(r.Context()); err != nil {
		writeErrorCode(w, ErrCodeUpstreamUnreachable, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// listModels returns every completion-capable model (spec.md §4.1
// list_models).
func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.deps.Upstream.ListModels(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

// getModel returns one model's detail (spec.md §4.1 get_model).
func (s *Server) getModel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	model, err := s.deps.Upstream.GetModel(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model)
}
