package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes wires every endpoint spec.md §6.1 names, under /api/v1.
func (s *Server) setupRoutes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.getHealth)

		r.Get("/models", s.listModels)
		r.Get("/models/{name}", s.getModel)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.createSession)
			r.Get("/", s.listSessions)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Patch("/", s.patchSession)
				r.Delete("/", s.deleteSession)

				r.Get("/messages", s.getMessages)
				r.Put("/messages/{index}", s.editMessage)

				r.Put("/system-prompt", s.setSystemPrompt)
				r.Delete("/system-prompt", s.removeSystemPrompt)

				r.Get("/status", s.getSessionStatus)

				r.Post("/summarize", s.forceSummarize)
				r.Get("/summary", s.getSummary)
			})
		})

		r.Route("/chat/{sessionID}", func(r chi.Router) {
			r.Post("/", s.chatNonStreaming)
			r.Post("/stream", s.chatStream)
			r.Post("/confirm-tool", s.confirmTool)
		})

		r.Route("/system-prompts", func(r chi.Router) {
			r.Get("/", s.listPrompts)
			r.Post("/", s.createPrompt)
			r.Put("/{name}", s.putPrompt)
			r.Delete("/{name}", s.deletePrompt)
		})

		r.Route("/tools", func(r chi.Router) {
			r.Get("/", s.listTools)
			r.Post("/reload", s.reloadTools)
		})

		r.Route("/agents", func(r chi.Router) {
			r.Get("/", s.listAgents)
			r.Post("/reload", s.reloadAgents)
			r.Get("/{name}/sessions/{sessionID}", s.getAgentSession)
		})
	})
}
