// Package server provides the HTTP surface for mochi-server (spec.md §6.1):
// session and model CRUD, the streaming and non-streaming chat turn, tool
// confirmation resolution, and file-backed CRUD for the system-prompt,
// tool, and agent collaborators. Grounded in the teacher's
// internal/server.Server — the chi router, its middleware stack, and the
// Start/Shutdown/Router lifecycle are kept; the route tree and every
// handler are rebuilt against this project's domain packages instead of
// the teacher's project/session/provider/MCP/LSP/TUI surface.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/lennartpollvogt/mochi-server/internal/agent"
	"github.com/lennartpollvogt/mochi-server/internal/config"
	"github.com/lennartpollvogt/mochi-server/internal/confirm"
	"github.com/lennartpollvogt/mochi-server/internal/event"
	"github.com/lennartpollvogt/mochi-server/internal/orchestrator"
	"github.com/lennartpollvogt/mochi-server/internal/store"
	"github.com/lennartpollvogt/mochi-server/internal/summary"
	"github.com/lennartpollvogt/mochi-server/internal/tool"
	"github.com/lennartpollvogt/mochi-server/internal/upstream"
)

// Deps is every collaborator the HTTP surface dispatches into. One Deps is
// built once in cmd/mochi-server and handed to New.
type Deps struct {
	Settings      *config.Settings
	Sessions      *store.Store
	Orchestrator  *orchestrator.Orchestrator
	Confirm       *confirm.Broker
	Tools         *tool.Registry
	Agents        *agent.Registry
	AgentOrch     *agent.Orchestrator
	AgentSessions *store.Store
	Upstream      *upstream.Client
	Bus           *event.Bus
	Summarizer    *summary.Task
	Log           zerolog.Logger
}

// Server is the HTTP server.
type Server struct {
	deps    Deps
	router  *chi.Mux
	httpSrv *http.Server
	prompts *promptStore
}

// New constructs a Server wired to deps and ready to Start.
func New(deps Deps) *Server {
	s := &Server{
		deps:    deps,
		router:  chi.NewRouter(),
		prompts: newPromptStore(deps.Settings.Paths().SystemPrompts),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures the chi middleware stack, kept from the
// teacher verbatim: request id, structured request logging, panic
// recovery, real-IP resolution, then a permissive CORS policy (this API has
// no cookie-based session to protect).
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// Start runs the HTTP server until Shutdown is called or ListenAndServe
// fails. SSE connections never time out on write, mirroring the teacher's
// WriteTimeout: 0 for the same reason.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.deps.Settings.Addr(),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests, including open SSE
// streams, within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router exposes the chi router for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
