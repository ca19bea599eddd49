package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"time"

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
	"github.com/lennartpollvogt/mochi-server/internal/workerpool"
)

// testServerUpstream is a fake Ollama-compatible daemon for the Ginkgo specs,
// the BeforeEach-friendly counterpart to server_test.go's chatUpstream (which
// takes a *testing.T the Ginkgo It closures don't have).
type testServerUpstream struct {
	*httptest.Server
}

func newBDDUpstream(script []string) *testServerUpstream {
	var call int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/", "/api/tags":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"models":[]}`)
		case "/api/show":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"capabilities":["completion"],"model_info":{"general.context_length":8192}}`)
		case "/api/chat":
			i := atomic.AddInt32(&call, 1) - 1
			if int(i) >= len(script) {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/x-ndjson")
			fmt.Fprint(w, script[i])
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	return &testServerUpstream{Server: srv}
}

// newBDDServer wires the same domain-object graph as server_test.go's
// newTestServer, but without a *testing.T so it can be built inside a Ginkgo
// BeforeEach. Close tears down both the HTTP listener and its worker pool.
func newBDDServer(upstreamURL string) *testServer {
	dataRoot, err := os.MkdirTemp("", "mochi-bdd-*")
	if err != nil {
		panic(err)
	}

	settings := &config.Settings{
		DataRoot:         dataRoot,
		SessionsDir:      "sessions",
		ToolsDir:         "tools",
		AgentsDir:        "agents",
		AgentChatsDir:    "agent-chats",
		SystemPromptsDir: "system-prompts",
	}
	if err := settings.Paths().EnsurePaths(); err != nil {
		panic(err)
	}

	sessions, err := store.New(settings.Paths().Sessions)
	if err != nil {
		panic(err)
	}
	agentSessions, err := store.New(settings.Paths().AgentChats)
	if err != nil {
		panic(err)
	}

	tools := tool.NewRegistry(dataRoot, zerolog.Nop())
	agents := agent.NewRegistry(settings.Paths().Agents, zerolog.Nop())
	if err := agents.Load(); err != nil {
		panic(err)
	}

	bus := event.New()
	broker := confirm.New()
	pool := workerpool.New(2)

	client := upstream.New(upstreamURL, 5*time.Second)
	agentOrch := agent.NewOrchestrator(agents, agentSessions, client, bus)
	summarizer := summary.New(sessions, client, pool, zerolog.Nop())

	orch := orchestrator.New(sessions, client, tools, agents, agentOrch, broker, bus, pool, summarizer,
		orchestrator.WithSummarizationEnabled(false))

	srv := New(Deps{
		Settings:      settings,
		Sessions:      sessions,
		Orchestrator:  orch,
		Confirm:       broker,
		Tools:         tools,
		Agents:        agents,
		AgentOrch:     agentOrch,
		AgentSessions: agentSessions,
		Upstream:      client,
		Bus:           bus,
		Summarizer:    summarizer,
		Log:           zerolog.Nop(),
	})

	httpSrv := httptest.NewServer(srv.Router())

	return &testServer{Server: httpSrv, sessions: sessions, confirm: broker, pool: pool, dataRoot: dataRoot}
}
