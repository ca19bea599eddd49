package agent

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lennartpollvogt/mochi-server/internal/event"
	"github.com/lennartpollvogt/mochi-server/internal/store"
	"github.com/lennartpollvogt/mochi-server/internal/upstream"
)

// scriptedUpstream answers successive /api/chat calls from a fixed script of
// NDJSON response bodies: first call gets script[0], second gets script[1],
// and so on, mirroring how a mock upstream is described throughout spec.md's
// end-to-end scenarios.
func scriptedUpstream(t *testing.T, script []string) *httptest.Server {
	t.Helper()
	var call int32
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := atomic.AddInt32(&call, 1) - 1
		if int(i) >= len(script) {
			t.Fatalf("unexpected extra upstream call %d", i)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprint(w, script[i])
	}))
}

func newTestOrchestrator(t *testing.T, upstreamURL string) (*Orchestrator, *Registry) {
	t.Helper()
	agentsRoot := t.TempDir()
	writeAgentDir(t, agentsRoot, "coder", "---\ndescription: Writes code\n---\nYou write code.\n", true)

	registry := NewRegistry(agentsRoot, zerolog.Nop())
	require.NoError(t, registry.Load())

	sessionsDir := t.TempDir()
	sessions, err := store.New(sessionsDir)
	require.NoError(t, err)

	client := upstream.New(upstreamURL, 5*time.Second)
	bus := event.New()

	return NewOrchestrator(registry, sessions, client, bus), registry
}

func TestOrchestrator_Run_PlanThenImmediateDone(t *testing.T) {
	server := scriptedUpstream(t, []string{
		`{"message":{"content":"Plan"},"done":true,"eval_count":1,"prompt_eval_count":1}` + "\n",
		`{"message":{"content":"announcement"},"done":true}` + "\n",
		`{"message":{"content":"done"},"done":true}` + "\n",
	})
	defer server.Close()

	orch, _ := newTestOrchestrator(t, server.URL)

	result, err := orch.Run(t.Context(), Input{AgentName: "coder", Instruction: "do X", Model: "llama3"})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "Session ID: ")
	assert.Contains(t, result.Output, "Assistant: Plan")
	assert.Contains(t, result.Output, "Assistant: announcement")
	assert.Contains(t, result.Output, "Assistant: done")
}

func TestOrchestrator_Run_ExecutesToolThenCompletes(t *testing.T) {
	toolCallChunk := `{"message":{"content":"","tool_calls":[{"name":"read","arguments":{}}]},"done":true}` + "\n"
	server := scriptedUpstream(t, []string{
		`{"message":{"content":"Plan"},"done":true}` + "\n",
		toolCallChunk,
		`{"message":{"content":"done"},"done":true}` + "\n",
	})
	defer server.Close()

	orch, _ := newTestOrchestrator(t, server.URL)

	result, err := orch.Run(t.Context(), Input{AgentName: "coder", Instruction: "read a file", Model: "llama3"})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "Tool result (read):")
}

func TestOrchestrator_Run_UnknownAgent(t *testing.T) {
	orch, _ := newTestOrchestrator(t, "http://127.0.0.1:0")

	_, err := orch.Run(t.Context(), Input{AgentName: "missing", Instruction: "x"})
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestOrchestrator_Run_NonexistentSessionIDCreatesFresh(t *testing.T) {
	server := scriptedUpstream(t, []string{
		`{"message":{"content":"Plan"},"done":true}` + "\n",
		`{"message":{"content":"announcement"},"done":true}` + "\n",
		`{"message":{"content":"done"},"done":true}` + "\n",
	})
	defer server.Close()

	orch, _ := newTestOrchestrator(t, server.URL)

	result, err := orch.Run(t.Context(), Input{
		AgentName:   "coder",
		Instruction: "do X",
		SessionID:   "doesnotexist",
		Model:       "llama3",
	})
	require.NoError(t, err)
	assert.NotEqual(t, "doesnotexist", result.SessionID)
}

func TestOrchestrator_Run_RespectsSkillDocumentModel(t *testing.T) {
	var seenModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		seenModel = body.Model
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprint(w, `{"message":{"content":"done"},"done":true}`+"\n")
	}))
	defer server.Close()

	agentsRoot := t.TempDir()
	writeAgentDir(t, agentsRoot, "coder", "---\ndescription: Writes code\nmodel: codellama\n---\nbody\n", true)
	registry := NewRegistry(agentsRoot, zerolog.Nop())
	require.NoError(t, registry.Load())

	sessions, err := store.New(t.TempDir())
	require.NoError(t, err)
	orch := NewOrchestrator(registry, sessions, upstream.New(server.URL, 5*time.Second), event.New())

	_, err = orch.Run(t.Context(), Input{AgentName: "coder", Instruction: "x", Model: "llama3"})
	require.NoError(t, err)
	assert.Equal(t, "codellama", seenModel)
}
