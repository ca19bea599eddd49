// Package summary implements the Summary Task (spec.md §4.9): a best-effort
// background job that runs a structured-output chat against the upstream
// daemon after a turn commits, and patches the session's stored summary.
//
// Grounded in the teacher's internal/session/service.go Summarize method and
// compact.go's summary-prompt construction, restructured around this
// project's structured_chat primitive (internal/upstream.Client.StructuredChat)
// rather than the teacher's free-text completion plus a dedicated
// IsSummary message flag, and dispatched through internal/workerpool rather
// than a raw goroutine so a slow summarization call cannot starve tool
// execution.
package summary

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/lennartpollvogt/mochi-server/internal/store"
	"github.com/lennartpollvogt/mochi-server/internal/upstream"
	"github.com/lennartpollvogt/mochi-server/internal/workerpool"
	"github.com/lennartpollvogt/mochi-server/pkg/types"
)

// schema is the structured-output shape requested from the model: a summary
// paragraph plus a topic list (spec.md §4.9, mirrors types.SummaryRecord).
var schema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"summary": {"type": "string"},
		"topics": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["summary", "topics"]
}`)

const directive = "Summarize the conversation above in a few sentences, then list the main topics discussed. Respond only with the requested JSON."

// runTimeout bounds a single summarization attempt, including retries.
const runTimeout = 2 * time.Minute

const maxRetries = 3

// Task runs the Summary Task for sessions as they are scheduled.
type Task struct {
	sessions *store.Store
	upstream *upstream.Client
	pool     *workerpool.Pool
	log      zerolog.Logger
}

// New constructs a Task.
func New(sessions *store.Store, client *upstream.Client, pool *workerpool.Pool, log zerolog.Logger) *Task {
	return &Task{sessions: sessions, upstream: client, pool: pool, log: log}
}

// Schedule enqueues the task for sessionID onto the worker pool. It is a
// no-op when summarization is globally disabled. onDemandModel is the
// override named by an explicit on-demand request; pass "" for the
// automatic post-turn trigger (spec.md §4.9 step "on-demand override").
func (t *Task) Schedule(sessionID string, enabled bool, onDemandModel string) {
	if !enabled {
		return
	}
	t.pool.Submit(func() {
		t.run(sessionID, onDemandModel)
	})
}

func (t *Task) run(sessionID, onDemandModel string) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	doc, err := t.sessions.Get(sessionID)
	if err != nil {
		t.log.Warn().Err(err).Str("session_id", sessionID).Msg("summary task: load session failed")
		return
	}

	if !ShouldRun(doc) {
		return
	}

	model, ok := ChooseModel(ctx, t.upstream, doc.Metadata.Model, doc.Metadata.SummaryModel, onDemandModel)
	if !ok {
		return
	}

	messages := make([]upstream.ChatMessage, 0, len(doc.Messages)+1)
	for _, m := range doc.Messages {
		messages = append(messages, upstream.ChatMessage{Role: string(m.Role), Content: m.Content, ToolName: m.ToolName})
	}
	messages = append(messages, upstream.ChatMessage{Role: string(types.RoleUser), Content: directive})

	var record types.SummaryRecord
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries)
	err = backoff.Retry(func() error {
		return t.upstream.StructuredChat(ctx, upstream.ChatRequest{Model: model, Messages: messages}, schema, &record)
	}, backoff.WithContext(b, ctx))
	if err != nil {
		t.log.Warn().Err(err).Str("session_id", sessionID).Msg("summary task: structured chat failed")
		return
	}

	doc, err = t.sessions.Get(sessionID)
	if err != nil {
		t.log.Warn().Err(err).Str("session_id", sessionID).Msg("summary task: reload session failed")
		return
	}
	doc.Metadata.Summary = &record
	if err := t.sessions.Put(doc); err != nil {
		t.log.Warn().Err(err).Str("session_id", sessionID).Msg("summary task: save summary failed")
	}
}

// ShouldRun reports whether doc currently qualifies for summarization
// (spec.md §4.9): at least two messages, and the last one is an assistant
// message with no pending tool calls.
func ShouldRun(doc *types.Document) bool {
	if len(doc.Messages) < 2 {
		return false
	}
	last := doc.Messages[len(doc.Messages)-1]
	return last.Role == types.RoleAssistant && len(last.ToolCalls) == 0
}

// ChooseModel resolves which model runs the structured-output call, in the
// fallback order named by spec.md §4.9: the session's current model if it
// supports structured output, else the session's stored summary model, else
// an explicit on-demand override, else skip (ok=false).
func ChooseModel(ctx context.Context, client *upstream.Client, sessionModel string, storedSummaryModel *string, onDemandModel string) (string, bool) {
	if m, err := client.GetModel(ctx, sessionModel); err == nil && supportsStructuredOutput(m) {
		return sessionModel, true
	}
	if storedSummaryModel != nil && *storedSummaryModel != "" {
		return *storedSummaryModel, true
	}
	if onDemandModel != "" {
		return onDemandModel, true
	}
	return "", false
}

func supportsStructuredOutput(m *upstream.Model) bool {
	for _, c := range m.Capabilities {
		if c == "completion" {
			return true
		}
	}
	return false
}
