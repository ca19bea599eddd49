package orchestrator

import (
	"context"

	"github.com/lennartpollvogt/mochi-server/pkg/types"
)

// NonStreamResult is the synchronous response returned by RunNonStreaming
// (spec.md §4.8).
type NonStreamResult struct {
	SessionID         string        `json:"session_id"`
	Message           types.Message `json:"message"`
	ToolCallsExecuted int           `json:"tool_calls_executed"`
	ContextWindow     int           `json:"context_window"`
}

// RunNonStreaming runs the identical turn algorithm as Run (spec.md §4.8:
// "the non-streaming variant runs the identical algorithm") but reports back
// a single aggregated response instead of a live event stream. It relies on
// nobody subscribing to the per-turn deltas the bus publishes during Run;
// the result is reconstructed from what the turn actually persisted, which
// is exactly the event.MessageComplete / tool.call.complete information a
// streaming client would have received.
func (o *Orchestrator) RunNonStreaming(ctx context.Context, in Input) (*NonStreamResult, error) {
	before, err := o.sessions.Get(in.SessionID)
	if err != nil {
		return nil, err
	}
	startIdx := len(before.Messages)

	if err := o.Run(ctx, in); err != nil {
		return nil, err
	}

	after, err := o.sessions.Get(in.SessionID)
	if err != nil {
		return nil, err
	}

	var final types.Message
	toolCallsExecuted := 0
	for _, m := range after.Messages[startIdx:] {
		switch m.Role {
		case types.RoleAssistant:
			final = m
		case types.RoleTool:
			toolCallsExecuted++
		}
	}

	return &NonStreamResult{
		SessionID:         after.Metadata.SessionID,
		Message:           final,
		ToolCallsExecuted: toolCallsExecuted,
		ContextWindow:     after.Metadata.ContextWindowConfig.CurrentWindow,
	}, nil
}
