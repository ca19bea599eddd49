// Package tool provides the tool framework the turn orchestrator dispatches
// into (spec.md §4.3). Grounded in the teacher's internal/tool package: the
// Tool/Context/Result shapes are kept, but EinoTool() is dropped along with
// the rest of the eino dependency (no example backend speaks this project's
// upstream wire format, so there is nothing for an eino ToolInfo to feed).
package tool

import (
	"context"
	"encoding/json"

	"github.com/lennartpollvogt/mochi-server/internal/event"
)

// Tool is a named, schema-described callable the upstream model may invoke.
type Tool interface {
	ID() string
	Description() string
	Parameters() json.RawMessage
	// Destructive resolves the Open Question in SPEC_FULL.md §9: the
	// "destructive" flag used by the confirm_destructive execution policy
	// lives on the tool itself, the one component that owns tool metadata
	// end-to-end.
	Destructive() bool
	Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error)
}

// Context carries per-call state into a tool invocation.
type Context struct {
	SessionID string
	MessageID string
	CallID    string
	Agent     string
	WorkDir   string
	AbortCh   <-chan struct{}
	Extra     map[string]any
	Bus       *event.Bus

	OnMetadata func(title string, meta map[string]any)
}

// SetMetadata reports incremental progress metadata, if a callback is wired.
func (c *Context) SetMetadata(title string, meta map[string]any) {
	if c != nil && c.OnMetadata != nil {
		c.OnMetadata(title, meta)
	}
}

// IsAborted reports whether the call's abort channel has fired.
func (c *Context) IsAborted() bool {
	if c == nil || c.AbortCh == nil {
		return false
	}
	select {
	case <-c.AbortCh:
		return true
	default:
		return false
	}
}

// Result is the output of a tool execution. Output is always coerced to a
// plain string before it reaches the orchestrator (spec.md §4.3).
type Result struct {
	Title       string         `json:"title"`
	Output      string         `json:"output"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
}

// Attachment is a file produced or referenced by a tool call.
type Attachment struct {
	Filename  string `json:"filename"`
	MediaType string `json:"mediaType"`
	URL       string `json:"url"`
}

// Schema is the upstream-compatible tool description (spec.md §4.3 get_schema).
type Schema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}
