// Package upstream is a thin adapter over an Ollama-compatible inference
// daemon's HTTP API (spec.md §4.1). Grounded in the shape of the teacher's
// internal/provider.Provider (CompletionRequest/CompletionStream as a lazy,
// non-restartable reader) but implemented as a bespoke net/http transport:
// none of the teacher's eino-based model backends (claude/openai/ark) speak
// this daemon's wire format, so forcing this client through eino's
// model.ToolCallingChatModel interface would mean fabricating an adapter
// for a backend the example pack never demonstrates.
package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a single Ollama-compatible daemon. It never retries: the
// caller (the turn orchestrator) decides how to surface a failure.
type Client struct {
	baseURL string
	http    *http.Client
}

// New constructs a Client against baseURL (e.g. "http://127.0.0.1:11434").
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// ErrUnreachable signals a transport-level failure (connection refused,
// DNS failure, timeout) distinguishing it from a daemon-reported error.
type ErrUnreachable struct{ Cause error }

func (e *ErrUnreachable) Error() string { return fmt.Sprintf("upstream unreachable: %v", e.Cause) }
func (e *ErrUnreachable) Unwrap() error { return e.Cause }

// ErrUpstream signals the daemon answered but reported a protocol-level
// error (non-2xx status, or a JSON "error" field inside a 200 response).
type ErrUpstream struct {
	Status  int
	Message string
}

func (e *ErrUpstream) Error() string {
	return fmt.Sprintf("upstream error (status %d): %s", e.Status, e.Message)
}

// Model is a completion-capable model descriptor (spec.md §4.1 list_models).
type Model struct {
	Name           string   `json:"name"`
	Size           int64    `json:"size"`
	Format         string   `json:"format"`
	Family         string   `json:"family"`
	ParameterSize  string   `json:"parameter_size"`
	Quantization   string   `json:"quantization"`
	Capabilities   []string `json:"capabilities"`
	MaxContext     int      `json:"max_context"`
}

func (m Model) supportsCompletion() bool {
	for _, c := range m.Capabilities {
		if c == "completion" {
			return true
		}
	}
	return false
}

type tagsResponse struct {
	Models []struct {
		Name    string `json:"name"`
		Size    int64  `json:"size"`
		Details struct {
			Format            string `json:"format"`
			Family            string `json:"family"`
			ParameterSize     string `json:"parameter_size"`
			QuantizationLevel string `json:"quantization_level"`
		} `json:"details"`
	} `json:"models"`
}

type showResponse struct {
	Capabilities []string          `json:"capabilities"`
	ModelInfo    map[string]any    `json:"model_info"`
	Details      struct {
		Format            string `json:"format"`
		Family            string `json:"family"`
		ParameterSize     string `json:"parameter_size"`
		QuantizationLevel string `json:"quantization_level"`
	} `json:"details"`
}

const defaultMaxContext = 4096

// maxContextFrom parses the context length out of model-info, trying the
// family-qualified key first, then a generic fallback, then a conservative
// default (spec.md §4.1).
func maxContextFrom(family string, info map[string]any) int {
	if family != "" {
		if v, ok := info[family+".context_length"]; ok {
			if n, ok := toInt(v); ok {
				return n
			}
		}
	}
	if v, ok := info["general.context_length"]; ok {
		if n, ok := toInt(v); ok {
			return n
		}
	}
	return defaultMaxContext
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

// ListModels returns every model whose capability set includes "completion".
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var tags tagsResponse
	if err := c.getJSON(ctx, "/api/tags", &tags); err != nil {
		return nil, err
	}

	var models []Model
	for _, t := range tags.Models {
		m, err := c.GetModel(ctx, t.Name)
		if err != nil {
			continue
		}
		if m.supportsCompletion() {
			models = append(models, *m)
		}
	}
	return models, nil
}

// ErrModelNotFound signals get_model found no such model.
var ErrModelNotFound = fmt.Errorf("model not found")

// GetModel returns the descriptor for a single model name.
func (c *Client) GetModel(ctx context.Context, name string) (*Model, error) {
	body, _ := json.Marshal(map[string]string{"name": name})
	var show showResponse
	if err := c.postJSON(ctx, "/api/show", body, &show); err != nil {
		var up *ErrUpstream
		if isNotFoundUpstream(err, &up) {
			return nil, ErrModelNotFound
		}
		return nil, err
	}

	return &Model{
		Name:          name,
		Format:        show.Details.Format,
		Family:        show.Details.Family,
		ParameterSize: show.Details.ParameterSize,
		Quantization:  show.Details.QuantizationLevel,
		Capabilities:  show.Capabilities,
		MaxContext:    maxContextFrom(show.Details.Family, show.ModelInfo),
	}, nil
}

func isNotFoundUpstream(err error, target **ErrUpstream) bool {
	if e, ok := err.(*ErrUpstream); ok {
		*target = e
		return e.Status == http.StatusNotFound
	}
	return false
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &ErrUnreachable{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return &ErrUpstream{Status: resp.StatusCode, Message: body.Error}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Chunk is one record in a chat stream (spec.md §4.1).
type Chunk struct {
	Content         string     `json:"content"`
	Thinking        string     `json:"thinking,omitempty"`
	ToolCalls       []ToolCall `json:"tool_calls,omitempty"`
	Done            bool       `json:"done"`
	EvalCount       int        `json:"eval_count,omitempty"`
	PromptEvalCount int        `json:"prompt_eval_count,omitempty"`
}

// ToolCall mirrors the daemon's wire representation of a requested call.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ChatMessage is one entry in the prompt array sent upstream.
type ChatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	ToolName  string     `json:"tool_name,omitempty"`
}

// ToolSchema is the upstream-compatible tool description (spec.md §4.3).
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ChatRequest is the parameter set for chat_stream (spec.md §4.1).
type ChatRequest struct {
	Model    string
	Messages []ChatMessage
	Tools    []ToolSchema
	Think    bool
	NumCtx   *int // passed through verbatim when supplied
}

func (r ChatRequest) wireBody(stream bool) ([]byte, error) {
	payload := map[string]any{
		"model":    r.Model,
		"messages": r.Messages,
		"stream":   stream,
	}
	if len(r.Tools) > 0 {
		payload["tools"] = r.Tools
	}
	if r.Think {
		payload["think"] = true
	}
	options := map[string]any{}
	if r.NumCtx != nil {
		options["num_ctx"] = *r.NumCtx
	}
	if len(options) > 0 {
		payload["options"] = options
	}
	return json.Marshal(payload)
}

// Stream is a lazy, finite, non-restartable sequence of chat chunks.
type Stream struct {
	closer  io.Closer
	scanner *bufio.Scanner
}

// NewStream wraps an arbitrary NDJSON reader as a Stream. Exported so callers
// (and tests of components built against Stream, such as the agent
// sub-orchestrator) can drive one without opening a real HTTP connection.
func NewStream(r io.Reader, closer io.Closer) *Stream {
	return &Stream{closer: closer, scanner: bufio.NewScanner(r)}
}

// Recv reads the next chunk. Once the stream is exhausted it returns an
// error for which IsStreamDone reports true.
func (s *Stream) Recv() (*Chunk, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, errStreamDone
	}

	line := s.scanner.Bytes()
	if len(bytes.TrimSpace(line)) == 0 {
		return s.Recv()
	}

	var wire struct {
		Message struct {
			Content   string     `json:"content"`
			Thinking  string     `json:"thinking"`
			ToolCalls []ToolCall `json:"tool_calls"`
		} `json:"message"`
		Done            bool `json:"done"`
		EvalCount       int  `json:"eval_count"`
		PromptEvalCount int  `json:"prompt_eval_count"`
	}
	if err := json.Unmarshal(line, &wire); err != nil {
		return nil, fmt.Errorf("upstream: decode chunk: %w", err)
	}

	return &Chunk{
		Content:         wire.Message.Content,
		Thinking:        wire.Message.Thinking,
		ToolCalls:       wire.Message.ToolCalls,
		Done:            wire.Done,
		EvalCount:       wire.EvalCount,
		PromptEvalCount: wire.PromptEvalCount,
	}, nil
}

// Close releases the underlying HTTP response.
func (s *Stream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

var errStreamDone = fmt.Errorf("upstream: stream exhausted")

// IsStreamDone reports whether err signals ordinary stream exhaustion.
func IsStreamDone(err error) bool { return err == errStreamDone }

// ChatStream opens the streaming chat endpoint and returns a Stream. The
// caller must Close it once done.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest) (*Stream, error) {
	body, err := req.wireBody(true)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &ErrUnreachable{Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, &ErrUpstream{Status: resp.StatusCode, Message: body.Error}
	}

	return NewStream(resp.Body, resp.Body), nil
}

// StructuredChat performs a single, non-streaming chat call and decodes the
// response content into out (spec.md §4.1 structured_chat).
func (c *Client) StructuredChat(ctx context.Context, req ChatRequest, schema json.RawMessage, out any) error {
	payload := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
		"stream":   false,
		"format":   json.RawMessage(schema),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var wire struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := c.do(httpReq, &wire); err != nil {
		return err
	}
	return json.Unmarshal([]byte(wire.Message.Content), out)
}

// Healthy probes the daemon's liveness. Retried by the caller with backoff
// at process startup only — never on the user-visible chat path.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}
