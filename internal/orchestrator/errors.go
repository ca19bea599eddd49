package orchestrator

import (
	"errors"

	"github.com/lennartpollvogt/mochi-server/internal/agent"
	"github.com/lennartpollvogt/mochi-server/internal/store"
	"github.com/lennartpollvogt/mochi-server/internal/upstream"
)

// Error codes from the envelope catalog (spec.md §6.2).
const (
	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodeModelNotFound       = "MODEL_NOT_FOUND"
	CodeAgentNotFound       = "AGENT_NOT_FOUND"
	CodeUpstreamUnreachable = "UPSTREAM_UNREACHABLE"
	CodeUpstreamError       = "UPSTREAM_ERROR"
	CodeInvalidMessageIndex = "INVALID_MESSAGE_INDEX"
	CodeValidationError     = "VALIDATION_ERROR"
	CodeInternalError       = "INTERNAL_ERROR"
)

// ErrValidation signals the entry-contract failure in spec.md §4.7 step 1:
// no new user message supplied against an empty history.
var ErrValidation = errors.New("orchestrator: history is empty and no user message was supplied")

// Classify maps a Go error to the wire error code carried by the error SSE
// event and by pre-stream HTTP error envelopes (spec.md §6.2).
func Classify(err error) (code, message string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return CodeSessionNotFound, err.Error()
	case errors.Is(err, store.ErrInvalidIndex):
		return CodeInvalidMessageIndex, err.Error()
	case errors.Is(err, ErrValidation):
		return CodeValidationError, err.Error()
	case errors.Is(err, upstream.ErrModelNotFound):
		return CodeModelNotFound, err.Error()
	case errors.Is(err, agent.ErrAgentNotFound):
		return CodeAgentNotFound, err.Error()
	default:
		var unreach *upstream.ErrUnreachable
		if errors.As(err, &unreach) {
			return CodeUpstreamUnreachable, err.Error()
		}
		var up *upstream.ErrUpstream
		if errors.As(err, &up) {
			return CodeUpstreamError, err.Error()
		}
		return CodeInternalError, err.Error()
	}
}
