// Package orchestrator drives a single client turn end-to-end (spec.md
// §4.7-4.8): it loads a session, asks the Context-Window Planner for this
// turn's window, streams the upstream chat completion, and interleaves tool
// execution, agent delegation, and confirmation handling as directed by the
// session's execution policy, publishing every step as an event on the
// shared event.Bus for the SSE layer to translate and forward.
//
// Grounded in the teacher's internal/session package: loop.go's
// retry/step loop shape, stream.go's chunk-consumption loop, and
// tools.go's execute-then-continue cycle, all restructured around this
// project's flatter message model (pkg/types.Message, not eino's
// schema.Message plus a part store) and this spec's event catalog (§6.3)
// rather than the teacher's MessagePartUpdated/MessageUpdated events.
//
// [Orchestrator.Run] is the streaming entry point; [Orchestrator.RunNonStreaming]
// runs the identical algorithm through Run and then rebuilds a single
// aggregated response from the messages the turn persisted (spec.md §4.8).
package orchestrator
