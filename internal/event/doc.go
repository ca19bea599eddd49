/*
Package event provides a type-safe pub/sub bus that feeds the server's SSE
stream (spec.md §6.3).

# Architecture

The bus is built on watermill's gochannel for infrastructure while keeping
direct-call semantics so subscribers see concrete Go types rather than
re-decoded JSON. There is no package-level bus: a *Bus is constructed once
per server process and passed to every component (turn orchestrator, agent
sub-orchestrator, tools, SSE handler) that needs to publish or subscribe.

# Event Types

Session: session.created, session.updated, session.deleted
Message: message.created, message.delta, message.complete
Tool: tool.call.started, tool.call.complete
Confirmation: confirmation.required, confirmation.resolved
File: file.edited
Turn: turn.error

# Basic Usage

	bus := event.New()
	defer bus.Close()

	unsubscribe := bus.Subscribe(event.SessionCreated, func(e event.Event) {
		data := e.Data.(event.SessionCreatedData)
		log.Info().Str("session", data.Info.SessionID).Msg("created")
	})
	defer unsubscribe()

	bus.Publish(event.Event{Type: event.SessionCreated, Data: event.SessionCreatedData{Info: meta}})

SubscribeAll registers a handler for every event type; the SSE handler uses
it to fan a session's stream out to a connected client.

# Subscriber Safety

PublishSync calls subscribers synchronously in the publisher's goroutine, so
a subscriber used with PublishSync must return quickly and must not call
Publish/PublishSync itself (no re-entrant publishing).

# Thread Safety

Bus is safe for concurrent use. Publish delivers to each subscriber in its
own goroutine; PublishSync delivers on the calling goroutine.
*/
package event
