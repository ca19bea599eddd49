// Package event provides the pub/sub bus behind the SSE fan-out (spec.md
// §6.3), built on watermill's in-memory gochannel. Grounded in the teacher's
// internal/event/bus.go, with the package-level globalBus removed: spec.md
// §9 forbids process-wide mutable state for exactly this kind of cache, so
// Bus is constructed once by the dependency container and threaded through
// every component that needs to publish or subscribe.
package event

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// EventType names a kind of event flowing through the bus.
type EventType string

const (
	SessionCreated       EventType = "session.created"
	SessionUpdated       EventType = "session.updated"
	SessionDeleted       EventType = "session.deleted"
	MessageCreated       EventType = "message.created"
	MessageDelta         EventType = "message.delta"
	MessageComplete      EventType = "message.complete"
	ToolCallStarted      EventType = "tool.call.started"
	ToolCallComplete     EventType = "tool.call.complete"
	ConfirmationRequired EventType = "confirmation.required"
	ConfirmationResolved EventType = "confirmation.resolved"
	FileEdited           EventType = "file.edited"
	TurnError            EventType = "turn.error"
	ToolContinuationStart EventType = "tool.continuation.start"
	TurnDone             EventType = "turn.done"

	AgentStarted         EventType = "agent.started"
	AgentPlanningDelta   EventType = "agent.planning.delta"
	AgentExecutionDelta  EventType = "agent.execution.delta"
	AgentToolCallStarted EventType = "agent.tool.call.started"
	AgentToolCallComplete EventType = "agent.tool.call.complete"
	AgentComplete        EventType = "agent.complete"
)

// Event is a typed notification published on the bus.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Subscriber receives events it is registered for.
type Subscriber func(event Event)

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus is an instance-scoped pub/sub bus. One Bus is constructed per mochi
// server process and passed to every component that publishes or consumes
// events; it is never a package-level variable.
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	subscribers map[EventType][]subscriberEntry
	global      []subscriberEntry

	nextID uint64
	closed bool
	cancel context.CancelFunc
}

// New constructs a Bus backed by an in-memory watermill gochannel.
func New() *Bus {
	_, cancel := context.WithCancel(context.Background())
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 100, Persistent: false},
			watermill.NopLogger{},
		),
		subscribers: make(map[EventType][]subscriberEntry),
		cancel:      cancel,
	}
}

func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers fn for a single event type and returns an unsubscribe
// function.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribe(eventType, id) }
}

// SubscribeAll registers fn for every event type and returns an unsubscribe
// function. Used by the SSE handler to fan every session event out to a
// connected client.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribeGlobal(id) }
}

func (b *Bus) unsubscribe(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[eventType]
	for i, entry := range subs {
		if entry.id == id {
			b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, entry := range b.global {
		if entry.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every matching subscriber, each in its own
// goroutine so a slow subscriber never blocks the publisher.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]Subscriber, 0, len(b.subscribers[ev.Type])+len(b.global))
	subs = append(subs, collectFns(b.subscribers[ev.Type])...)
	subs = append(subs, collectFns(b.global)...)
	b.mu.RUnlock()

	for _, sub := range subs {
		go sub(ev)
	}
}

// PublishSync delivers ev to every matching subscriber synchronously on the
// calling goroutine.
func (b *Bus) PublishSync(ev Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]Subscriber, 0, len(b.subscribers[ev.Type])+len(b.global))
	subs = append(subs, collectFns(b.subscribers[ev.Type])...)
	subs = append(subs, collectFns(b.global)...)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub(ev)
	}
}

func collectFns(entries []subscriberEntry) []Subscriber {
	out := make([]Subscriber, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.fn)
	}
	return out
}

// Close shuts down the bus; further Publish/Subscribe calls are no-ops.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.cancel()
	b.subscribers = make(map[EventType][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}

// PubSub exposes the underlying watermill GoChannel for advanced wiring
// (e.g. bridging to a distributed backend in a future deployment).
func (b *Bus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}
