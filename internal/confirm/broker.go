// Package confirm implements the human-in-the-loop tool confirmation
// handshake (spec.md §4.6). Grounded in the teacher's
// internal/permission.Checker — the pending-channel-plus-deadline shape is
// kept, but reworked into a plain register/resolve/await triple with no
// pre-approval/pattern memory (that belongs to the tool registry's
// execution policy, not the broker) and, per spec.md §9's "process-wide
// caches" design note, no package-level global: Broker is a value owned by
// the dependency container and threaded through the orchestrator explicitly.
package confirm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lennartpollvogt/mochi-server/pkg/types"
)

// Reason explains why a confirmation resolved the way it did.
type Reason string

const (
	ReasonApproved Reason = "approved"
	ReasonDenied   Reason = "denied"
	ReasonTimeout  Reason = "timeout"
)

// Decision is the outcome delivered to Await.
type Decision struct {
	Approved bool
	Reason   Reason
}

// ResolveResult is the outcome of a Resolve call.
type ResolveResult string

const (
	Resolved        ResolveResult = "resolved"
	NotFound        ResolveResult = "not_found"
	AlreadyResolved ResolveResult = "already_resolved"
)

type waiter struct {
	mu       sync.Mutex
	resolved bool
	ch       chan Decision
	timer    *time.Timer
}

// Broker is a process-wide (but instance-scoped, never global) registry of
// pending tool confirmations keyed by opaque id.
type Broker struct {
	mu      sync.Mutex
	pending map[string]*waiter
}

// New constructs an empty Broker.
func New() *Broker {
	return &Broker{pending: make(map[string]*waiter)}
}

// Register arms a waiter with the given timeout and returns its id. On
// expiry, the waiter resolves itself with Decision{false, ReasonTimeout} if
// nobody has resolved it by then.
func (b *Broker) Register(timeout time.Duration) string {
	id := types.NewID()
	w := &waiter{ch: make(chan Decision, 1)}

	b.mu.Lock()
	b.pending[id] = w
	b.mu.Unlock()

	if timeout <= 0 {
		b.resolve(id, w, Decision{Approved: false, Reason: ReasonTimeout})
		return id
	}

	w.timer = time.AfterFunc(timeout, func() {
		b.resolve(id, w, Decision{Approved: false, Reason: ReasonTimeout})
	})
	return id
}

// Resolve settles a pending confirmation. A second call for the same id is
// a no-op reporting AlreadyResolved — resolution is idempotent at the edge.
func (b *Broker) Resolve(id string, approved bool) ResolveResult {
	b.mu.Lock()
	w, ok := b.pending[id]
	b.mu.Unlock()
	if !ok {
		return NotFound
	}

	reason := ReasonDenied
	if approved {
		reason = ReasonApproved
	}
	if b.resolve(id, w, Decision{Approved: approved, Reason: reason}) {
		return Resolved
	}
	return AlreadyResolved
}

func (b *Broker) resolve(id string, w *waiter, d Decision) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.resolved {
		return false
	}
	w.resolved = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.ch <- d
	return true
}

// Await blocks until id resolves, the caller's context is cancelled, or the
// registered timeout fires (handled internally by Register's timer).
func (b *Broker) Await(ctx context.Context, id string) (Decision, error) {
	b.mu.Lock()
	w, ok := b.pending[id]
	b.mu.Unlock()
	if !ok {
		return Decision{}, fmt.Errorf("confirm: unknown id %q", id)
	}

	select {
	case d := <-w.ch:
		b.forget(id)
		return d, nil
	case <-ctx.Done():
		b.forget(id)
		return Decision{Approved: false, Reason: ReasonTimeout}, ctx.Err()
	}
}

func (b *Broker) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}
