package confirm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_ResolveThenAwait(t *testing.T) {
	b := New()
	id := b.Register(time.Second)

	require.Equal(t, Resolved, b.Resolve(id, true))

	decision, err := b.Await(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, decision.Approved)
	assert.Equal(t, ReasonApproved, decision.Reason)
}

func TestBroker_Resolve_Idempotent(t *testing.T) {
	b := New()
	id := b.Register(time.Second)

	assert.Equal(t, Resolved, b.Resolve(id, true))
	assert.Equal(t, AlreadyResolved, b.Resolve(id, false), "a second resolve must not flip the decision")
	assert.Equal(t, AlreadyResolved, b.Resolve(id, true), "resolving a third time is still a no-op")
}

func TestBroker_Resolve_Denied(t *testing.T) {
	b := New()
	id := b.Register(time.Second)

	require.Equal(t, Resolved, b.Resolve(id, false))

	decision, err := b.Await(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, decision.Approved)
	assert.Equal(t, ReasonDenied, decision.Reason)
}

func TestBroker_Resolve_UnknownID(t *testing.T) {
	b := New()
	assert.Equal(t, NotFound, b.Resolve("does-not-exist", true))
}

func TestBroker_Await_UnknownID(t *testing.T) {
	b := New()
	_, err := b.Await(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

func TestBroker_Timeout(t *testing.T) {
	b := New()
	id := b.Register(10 * time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, AlreadyResolved, b.Resolve(id, true), "the timeout itself counts as a resolution")

	decision, err := b.Await(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, decision.Approved)
	assert.Equal(t, ReasonTimeout, decision.Reason)
}

func TestBroker_ZeroTimeout_ResolvesImmediately(t *testing.T) {
	b := New()
	id := b.Register(0)

	decision, err := b.Await(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, decision.Approved)
	assert.Equal(t, ReasonTimeout, decision.Reason)
}

func TestBroker_Await_ContextCancelled(t *testing.T) {
	b := New()
	id := b.Register(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	decision, err := b.Await(ctx, id)
	assert.Error(t, err)
	assert.False(t, decision.Approved)
	assert.Equal(t, ReasonTimeout, decision.Reason)
}

func TestBroker_Await_ForgetsAfterDelivery(t *testing.T) {
	b := New()
	id := b.Register(time.Second)
	require.Equal(t, Resolved, b.Resolve(id, true))

	_, err := b.Await(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, NotFound, b.Resolve(id, true), "a forgotten waiter reports not_found, not already_resolved")
}
