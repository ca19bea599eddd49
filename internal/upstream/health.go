package upstream

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// WaitUntilHealthy polls Healthy with exponential backoff until the daemon
// answers or the context expires. §4.1 forbids the chat path from retrying
// silently; this startup liveness probe and the summary task's structured
// call are the retry sites, since neither has a client-visible stream to
// corrupt.
func WaitUntilHealthy(ctx context.Context, c *Client) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return c.Healthy(ctx)
	}, backoff.WithContext(b, ctx))
}
