package portal

import (
	"context"
	"math"
	"math/rand"
	"time"
)

const (
	backoffBase = 2 * time.Second
	backoffCap  = 30 * time.Second
)

// backoff returns the pause before retry attempt+1: exponential growth
// from backoffBase, capped, with up to 25% jitter to keep parallel tasks
// from hammering the portal in lockstep.
func backoff(attempt int) time.Duration {
	d := time.Duration(float64(backoffBase) * math.Pow(2, float64(attempt)))
	if d > backoffCap {
		d = backoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4)) //nolint:gosec
	return d + jitter
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
