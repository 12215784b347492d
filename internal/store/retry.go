package store

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff returns the jittered delay before retrying a conflicted
// write. attempt is zero-based and doubles the delay each round on top
// of a random base, so racing writers cannot lock-step into repeated
// collisions.
func Backoff(attempt int) time.Duration {
	base := 0.1 + rand.Float64()*0.4
	return time.Duration(base * float64(int64(1)<<attempt) * float64(time.Second))
}

// Sleep waits out the delay, or returns early with the context error
// when the caller gives up.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
