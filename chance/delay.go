package chance

import (
	"context"
	"math/rand/v2"
	"time"
)

// Sleep waits for a random duration in [0, maxDelay). It returns immediately when
// maxDelay is not positive, and early with ctx.Err() when ctx is done first.
func Sleep(ctx context.Context, maxDelay time.Duration) error {
	if maxDelay <= 0 {
		return nil
	}
	t := time.NewTimer(rand.N(maxDelay))
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
