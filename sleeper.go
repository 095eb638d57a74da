package vigil

import (
	"context"
	"time"
)

// Sleeper abstracts the backoff wait so tests can verify retry timing
// without real delays.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealSleeper waits on the wall clock. The wait is cancellable: a shutdown
// request during backoff returns immediately with ctx.Err().
type RealSleeper struct{}

func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

var _ Sleeper = RealSleeper{}
