package clock

import (
	"context"
	"time"
)

// Clock is a source of time.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Sleep must honor cancellation and return the context error.
// - Errors: Now, Since, and After must not fail or block.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the time elapsed since t.
	Since(t time.Time) time.Duration

	// Sleep pauses the calling goroutine for d or until ctx is done,
	// whichever comes first. It returns ctx.Err() on cancellation.
	Sleep(ctx context.Context, d time.Duration) error

	// After returns a channel that delivers the current time once d has
	// elapsed.
	After(d time.Duration) <-chan time.Time
}

// Real returns the wall clock. The returned Clock reads Go's monotonic
// clock through the time package.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
