package resilience

import (
	"context"
	"time"
)

// TimeoutConfig configures the timeout wrapper.
type TimeoutConfig struct {
	// Timeout is the maximum duration for the operation. Must be > 0.
	Timeout time.Duration
}

// DefaultTimeoutConfig returns the production default of 30 seconds.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{Timeout: 30 * time.Second}
}

func (c *TimeoutConfig) validate() error {
	if c.Timeout <= 0 {
		return configErrorf("timeout must be > 0, got %v", c.Timeout)
	}
	return nil
}

// Timeout wraps operations with a deadline. The deadline is enforced via
// context, so well-behaved operations observe cancellation; the wrapper
// returns as soon as the deadline passes either way.
type Timeout struct {
	config TimeoutConfig
}

// NewTimeout creates a new timeout wrapper. It returns ErrInvalidConfig
// for a non-positive timeout.
func NewTimeout(config TimeoutConfig) (*Timeout, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &Timeout{config: config}, nil
}

// Config returns the timeout configuration.
func (t *Timeout) Config() TimeoutConfig {
	return t.config
}

// Execute runs the operation with the configured deadline. On expiry it
// returns ErrTimeout carrying the bound; the operation's context is
// cancelled so it can unwind.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return &TimeoutError{Timeout: t.config.Timeout}
		}
		return ctx.Err()
	}
}

// ExecuteWithTimeout is a convenience function to run an operation with a
// one-off deadline.
func ExecuteWithTimeout(ctx context.Context, timeout time.Duration, op func(context.Context) error) error {
	t, err := NewTimeout(TimeoutConfig{Timeout: timeout})
	if err != nil {
		return err
	}
	return t.Execute(ctx, op)
}
