package clock

import (
	"context"
	"sync"
	"time"
)

// Mock is a controllable Clock for tests. Time only moves when Advance or
// Set is called; pending Sleep and After waiters whose deadlines are
// reached are woken in deadline order.
type Mock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

// NewMock creates a mock clock frozen at start.
func NewMock(start time.Time) *Mock {
	return &Mock{now: start}
}

// Now returns the mock's current time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Since returns the mock time elapsed since t.
func (m *Mock) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

// Sleep blocks until the mock clock has been advanced past d or ctx is
// done. A non-positive d returns immediately.
func (m *Mock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	select {
	case <-m.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// After returns a channel that receives the mock time once the clock has
// been advanced past d.
func (m *Mock) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- m.now
		return ch
	}

	m.waiters = append(m.waiters, &waiter{deadline: m.now.Add(d), ch: ch})
	return ch
}

// Advance moves the clock forward by d, firing any waiters whose deadline
// is reached. Advancing by a negative duration panics.
func (m *Mock) Advance(d time.Duration) {
	if d < 0 {
		panic("clock: cannot advance mock clock backwards")
	}
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.fireLocked()
	m.mu.Unlock()
}

// Set jumps the clock to t, firing any waiters with deadlines at or
// before t. Setting a time before the current mock time panics.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.Before(m.now) {
		panic("clock: cannot set mock clock backwards")
	}
	m.now = t
	m.fireLocked()
}

func (m *Mock) fireLocked() {
	remaining := m.waiters[:0]
	for _, w := range m.waiters {
		if !w.deadline.After(m.now) {
			w.ch <- m.now
		} else {
			remaining = append(remaining, w)
		}
	}
	m.waiters = remaining
}

// Waiters reports the number of pending Sleep/After waiters. Useful for
// tests that need to know a goroutine has parked before advancing time.
func (m *Mock) Waiters() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}
