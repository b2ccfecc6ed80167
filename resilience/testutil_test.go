package resilience

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/jonwraymond/guardrail/clock"
)

// newTestRand returns a deterministic uniform source for jitter tests.
func newTestRand(seed uint64) func() float64 {
	r := rand.New(rand.NewPCG(seed, 0))
	return r.Float64
}

// waitForWaiters polls until the mock clock has at least n registered
// sleepers, failing the test after a real-time deadline.
func waitForWaiters(t *testing.T, mk *clock.Mock, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for mk.Waiters() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d clock waiters, have %d", n, mk.Waiters())
		}
		time.Sleep(time.Millisecond)
	}
}
