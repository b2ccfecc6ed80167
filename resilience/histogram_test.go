package resilience

import (
	"math"
	"sync"
	"testing"
	"time"
)

func TestHistogram_Empty(t *testing.T) {
	h := NewHistogram()
	snap := h.Snapshot()

	if snap.Count() != 0 {
		t.Errorf("Count() = %d, want 0", snap.Count())
	}
	if snap.Mean() != 0 || snap.Min() != 0 || snap.Max() != 0 || snap.StdDev() != 0 {
		t.Error("empty snapshot should derive zeroes")
	}
	if snap.Percentile(0.5) != 0 {
		t.Errorf("Percentile(0.5) on empty = %v, want 0", snap.Percentile(0.5))
	}
}

func TestHistogram_CountAndMean(t *testing.T) {
	h := NewHistogram()
	h.Record(10 * time.Millisecond)
	h.Record(20 * time.Millisecond)
	h.Record(30 * time.Millisecond)

	snap := h.Snapshot()
	if snap.Count() != 3 {
		t.Errorf("Count() = %d, want 3", snap.Count())
	}
	if snap.Mean() != 20*time.Millisecond {
		t.Errorf("Mean() = %v, want 20ms", snap.Mean())
	}
}

func TestHistogram_MinMax(t *testing.T) {
	h := NewHistogram()
	h.Record(5 * time.Millisecond)
	h.Record(time.Second)
	h.Record(50 * time.Microsecond)

	snap := h.Snapshot()
	if snap.Min() != 50*time.Microsecond {
		t.Errorf("Min() = %v, want 50µs", snap.Min())
	}
	if snap.Max() != time.Second {
		t.Errorf("Max() = %v, want 1s", snap.Max())
	}
}

func TestHistogram_PercentileExtremes(t *testing.T) {
	h := NewHistogram()
	durations := []time.Duration{
		100 * time.Microsecond,
		time.Millisecond,
		10 * time.Millisecond,
		100 * time.Millisecond,
		time.Second,
	}
	for _, d := range durations {
		h.Record(d)
	}

	snap := h.Snapshot()
	if got := snap.Percentile(1.0); got != time.Second {
		t.Errorf("Percentile(1.0) = %v, want max 1s", got)
	}
	if got := snap.Percentile(0.0); got != 100*time.Microsecond {
		t.Errorf("Percentile(0.0) = %v, want min 100µs", got)
	}
}

func TestHistogram_PercentileMonotonic(t *testing.T) {
	h := NewHistogram()
	for i := 1; i <= 1000; i++ {
		h.Record(time.Duration(i) * time.Millisecond)
	}

	snap := h.Snapshot()
	prev := time.Duration(0)
	for _, p := range []float64{0.1, 0.25, 0.5, 0.75, 0.9, 0.99} {
		got := snap.Percentile(p)
		if got < prev {
			t.Errorf("Percentile(%v) = %v, below previous %v", p, got, prev)
		}
		prev = got
	}
}

func TestHistogram_PercentileWithinBucketError(t *testing.T) {
	h := NewHistogram()
	for i := 1; i <= 1000; i++ {
		h.Record(time.Duration(i) * time.Millisecond)
	}

	// Log-bucket interpolation: the estimate should land within one
	// bucket's growth factor of the true value.
	snap := h.Snapshot()
	p50 := snap.Percentile(0.5)
	trueP50 := 500 * time.Millisecond

	ratio := float64(p50) / float64(trueP50)
	if ratio < 1/histogramGrowth || ratio > histogramGrowth {
		t.Errorf("Percentile(0.5) = %v, want within growth factor of %v", p50, trueP50)
	}
}

func TestHistogram_ClampsOutOfRange(t *testing.T) {
	h := NewHistogram()
	h.Record(-time.Second)     // below range, recorded as zero
	h.Record(100 * time.Hour)  // above range, clamped to last bucket
	h.Record(time.Microsecond) // exactly the floor

	snap := h.Snapshot()
	if snap.Count() != 3 {
		t.Errorf("Count() = %d, want 3", snap.Count())
	}
	if snap.Min() != 0 {
		t.Errorf("Min() = %v, want 0", snap.Min())
	}
	if snap.Max() != 100*time.Hour {
		t.Errorf("Max() = %v, want 100h", snap.Max())
	}
}

func TestHistogram_StdDev(t *testing.T) {
	h := NewHistogram()
	// Two points equidistant from the mean: stddev equals the distance.
	h.Record(100 * time.Millisecond)
	h.Record(300 * time.Millisecond)

	snap := h.Snapshot()
	want := float64(100 * time.Millisecond)
	got := float64(snap.StdDev())

	if math.Abs(got-want)/want > 0.01 {
		t.Errorf("StdDev() = %v, want ~100ms", snap.StdDev())
	}
}

func TestHistogram_StdDevConstant(t *testing.T) {
	h := NewHistogram()
	for i := 0; i < 100; i++ {
		h.Record(time.Millisecond)
	}

	snap := h.Snapshot()
	// All-equal observations: stddev collapses to ~0.
	if snap.StdDev() > time.Microsecond {
		t.Errorf("StdDev() = %v, want ~0", snap.StdDev())
	}
}

func TestHistogram_Reset(t *testing.T) {
	h := NewHistogram()
	h.Record(time.Millisecond)
	h.Record(time.Second)

	h.Reset()

	snap := h.Snapshot()
	if snap.Count() != 0 {
		t.Errorf("Count() after reset = %d, want 0", snap.Count())
	}
	if snap.Min() != 0 || snap.Max() != 0 {
		t.Error("min/max not cleared by reset")
	}

	// Still usable after reset.
	h.Record(10 * time.Millisecond)
	if got := h.Snapshot().Count(); got != 1 {
		t.Errorf("Count() after re-record = %d, want 1", got)
	}
}

func TestHistogram_SnapshotImmutable(t *testing.T) {
	h := NewHistogram()
	h.Record(time.Millisecond)

	snap := h.Snapshot()
	h.Record(time.Second)
	h.Record(time.Second)

	if snap.Count() != 1 {
		t.Errorf("snapshot Count() = %d, want 1 (unaffected by later records)", snap.Count())
	}
}

func TestHistogram_ConcurrentRecord(t *testing.T) {
	h := NewHistogram()

	const goroutines = 8
	const perGoroutine = 1000

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				h.Record(time.Duration(g*perGoroutine+i+1) * time.Microsecond)
			}
		}(g)
	}
	wg.Wait()

	snap := h.Snapshot()
	if snap.Count() != goroutines*perGoroutine {
		t.Errorf("Count() = %d, want %d", snap.Count(), goroutines*perGoroutine)
	}

	var bucketSum int64
	for _, n := range snap.buckets {
		bucketSum += n
	}
	if bucketSum != snap.count {
		t.Errorf("bucket sum = %d, want %d", bucketSum, snap.count)
	}
}

func TestBucketIndex_Bounds(t *testing.T) {
	if got := bucketIndex(0); got != 0 {
		t.Errorf("bucketIndex(0) = %d, want 0", got)
	}
	if got := bucketIndex(time.Microsecond); got != 0 {
		t.Errorf("bucketIndex(1µs) = %d, want 0", got)
	}
	if got := bucketIndex(time.Hour); got != histogramBuckets-1 {
		t.Errorf("bucketIndex(1h) = %d, want %d", got, histogramBuckets-1)
	}
	if got := bucketIndex(24 * time.Hour); got != histogramBuckets-1 {
		t.Errorf("bucketIndex(24h) = %d, want %d", got, histogramBuckets-1)
	}
}

func TestBucketIndex_Monotonic(t *testing.T) {
	prev := 0
	for d := time.Microsecond; d < time.Hour; d *= 2 {
		i := bucketIndex(d)
		if i < prev {
			t.Fatalf("bucketIndex(%v) = %d, below previous %d", d, i, prev)
		}
		prev = i
	}
}
