package resilience

import (
	"math"
	"sync/atomic"
	"time"
)

// Histogram bucket layout: logarithmically spaced buckets covering
// roughly 1 microsecond to 1 hour. Durations outside the range clamp to
// the edge buckets.
const (
	histogramBuckets = 64

	histogramMin = time.Microsecond
	histogramMax = time.Hour
)

// histogramGrowth is the per-bucket growth factor: min * growth^i is the
// lower bound of bucket i, with bucket buckets-1 reaching histogramMax.
var histogramGrowth = math.Pow(
	float64(histogramMax)/float64(histogramMin),
	1.0/float64(histogramBuckets-1),
)

var logHistogramGrowth = math.Log(histogramGrowth)

// bucketIndex maps a duration to its bucket.
func bucketIndex(d time.Duration) int {
	if d <= histogramMin {
		return 0
	}
	if d >= histogramMax {
		return histogramBuckets - 1
	}
	i := int(math.Log(float64(d)/float64(histogramMin)) / logHistogramGrowth)
	if i < 0 {
		return 0
	}
	if i >= histogramBuckets {
		return histogramBuckets - 1
	}
	return i
}

// bucketLower returns the lower bound of bucket i in nanoseconds.
func bucketLower(i int) float64 {
	return float64(histogramMin) * math.Pow(histogramGrowth, float64(i))
}

// Histogram is a lock-free latency recorder. Record is O(1), allocates
// nothing, and uses only atomic operations; mean and standard deviation
// come from running sum/sum-of-squares accumulators rather than being
// recomputed from the buckets.
type Histogram struct {
	buckets [histogramBuckets]atomic.Int64

	count atomic.Int64
	sum   atomic.Int64  // nanoseconds
	sumSq atomic.Uint64 // float64 bits, seconds squared
	min   atomic.Int64  // nanoseconds; math.MaxInt64 when empty
	max   atomic.Int64  // nanoseconds
}

// NewHistogram creates an empty histogram.
func NewHistogram() *Histogram {
	h := &Histogram{}
	h.min.Store(math.MaxInt64)
	return h
}

// Record adds a duration observation. Negative durations are recorded as
// zero.
func (h *Histogram) Record(d time.Duration) {
	if d < 0 {
		d = 0
	}

	h.buckets[bucketIndex(d)].Add(1)
	h.count.Add(1)
	h.sum.Add(int64(d))

	secs := d.Seconds()
	addFloat(&h.sumSq, secs*secs)

	storeMin(&h.min, int64(d))
	storeMax(&h.max, int64(d))
}

// Reset clears all counters. It is never invoked automatically; bucket
// counts are monotonically non-decreasing between explicit resets.
func (h *Histogram) Reset() {
	for i := range h.buckets {
		h.buckets[i].Store(0)
	}
	h.count.Store(0)
	h.sum.Store(0)
	h.sumSq.Store(0)
	h.min.Store(math.MaxInt64)
	h.max.Store(0)
}

// Snapshot copies the current counters into an immutable view. Counters
// recorded concurrently with the copy may or may not be included.
func (h *Histogram) Snapshot() HistogramSnapshot {
	var s HistogramSnapshot
	for i := range h.buckets {
		s.buckets[i] = h.buckets[i].Load()
	}
	s.count = h.count.Load()
	s.sum = h.sum.Load()
	s.sumSq = math.Float64frombits(h.sumSq.Load())
	s.min = h.min.Load()
	s.max = h.max.Load()
	return s
}

// addFloat atomically adds delta to a float64 stored as bits.
func addFloat(a *atomic.Uint64, delta float64) {
	for {
		old := a.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if a.CompareAndSwap(old, next) {
			return
		}
	}
}

func storeMin(a *atomic.Int64, v int64) {
	for {
		old := a.Load()
		if v >= old {
			return
		}
		if a.CompareAndSwap(old, v) {
			return
		}
	}
}

func storeMax(a *atomic.Int64, v int64) {
	for {
		old := a.Load()
		if v <= old {
			return
		}
		if a.CompareAndSwap(old, v) {
			return
		}
	}
}

// HistogramSnapshot is an immutable copy of histogram state at a point
// in time.
type HistogramSnapshot struct {
	buckets [histogramBuckets]int64
	count   int64
	sum     int64
	sumSq   float64
	min     int64
	max     int64
}

// Count returns the number of recorded observations.
func (s HistogramSnapshot) Count() int64 {
	return s.count
}

// Min returns the smallest recorded duration, or 0 when empty.
func (s HistogramSnapshot) Min() time.Duration {
	if s.count == 0 {
		return 0
	}
	return time.Duration(s.min)
}

// Max returns the largest recorded duration, or 0 when empty.
func (s HistogramSnapshot) Max() time.Duration {
	if s.count == 0 {
		return 0
	}
	return time.Duration(s.max)
}

// Mean returns the average recorded duration, or 0 when empty.
func (s HistogramSnapshot) Mean() time.Duration {
	if s.count == 0 {
		return 0
	}
	return time.Duration(s.sum / s.count)
}

// StdDev returns the population standard deviation of the recorded
// durations.
func (s HistogramSnapshot) StdDev() time.Duration {
	if s.count == 0 {
		return 0
	}

	meanSecs := (time.Duration(s.sum / s.count)).Seconds()
	variance := s.sumSq/float64(s.count) - meanSecs*meanSecs
	if variance < 0 {
		// Floating point drift under heavy accumulation.
		variance = 0
	}
	return time.Duration(math.Sqrt(variance) * float64(time.Second))
}

// Percentile returns the duration below which fraction p of observations
// fall, interpolating within the containing bucket. p <= 0 returns the
// minimum, p >= 1 the maximum.
func (s HistogramSnapshot) Percentile(p float64) time.Duration {
	if s.count == 0 {
		return 0
	}
	if p <= 0 {
		return s.Min()
	}
	if p >= 1 {
		return s.Max()
	}

	target := p * float64(s.count)
	var cum float64
	for i, n := range s.buckets {
		if n == 0 {
			continue
		}
		next := cum + float64(n)
		if next >= target {
			lower := bucketLower(i)
			var upper float64
			if i+1 < histogramBuckets {
				upper = bucketLower(i + 1)
			} else {
				upper = float64(s.max)
			}
			frac := (target - cum) / float64(n)
			return s.clamp(time.Duration(lower + (upper-lower)*frac))
		}
		cum = next
	}

	return s.Max()
}

// clamp bounds an interpolated value to the observed range, so percentile
// estimates never exceed what was actually recorded.
func (s HistogramSnapshot) clamp(d time.Duration) time.Duration {
	if d < time.Duration(s.min) {
		return time.Duration(s.min)
	}
	if d > time.Duration(s.max) {
		return time.Duration(s.max)
	}
	return d
}
