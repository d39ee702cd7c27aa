// Copyright (c) 2024 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package adaptive derives per-endpoint call deadlines from recent latency
// percentiles.
package adaptive

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/atomic"
)

// Stats is a fixed-capacity ring buffer of latency samples in milliseconds.
// Recording is lock-free; the sort step of percentile computation is guarded
// by a short lock.
type Stats struct {
	samples  []int64
	capacity int
	count    atomic.Int32
	index    atomic.Int64
	sortMu   sync.Mutex
}

// NewStats builds a ring buffer holding up to capacity samples.
func NewStats(capacity int) *Stats {
	return &Stats{
		samples:  make([]int64, capacity),
		capacity: capacity,
	}
}

// Record stores one latency sample, overwriting the oldest once full.
func (s *Stats) Record(latencyMs int64) {
	idx := s.index.Inc() - 1
	s.samples[idx%int64(s.capacity)] = latencyMs
	if int(s.count.Load()) < s.capacity {
		s.count.Inc()
	}
}

// Count returns the number of samples currently held.
func (s *Stats) Count() int {
	return int(s.count.Load())
}

// Percentile computes the given percentile (0-100] over the active prefix by
// copying, sorting, and indexing ceil(p/100*n)-1 clamped into range. Returns
// -1 with no samples.
func (s *Stats) Percentile(p float64) int64 {
	n := int(s.count.Load())
	if n == 0 {
		return -1
	}
	s.sortMu.Lock()
	defer s.sortMu.Unlock()
	cp := make([]int64, n)
	copy(cp, s.samples[:n])
	sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
	idx := int(ceilDiv(p, 100, n)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return cp[idx]
}

// ceilDiv returns ceil(p/100 * n) without drifting through float rounding at
// exact multiples.
func ceilDiv(p, base float64, n int) int64 {
	v := p / base * float64(n)
	i := int64(v)
	if float64(i) < v {
		i++
	}
	return i
}

// P50 returns the median sample.
func (s *Stats) P50() int64 { return s.Percentile(50) }

// P95 returns the 95th percentile sample.
func (s *Stats) P95() int64 { return s.Percentile(95) }

// P99 returns the 99th percentile sample.
func (s *Stats) P99() int64 { return s.Percentile(99) }

// Average returns the mean over the active prefix, or -1 with no samples.
func (s *Stats) Average() float64 {
	n := int(s.count.Load())
	if n == 0 {
		return -1
	}
	var sum int64
	for i := 0; i < n; i++ {
		sum += s.samples[i]
	}
	return float64(sum) / float64(n)
}

// Min returns the smallest sample, or -1 with no samples.
func (s *Stats) Min() int64 {
	n := int(s.count.Load())
	if n == 0 {
		return -1
	}
	min := s.samples[0]
	for i := 1; i < n; i++ {
		if s.samples[i] < min {
			min = s.samples[i]
		}
	}
	return min
}

// Max returns the largest sample, or -1 with no samples.
func (s *Stats) Max() int64 {
	n := int(s.count.Load())
	if n == 0 {
		return -1
	}
	max := s.samples[0]
	for i := 1; i < n; i++ {
		if s.samples[i] > max {
			max = s.samples[i]
		}
	}
	return max
}

// Reset discards every sample.
func (s *Stats) Reset() {
	s.sortMu.Lock()
	defer s.sortMu.Unlock()
	s.count.Store(0)
	s.index.Store(0)
	for i := range s.samples {
		s.samples[i] = 0
	}
}

// String renders a compact summary for logs.
func (s *Stats) String() string {
	return fmt.Sprintf("latency[samples=%d, avg=%.1fms, p50=%dms, p95=%dms, p99=%dms]",
		s.Count(), s.Average(), s.P50(), s.P95(), s.P99())
}
