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

package breaker

import (
	"fmt"
	"math"

	"go.uber.org/atomic"
)

// Window tracks recent call outcomes in a count-based sliding window. Rates
// are percentages in [0, 100]. A failure does not count toward the slow-call
// tally.
type Window struct {
	size int

	total    atomic.Int32
	failed   atomic.Int32
	slow     atomic.Int32
	duration atomic.Int64 // milliseconds, accumulated
}

// NewWindow builds a window holding at most size outcomes.
func NewWindow(size int) *Window {
	return &Window{size: size}
}

// RecordSuccess records one successful call outcome.
func (w *Window) RecordSuccess(isSlow bool) {
	w.total.Inc()
	if isSlow {
		w.slow.Inc()
	}
	w.trim()
}

// RecordFailure records one failed call outcome.
func (w *Window) RecordFailure() {
	w.total.Inc()
	w.failed.Inc()
	w.trim()
}

// FailureRate returns the failed fraction as a percentage.
func (w *Window) FailureRate() float64 {
	total := w.total.Load()
	if total == 0 {
		return 0
	}
	return float64(w.failed.Load()) * 100 / float64(total)
}

// SlowCallRate returns the slow fraction as a percentage.
func (w *Window) SlowCallRate() float64 {
	total := w.total.Load()
	if total == 0 {
		return 0
	}
	return float64(w.slow.Load()) * 100 / float64(total)
}

// TotalCalls returns the number of outcomes currently in the window.
func (w *Window) TotalCalls() int { return int(w.total.Load()) }

// FailedCalls returns the failed outcome count.
func (w *Window) FailedCalls() int { return int(w.failed.Load()) }

// SlowCalls returns the slow outcome count.
func (w *Window) SlowCalls() int { return int(w.slow.Load()) }

// Reset clears all counters.
func (w *Window) Reset() {
	w.total.Store(0)
	w.failed.Store(0)
	w.slow.Store(0)
	w.duration.Store(0)
}

// trim scales the counters down proportionally once the total exceeds the
// window size, preserving the observed rates.
func (w *Window) trim() {
	total := w.total.Load()
	if int(total) <= w.size {
		return
	}
	ratio := float64(w.size) / float64(total)
	w.failed.Store(int32(math.Round(float64(w.failed.Load()) * ratio)))
	w.slow.Store(int32(math.Round(float64(w.slow.Load()) * ratio)))
	w.total.Store(int32(w.size))
}

// String renders a compact summary for logs.
func (w *Window) String() string {
	return fmt.Sprintf("window[total=%d, failed=%d (%.1f%%), slow=%d (%.1f%%)]",
		w.TotalCalls(), w.FailedCalls(), w.FailureRate(), w.SlowCalls(), w.SlowCallRate())
}
