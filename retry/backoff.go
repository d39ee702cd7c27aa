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

package retry

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff computes delays between attempts: exponential growth capped at the
// max delay, with a configurable jitter spread. It is safe for concurrent
// use.
type Backoff struct {
	config Config

	mu   sync.Mutex
	rand *rand.Rand
}

// BackoffOption customizes a Backoff.
type BackoffOption func(*Backoff)

// BackoffSource sets the randomness source, for deterministic tests.
func BackoffSource(source rand.Source) BackoffOption {
	return func(b *Backoff) {
		b.rand = rand.New(source)
	}
}

// NewBackoff builds a backoff strategy from a config.
func NewBackoff(config Config, opts ...BackoffOption) *Backoff {
	b := &Backoff{
		config: config.WithDefaults(),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Delay returns the wait before retrying after the given zero-based attempt:
//
//	d     = baseDelay x multiplier^attempt, capped at maxDelay
//	delay = max(0, d + d x jitterFactor x Uniform[-1,+1))
func (b *Backoff) Delay(attempt int) time.Duration {
	d := float64(b.config.BaseDelay) * math.Pow(b.config.Multiplier, float64(attempt))
	d = math.Min(d, float64(b.config.MaxDelay))
	if b.config.JitterFactor > 0 {
		jitter := d * b.config.JitterFactor
		d += b.uniform(-jitter, jitter)
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// FullJitter returns Uniform[0, min(maxDelay, baseDelay x
// multiplier^attempt)).
func (b *Backoff) FullJitter(attempt int) time.Duration {
	d := float64(b.config.BaseDelay) * math.Pow(b.config.Multiplier, float64(attempt))
	d = math.Min(d, float64(b.config.MaxDelay))
	if d < 1 {
		d = 1
	}
	return time.Duration(b.int63n(int64(d)))
}

// Decorrelated returns Uniform[baseDelay, min(maxDelay, 3 x previous)).
func (b *Backoff) Decorrelated(previous time.Duration) time.Duration {
	min := int64(b.config.BaseDelay)
	max := int64(b.config.MaxDelay)
	if p := 3 * int64(previous); p < max {
		max = p
	}
	if max <= min {
		return time.Duration(min)
	}
	return time.Duration(min + b.int63n(max-min))
}

func (b *Backoff) uniform(lo, hi float64) float64 {
	b.mu.Lock()
	f := b.rand.Float64()
	b.mu.Unlock()
	return lo + f*(hi-lo)
}

func (b *Backoff) int63n(n int64) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rand.Int63n(n)
}
