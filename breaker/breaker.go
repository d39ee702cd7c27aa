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

// Package breaker implements the per-endpoint circuit breaker: a three-state
// machine over a count-based sliding window of call outcomes.
package breaker

import (
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// State is the admission state of a breaker.
type State int32

const (
	// StateClosed admits every call.
	StateClosed State = iota
	// StateOpen rejects every call until the cool-down elapses.
	StateOpen
	// StateHalfOpen admits a bounded number of probe calls.
	StateHalfOpen
)

// String returns the conventional uppercase name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config carries the breaker thresholds. The zero value is replaced by
// DefaultConfig.
type Config struct {
	// FailureRateThreshold is the failure percentage at or above which a
	// closed breaker opens.
	FailureRateThreshold float64
	// SlowCallRateThreshold is the slow-call percentage at or above which a
	// closed breaker opens.
	SlowCallRateThreshold float64
	// SlowCallDurationThreshold is the duration at or beyond which a
	// successful call counts as slow.
	SlowCallDurationThreshold time.Duration
	// WaitDurationInOpenState is the cool-down before an open breaker admits
	// a probe.
	WaitDurationInOpenState time.Duration
	// SlidingWindowSize bounds the outcome window.
	SlidingWindowSize int
	// MinimumNumberOfCalls gates opening: below it a closed breaker never
	// opens.
	MinimumNumberOfCalls int
	// PermittedCallsInHalfOpen bounds the probes admitted while half-open.
	PermittedCallsInHalfOpen int
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		FailureRateThreshold:      50,
		SlowCallRateThreshold:     100,
		SlowCallDurationThreshold: 3 * time.Second,
		WaitDurationInOpenState:   30 * time.Second,
		SlidingWindowSize:         100,
		MinimumNumberOfCalls:      10,
		PermittedCallsInHalfOpen:  5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureRateThreshold == 0 {
		c.FailureRateThreshold = d.FailureRateThreshold
	}
	if c.SlowCallRateThreshold == 0 {
		c.SlowCallRateThreshold = d.SlowCallRateThreshold
	}
	if c.SlowCallDurationThreshold == 0 {
		c.SlowCallDurationThreshold = d.SlowCallDurationThreshold
	}
	if c.WaitDurationInOpenState == 0 {
		c.WaitDurationInOpenState = d.WaitDurationInOpenState
	}
	if c.SlidingWindowSize == 0 {
		c.SlidingWindowSize = d.SlidingWindowSize
	}
	if c.MinimumNumberOfCalls == 0 {
		c.MinimumNumberOfCalls = d.MinimumNumberOfCalls
	}
	if c.PermittedCallsInHalfOpen == 0 {
		c.PermittedCallsInHalfOpen = d.PermittedCallsInHalfOpen
	}
	return c
}

// Breaker throttles traffic to one endpoint. All methods are safe for
// concurrent use.
type Breaker struct {
	name   string
	config Config
	logger *zap.Logger

	state          atomic.Int32
	lastTransition atomic.Int64 // unix nanos
	window         *Window
	halfOpenCalls  atomic.Int32
}

// Option customizes a breaker.
type Option func(*Breaker)

// Logger sets the logger used for state transitions.
func Logger(logger *zap.Logger) Option {
	return func(b *Breaker) {
		b.logger = logger
	}
}

// New builds a breaker named after its endpoint key.
func New(name string, config Config, opts ...Option) *Breaker {
	b := &Breaker{
		name:   name,
		config: config.withDefaults(),
		logger: zap.NewNop(),
	}
	b.window = NewWindow(b.config.SlidingWindowSize)
	b.lastTransition.Store(time.Now().UnixNano())
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AllowRequest decides admission for one call.
//
// CLOSED admits. OPEN admits once the cool-down elapsed, transitioning to
// HALF_OPEN. HALF_OPEN admits while the probe budget lasts.
func (b *Breaker) AllowRequest() bool {
	switch State(b.state.Load()) {
	case StateClosed:
		return true
	case StateOpen:
		if b.coolDownElapsed() {
			b.transitionTo(StateHalfOpen)
			b.halfOpenCalls.Store(0)
			return true
		}
		return false
	case StateHalfOpen:
		return b.halfOpenCalls.Inc() <= int32(b.config.PermittedCallsInHalfOpen)
	default:
		return false
	}
}

// RecordSuccess records a completed call and its duration. In HALF_OPEN,
// once the probe budget has been consumed and the failure rate sits below
// the threshold, the breaker closes and the window resets.
func (b *Breaker) RecordSuccess(duration time.Duration) {
	isSlow := duration >= b.config.SlowCallDurationThreshold
	b.window.RecordSuccess(isSlow)

	if State(b.state.Load()) == StateHalfOpen && b.shouldClose() {
		b.transitionTo(StateClosed)
		b.window.Reset()
	}
}

// RecordFailure records a failed call. A closed breaker opens once the
// window holds enough calls and either rate crosses its threshold; a
// half-open breaker opens unconditionally.
func (b *Breaker) RecordFailure() {
	b.window.RecordFailure()

	switch State(b.state.Load()) {
	case StateClosed:
		if b.shouldOpen() {
			b.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		b.transitionTo(StateOpen)
	}
}

// State returns the current admission state.
func (b *Breaker) State() State {
	return State(b.state.Load())
}

// Name returns the endpoint key the breaker guards.
func (b *Breaker) Name() string { return b.name }

// Metrics exposes the outcome window.
func (b *Breaker) Metrics() *Window { return b.window }

// ForceState moves the breaker to a state directly. Intended for tests;
// forcing CLOSED also resets the window.
func (b *Breaker) ForceState(s State) {
	b.transitionTo(s)
	if s == StateClosed {
		b.window.Reset()
	}
}

func (b *Breaker) shouldOpen() bool {
	if b.window.TotalCalls() < b.config.MinimumNumberOfCalls {
		return false
	}
	return b.window.FailureRate() >= b.config.FailureRateThreshold ||
		b.window.SlowCallRate() >= b.config.SlowCallRateThreshold
}

func (b *Breaker) shouldClose() bool {
	if int(b.halfOpenCalls.Load()) < b.config.PermittedCallsInHalfOpen {
		return false
	}
	return b.window.FailureRate() < b.config.FailureRateThreshold
}

func (b *Breaker) coolDownElapsed() bool {
	elapsed := time.Now().UnixNano() - b.lastTransition.Load()
	return time.Duration(elapsed) >= b.config.WaitDurationInOpenState
}

func (b *Breaker) transitionTo(next State) {
	prev := State(b.state.Swap(int32(next)))
	if prev != next {
		b.lastTransition.Store(time.Now().UnixNano())
		b.logger.Info("circuit breaker state transition",
			zap.String("breaker", b.name),
			zap.Stringer("from", prev),
			zap.Stringer("to", next))
	}
}
