// Package resilience holds the failure-handling primitives shared by the
// data layer and the LLM client: a circuit breaker, request coalescing and
// retry with exponential backoff.
package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrCircuitOpen is returned by Execute while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

const (
	stateClosed int32 = iota
	stateOpen
	stateHalfOpen
)

// CircuitBreaker stops calling a failing dependency for ResetTimeout after
// Threshold consecutive failures. After the timeout a single probe call is
// let through (half-open); its outcome closes or re-opens the breaker.
type CircuitBreaker struct {
	now          func() time.Time
	name         string
	failures     atomic.Int64
	lastFailure  atomic.Int64 // unix nanos
	rejected     atomic.Int64
	threshold    int64
	resetTimeout time.Duration
	state        atomic.Int32
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(name string, threshold int64, resetTimeout time.Duration) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		now:          time.Now,
	}
}

// Allow reports whether a call may proceed. Once the reset timeout has
// passed, exactly one caller is let through as the probe; the rest are
// rejected until the probe's outcome is recorded.
func (cb *CircuitBreaker) Allow() bool {
	switch cb.state.Load() {
	case stateClosed:
		return true
	case stateOpen:
		last := time.Unix(0, cb.lastFailure.Load())
		if cb.now().Sub(last) >= cb.resetTimeout && cb.state.CompareAndSwap(stateOpen, stateHalfOpen) {
			log.Info().Str("breaker", cb.name).Msg("Circuit breaker half-open, probing")
			return true
		}
	}
	cb.rejected.Add(1)
	return false
}

// RecordSuccess closes the breaker and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.failures.Store(0)
	if cb.state.Swap(stateClosed) != stateClosed {
		log.Info().Str("breaker", cb.name).Msg("Circuit breaker closed")
	}
}

// RecordFailure counts a failed call and opens the breaker at the threshold.
// A failure while half-open re-opens it immediately.
func (cb *CircuitBreaker) RecordFailure() {
	failures := cb.failures.Add(1)
	cb.lastFailure.Store(cb.now().UnixNano())

	if failures >= cb.threshold || cb.state.Load() == stateHalfOpen {
		if cb.state.Swap(stateOpen) != stateOpen {
			log.Warn().Str("breaker", cb.name).Int64("failures", failures).Msg("Circuit breaker opened")
		}
	}
}

// Execute runs fn when the breaker allows it and records the outcome.
// Context cancellation by the caller is not counted as a failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	err := fn(ctx)
	switch {
	case err == nil:
		cb.RecordSuccess()
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// A cancelled probe proves nothing; let the next caller probe.
		cb.state.CompareAndSwap(stateHalfOpen, stateOpen)
	default:
		cb.RecordFailure()
	}
	return err
}

// State returns "closed", "open" or "half-open".
func (cb *CircuitBreaker) State() string {
	switch cb.state.Load() {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerMetrics is a snapshot of a breaker's state.
type BreakerMetrics struct {
	Name              string `json:"name"`
	State             string `json:"state"`
	Failures          int64  `json:"failures"`
	Threshold         int64  `json:"threshold"`
	Rejected          int64  `json:"rejected"`
	ResetTimeoutSecs  int64  `json:"reset_timeout_secs"`
	LastFailureUnix   int64  `json:"last_failure_unix,omitempty"`
	SecondsUntilReset int64  `json:"seconds_until_reset,omitempty"`
}

// Metrics returns the current metrics of the breaker.
func (cb *CircuitBreaker) Metrics() BreakerMetrics {
	state := cb.State()
	m := BreakerMetrics{
		Name:             cb.name,
		State:            state,
		Failures:         cb.failures.Load(),
		Threshold:        cb.threshold,
		Rejected:         cb.rejected.Load(),
		ResetTimeoutSecs: int64(cb.resetTimeout / time.Second),
	}

	if last := cb.lastFailure.Load(); last > 0 {
		lastAt := time.Unix(0, last)
		m.LastFailureUnix = lastAt.Unix()
		if state == "open" {
			if remaining := cb.resetTimeout - cb.now().Sub(lastAt); remaining > 0 {
				m.SecondsUntilReset = int64(remaining.Round(time.Second) / time.Second)
			}
		}
	}
	return m
}
