package concurrency

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrCircuitOpen is returned by Acquire while the circuit breaker rejects work
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Metrics is a snapshot of limiter activity
type Metrics struct {
	TotalAcquired   int64
	TotalReleased   int64
	PeakConcurrent  int64
	TotalWaitTimeNs int64
	Rejected        int64
}

// Limiter is a counting semaphore guarded by a circuit breaker. Executors
// hold a slot for the duration of one step; ProcessBatch holds one per
// article. The two must not share a limiter.
type Limiter struct {
	sem     chan struct{}
	breaker *CircuitBreaker

	active   atomic.Int64
	acquired atomic.Int64
	released atomic.Int64
	peak     atomic.Int64
	waitNs   atomic.Int64
	rejected atomic.Int64
}

// NewLimiter creates a limiter with the default breaker settings
func NewLimiter(maxConcurrent int) *Limiter {
	return NewLimiterWithCircuitBreaker(maxConcurrent, NewCircuitBreaker(DefaultBreakerConfig()))
}

// NewLimiterWithCircuitBreaker creates a limiter around an existing breaker.
// A nil breaker disables rejection.
func NewLimiterWithCircuitBreaker(maxConcurrent int, cb *CircuitBreaker) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Limiter{
		sem:     make(chan struct{}, maxConcurrent),
		breaker: cb,
	}
}

// Capacity returns the number of slots
func (l *Limiter) Capacity() int {
	return cap(l.sem)
}

// Acquire waits for a free slot. It fails with ErrCircuitOpen while the
// breaker is open and with ctx.Err() if ctx ends first.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.breaker != nil && !l.breaker.Allow() {
		l.rejected.Add(1)
		return ErrCircuitOpen
	}

	start := time.Now()
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	l.waitNs.Add(time.Since(start).Nanoseconds())
	l.acquired.Add(1)
	l.updatePeak(l.active.Add(1))
	return nil
}

// Release frees a slot taken by Acquire
func (l *Limiter) Release() {
	select {
	case <-l.sem:
		l.active.Add(-1)
		l.released.Add(1)
	default:
	}
}

// Record feeds the outcome of a step run under an acquired slot into the
// circuit breaker. Cancellation is not counted as a failure.
func (l *Limiter) Record(err error) {
	if l.breaker == nil {
		return
	}
	switch {
	case err == nil:
		l.breaker.RecordSuccess()
	case errors.Is(err, context.Canceled):
	default:
		l.breaker.RecordFailure()
	}
}

// Do runs fn under a slot and records its outcome
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()

	err := fn()
	l.Record(err)
	return err
}

// CurrentActive returns the number of slots in use
func (l *Limiter) CurrentActive() int64 {
	return l.active.Load()
}

// GetMetrics returns a snapshot of the counters
func (l *Limiter) GetMetrics() Metrics {
	return Metrics{
		TotalAcquired:   l.acquired.Load(),
		TotalReleased:   l.released.Load(),
		PeakConcurrent:  l.peak.Load(),
		TotalWaitTimeNs: l.waitNs.Load(),
		Rejected:        l.rejected.Load(),
	}
}

// AverageWaitTime is the mean time Acquire spent waiting for a slot
func (l *Limiter) AverageWaitTime() time.Duration {
	m := l.GetMetrics()
	if m.TotalAcquired == 0 {
		return 0
	}
	return time.Duration(m.TotalWaitTimeNs / m.TotalAcquired)
}

// Reset clears the counters. Slots in use stay in use.
func (l *Limiter) Reset() {
	l.acquired.Store(0)
	l.released.Store(0)
	l.peak.Store(l.active.Load())
	l.waitNs.Store(0)
	l.rejected.Store(0)
}

// CircuitState returns the breaker state, StateClosed when there is none
func (l *Limiter) CircuitState() CircuitBreakerState {
	if l.breaker == nil {
		return StateClosed
	}
	return l.breaker.State()
}

func (l *Limiter) updatePeak(current int64) {
	for {
		peak := l.peak.Load()
		if current <= peak || l.peak.CompareAndSwap(peak, current) {
			return
		}
	}
}
