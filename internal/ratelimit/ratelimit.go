package ratelimit

import (
	"context"
	"sync"
	"time"
)

type RateLimiter interface {
	Wait(ctx context.Context) error
}

// Feedback is implemented by limiters that adjust their pace from the
// outcome of the request they let through.
type Feedback interface {
	RecordSuccess()
	RecordThrottled()
}

// MinIntervalLimiter guarantees at least interval between the start of two
// consecutive requests. Callers that overlap are serialized.
type MinIntervalLimiter struct {
	interval    time.Duration
	lastRequest time.Time
	mu          sync.Mutex
}

func NewMinIntervalLimiter(interval time.Duration) *MinIntervalLimiter {
	return &MinIntervalLimiter{interval: interval}
}

func (r *MinIntervalLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := waitFor(ctx, r.lastRequest, r.interval); err != nil {
		return err
	}

	r.lastRequest = time.Now()
	return nil
}

func (r *MinIntervalLimiter) Interval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

func waitFor(ctx context.Context, last time.Time, interval time.Duration) error {
	if last.IsZero() || interval <= 0 {
		return ctx.Err()
	}

	elapsed := time.Since(last)
	if elapsed >= interval {
		return ctx.Err()
	}

	timer := time.NewTimer(interval - elapsed)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// BackoffLimiter is a MinIntervalLimiter whose interval grows when the
// merchant throttles us and shrinks back towards the base interval after a
// run of successes. The interval never drops below base.
type BackoffLimiter struct {
	*MinIntervalLimiter
	base          time.Duration
	max           time.Duration
	backoffFactor float64
	successCount  int
}

func NewBackoffLimiter(base, max time.Duration) *BackoffLimiter {
	if max < base {
		max = base
	}
	return &BackoffLimiter{
		MinIntervalLimiter: NewMinIntervalLimiter(base),
		base:               base,
		max:                max,
		backoffFactor:      2,
	}
}

func (b *BackoffLimiter) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successCount++
	if b.successCount < 5 || b.interval == b.base {
		return
	}

	next := time.Duration(float64(b.interval) * 0.75)
	if next < b.base {
		next = b.base
	}
	b.interval = next
	b.successCount = 0
}

func (b *BackoffLimiter) RecordThrottled() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successCount = 0

	next := time.Duration(float64(b.interval) * b.backoffFactor)
	if next == 0 {
		next = time.Second
	}
	if next > b.max {
		next = b.max
	}
	b.interval = next
}
