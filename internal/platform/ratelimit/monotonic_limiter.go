package ratelimit

import (
	"math/rand"
	"sync"
	"time"
)

// MonotonicLimiter is the shared token-style limiter used by the parallel
// summarize-harvest path (spec.md §4.7, §5). It holds a single
// next-allowed monotonic instant; each Wait call sleeps until that instant
// then advances it by interval ± 5% jitter. Grounded on the original
// Python _RateLimiter in
// features/llm/application/usecases/summarize_harvest.py, which the generic
// golang.org/x/time/rate token bucket does not reproduce (that type
// distributes bursts rather than holding one shared, jittered cadence), so
// this one primitive is hand-rolled — see DESIGN.md.
type MonotonicLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// NewMonotonicLimiter builds a limiter admitting callsPerMinute calls/minute.
func NewMonotonicLimiter(callsPerMinute int) *MonotonicLimiter {
	if callsPerMinute < 1 {
		callsPerMinute = 1
	}
	interval := time.Duration(float64(time.Minute) / float64(callsPerMinute))
	return &MonotonicLimiter{
		interval: interval,
		next:     time.Now(),
	}
}

// Wait blocks the caller until the next slot is available, then reserves
// the following slot with jitter. The lock is held across the sleep, the
// same way the original _RateLimiter.wait holds its asyncio lock across
// time.sleep, so concurrent callers serialize onto the cadence instead of
// all waking at the same instant.
func (l *MonotonicLimiter) Wait() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Before(l.next) {
		time.Sleep(l.next.Sub(now))
		now = time.Now()
	}
	jitter := time.Duration((rand.Float64()*2 - 1) * 0.05 * float64(l.interval))
	l.next = now.Add(l.interval + jitter)
}
