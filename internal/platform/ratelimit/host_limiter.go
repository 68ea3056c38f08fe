// Package ratelimit provides rate limiting primitives. MonotonicLimiter
// paces the parallel summarize-harvest path; HostLimiter is not called by
// any client in this repository.
//
// HostLimiter is adapted directly from internal/net/ratelimit.Limiter in the
// teacher repo: a per-host token bucket built on golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter gives each host its own token bucket so one slow provider
// cannot starve another's budget.
type HostLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewHostLimiter creates a limiter with the given requests-per-second and
// burst capacity, applied per distinct host.
func NewHostLimiter(rps float64, burst int) *HostLimiter {
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *HostLimiter) getLimiter(host string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limiters[host]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[host]; ok {
		return lim
	}
	lim = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.limiters[host] = lim
	return lim
}

// Wait blocks until a request for host is allowed or ctx is cancelled.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	return l.getLimiter(host).Wait(ctx)
}

// Allow reports whether a request for host may proceed right now.
func (l *HostLimiter) Allow(host string) bool {
	return l.getLimiter(host).Allow()
}
