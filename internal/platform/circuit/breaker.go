// Package circuit configures per-model circuit breakers for the LLM clients
// using github.com/sony/gobreaker — the teacher declares this dependency
// but never wires it (its own internal/net/circuit package reimplements the
// same state machine by hand); here it backs the transport-failure policy of
// spec.md §4.5 (distinct from the manual retry/backoff loop, which still
// handles per-call exponential backoff on 429/5xx).
package circuit

import (
	"time"

	"github.com/sony/gobreaker"
)

// NewModelBreaker returns a breaker that opens after 5 consecutive failures
// and probes again after 30s, scoped to one LLM model's client.
func NewModelBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}
