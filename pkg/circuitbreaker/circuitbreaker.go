package circuitbreaker

import "github.com/sony/gobreaker"

var (
	// MaxConsecutiveFailures is the default number of consecutive failing
	// requests that trips a breaker.
	MaxConsecutiveFailures uint32 = 5
)

// NewCircuitBreaker is a factory function returning a *gobreaker.CircuitBreaker
// that opens once maxFailures consecutive requests have failed. A zero
// maxFailures defaults to MaxConsecutiveFailures.
func NewCircuitBreaker(name string, maxFailures uint32) *gobreaker.CircuitBreaker {
	if maxFailures == 0 {
		maxFailures = MaxConsecutiveFailures
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	})
}
