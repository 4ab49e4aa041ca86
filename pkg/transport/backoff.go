package transport

import (
	"math"
	"math/rand"
	"time"
)

// DefaultMaxBackoff caps the exponential backoff delay.
const DefaultMaxBackoff = 30 * time.Second

// randFloat is swapped out in tests for deterministic backoff checks.
var randFloat = rand.Float64

// Backoff returns the sleep duration before the next attempt: exponential
// in the attempt count with full jitter, so concurrent workers hitting the
// same endpoint do not retry in lockstep.
//
//	min(0.5 * 2^attempts, ceiling) * U(0, 1)
func Backoff(attempts int, ceiling time.Duration) time.Duration {
	if ceiling <= 0 {
		ceiling = DefaultMaxBackoff
	}
	base := 0.5 * math.Pow(2, float64(attempts)) * float64(time.Second)
	if base > float64(ceiling) {
		base = float64(ceiling)
	}
	return time.Duration(base * randFloat())
}
