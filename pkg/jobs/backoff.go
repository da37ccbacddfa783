package jobs

import (
	"math"
	"math/rand"
	"time"
)

// backoff returns base * 2^(attempts-1), capped at maxBackoff.
func backoff(attempts int, base, maxBackoff time.Duration) time.Duration {
	if attempts <= 0 || base <= 0 {
		return 0
	}
	factor := math.Pow(2, float64(attempts-1))
	if factor*float64(base) >= float64(maxBackoff) {
		return maxBackoff
	}
	return time.Duration(factor * float64(base))
}

func jitter(r *rand.Rand, maxJitter time.Duration) time.Duration {
	if maxJitter <= 0 || r == nil {
		return 0
	}
	// [0, maxJitter]
	return time.Duration(r.Int63n(int64(maxJitter) + 1)) //nolint:gosec
}
