package queue

import (
	"math/rand/v2"
	"time"
)

// Backoff returns min(base * 2^retryCount, max). A non-positive max disables the cap.
func Backoff(base, max time.Duration, retryCount int) time.Duration {
	if base <= 0 {
		return 0
	}

	d := base
	for i := 0; i < retryCount; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

// pacingDelay picks a uniform delay in [min, max].
func pacingDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int64N(int64(max-min)+1))
}
