package client

import "time"

// Backoff returns the reconnect delay for the given attempt, starting at
// base and doubling per attempt up to ceiling. Attempts are 1-based; out
// of range values clamp to the nearest bound
func Backoff(base, ceiling time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	return min(delay, ceiling)
}
