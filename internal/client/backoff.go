package client

import (
	"math/rand/v2"
	"time"
)

// maxJitter bounds the random component added to every reconnect delay so a
// fleet of clients does not reconnect in lockstep.
const maxJitter = time.Second

// nextDelay computes the reconnect delay for a 1-based attempt number:
// min(base·2^(attempt−1) + jitter, max). The jitter function is injectable
// for tests; randomJitter is used in production.
func nextDelay(base, max time.Duration, attempt int, jitter func() time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			break
		}
	}
	delay += jitter()
	if delay > max {
		delay = max
	}
	return delay
}

func randomJitter() time.Duration {
	return rand.N(maxJitter)
}
