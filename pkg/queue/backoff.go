package queue

import (
	"math/rand/v2"
	"time"
)

// Backoff computes reconnect delays. It is decoupled from the poll timer so
// the schedule can be tested without sleeping.
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter is the fraction of the delay randomized on top of it.
	// Zero disables jitter, which keeps the schedule deterministic.
	Jitter float64
}

// DefaultBackoff returns the reconnect policy used by both processes.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:       2 * time.Second,
		Max:        60 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// Delay returns the delay before reconnect attempt number attempt.
// The first attempt is 1; values below 1 are treated as 1.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := float64(b.Base)
	for i := 1; i < attempt; i++ {
		d *= b.Multiplier
		if d >= float64(b.Max) {
			break
		}
	}
	if d > float64(b.Max) {
		d = float64(b.Max)
	}

	if b.Jitter > 0 {
		d += d * b.Jitter * rand.Float64()
		if d > float64(b.Max) {
			d = float64(b.Max)
		}
	}

	return time.Duration(d)
}
